package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/app"
	"github.com/JakeFAU/reliefweb-corpus/internal/config"
	"github.com/JakeFAU/reliefweb-corpus/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// closeTimeout bounds draining the progress hub and closing the store.
const closeTimeout = 10 * time.Second

// appFactory builds the shared services. Tests swap it to isolate metric
// registries and storage.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// newRootCmd creates the root command with every subcommand attached.
func newRootCmd(factory appFactory) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "reliefweb-corpus",
		Short: "Harvest ReliefWeb reports and build a tagged text corpus.",
		Long: `reliefweb-corpus pages through the ReliefWeb reports API within its
call quota, stores every record idempotently, annotates new or changed
reports with part-of-speech tags and exports the result as a vertical
corpus.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return closeApp(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/reliefweb-corpus, $HOME/.reliefweb-corpus)")

	cmd.AddCommand(
		newCrawlCmd(),
		newAnnotateCmd(),
		newTagsetCmd(),
		newExportCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, newRootCmd(defaultAppFactory)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// run executes root and closes the services when the command failed, since
// cobra skips the post-run hooks then.
func run(ctx context.Context, root *cobra.Command) error {
	executed, err := root.ExecuteContextC(ctx)
	if err != nil && executed != nil {
		if cerr := closeApp(executed.Context()); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func closeApp(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return nil
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	return appInstance.Close(closeCtx)
}
