package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/annotate"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
	"github.com/JakeFAU/reliefweb-corpus/internal/tagger/prose"
)

type annotateOptions struct {
	batchSize  int
	maxBatches int
	textField  string
	parseHTML  bool
}

// AnnotateSummary is stored under the last_annotate about key and printed.
type AnnotateSummary struct {
	RunID      string    `json:"run_id"`
	Batches    int       `json:"batches"`
	Written    int       `json:"written"`
	Tokens     int       `json:"tokens"`
	Stop       string    `json:"stop"`
	FinishedAt time.Time `json:"finished_at"`
}

func newAnnotateCmd() *cobra.Command {
	var opts annotateOptions
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Tag new and changed reports",
		Long: `Selects records whose annotation is missing or older than the record,
tags their text and stores one vertical document per record, in bounded
batches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnnotate(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "records per batch (default from config)")
	cmd.Flags().IntVar(&opts.maxBatches, "max-batches", 0, "batch ceiling for this run (default from config)")
	cmd.Flags().StringVar(&opts.textField, "field", "", "record field holding the text (default from config)")
	cmd.Flags().BoolVar(&opts.parseHTML, "html", false, "strip markup before tagging")
	return cmd
}

func runAnnotate(cmd *cobra.Command, opts annotateOptions) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	tagset, err := a.Tagset()
	if err != nil {
		return err
	}
	batcher, err := annotate.NewBatcher(annotate.Deps{
		Store:   a.Store,
		Tagger:  prose.New(),
		Tagset:  tagset,
		Clock:   a.Clock,
		IDs:     a.IDs,
		Emitter: a.Hub,
		Logger:  a.Logger.Named("annotate"),
	})
	if err != nil {
		return fmt.Errorf("init batcher: %w", err)
	}

	cfg := a.Config.Annotate
	runOpts := annotate.Options{
		BatchSize:  cfg.BatchSize,
		MaxBatches: cfg.MaxBatches,
		TextField:  cfg.TextField,
		ParseHTML:  cfg.ParseHTML || opts.parseHTML,
	}
	if opts.batchSize > 0 {
		runOpts.BatchSize = opts.batchSize
	}
	if opts.maxBatches > 0 {
		runOpts.MaxBatches = opts.maxBatches
	}
	if opts.textField != "" {
		runOpts.TextField = opts.textField
	}

	sum, err := batcher.Run(ctx, runOpts)
	if err != nil {
		return fmt.Errorf("run annotation: %w", err)
	}
	summary := AnnotateSummary{
		RunID:      sum.RunID.String(),
		Batches:    sum.Batches,
		Written:    sum.Written,
		Tokens:     sum.Tokens,
		Stop:       string(sum.Stop),
		FinishedAt: a.Clock.Now().UTC(),
	}
	if err := writeAbout(cmd, a.Store, storage.AboutLastAnnotate, summary); err != nil {
		a.Logger.Warn("failed to record annotation summary", zap.Error(err))
	}
	return printJSON(cmd, summary)
}
