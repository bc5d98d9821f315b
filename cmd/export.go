package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/reliefweb-corpus/internal/app"
	"github.com/JakeFAU/reliefweb-corpus/internal/export"
)

type exportOptions struct {
	path     string
	topic    string
	mode     string
	compress bool
	fields   []string
}

func newExportCmd() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the annotated corpus to blob storage",
		Long: `Streams every annotated document, wrapped in a <doc> element carrying
the selected record fields, to the configured blob store and publishes a
notice to the configured topic. Each export with documents gets a
major.minor version recorded in the about table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.path, "path", "", "object path (default corpus/corpus-<timestamp>.vert)")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "topic for the export notice (default from config)")
	cmd.Flags().StringSliceVar(&opts.fields, "fields", nil, "record fields emitted as doc attributes")
	cmd.Flags().StringVar(&opts.mode, "mode", export.ModeFull, "full (new major version) or add (documents annotated since the last export)")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "write an xz-compressed corpus (default from config)")
	return cmd
}

func runExport(cmd *cobra.Command, opts exportOptions) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	exporter, err := newExporter(cmd, a)
	if err != nil {
		return err
	}

	corpusOpts := export.CorpusOptions{
		Path:     opts.path,
		Mode:     opts.mode,
		Compress: opts.compress || a.Config.Export.Compress,
		Fields:   a.Config.Export.Fields,
		Topic:    a.Config.Export.Topic,
	}
	if len(opts.fields) > 0 {
		corpusOpts.Fields = opts.fields
	}
	if opts.topic != "" {
		corpusOpts.Topic = opts.topic
	}
	notice, err := exporter.Corpus(ctx, corpusOpts)
	if err != nil {
		return fmt.Errorf("export corpus: %w", err)
	}
	return printJSON(cmd, struct {
		export.Notice
		MessageID string `json:"message_id,omitempty"`
	}{notice, notice.MessageID})
}

func newExporter(cmd *cobra.Command, a *app.App) (*export.Exporter, error) {
	blobs, err := a.BlobStore(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	pub, err := a.Publisher(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("open publisher: %w", err)
	}
	return export.NewExporter(export.Deps{
		Store:     a.Store,
		Blobs:     blobs,
		Publisher: pub,
		Clock:     a.Clock,
		Logger:    a.Logger.Named("export"),
	})
}
