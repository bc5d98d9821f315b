package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/reliefweb-corpus/internal/export"
)

func newTagsetCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "tagset",
		Short: "List the tags used across the annotated corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			exporter, err := newExporter(cmd, a)
			if err != nil {
				return err
			}
			tagset, err := a.Tagset()
			if err != nil {
				return err
			}
			report, err := exporter.Tagset(ctx, tagset, export.TagsetOptions{Path: path})
			if err != nil {
				return fmt.Errorf("export tagset: %w", err)
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&path, "path", export.DefaultTagsetPath, "object path of the tag list")
	return cmd
}
