// Package cmd defines the CLI commands of the reliefweb-corpus executable.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/crawler"
	"github.com/JakeFAU/reliefweb-corpus/internal/hash/blake2b"
	"github.com/JakeFAU/reliefweb-corpus/internal/source"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

type crawlOptions struct {
	mode      string
	pageLimit int
	maxCalls  int
}

// CrawlSummary is stored under the last_crawl about key and printed.
type CrawlSummary struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Since      string    `json:"since,omitempty"`
	Stop       string    `json:"stop"`
	Calls      int       `json:"calls"`
	Records    int       `json:"records"`
	Total      int       `json:"total"`
	FinishedAt time.Time `json:"finished_at"`
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Harvest reports from the upstream API",
		Long: `Pages through the configured query within the call quota and stores
every record before the next request. Incremental mode resumes from the
newest stored change time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "", "crawl mode: full or incremental (default from config)")
	cmd.Flags().IntVar(&opts.pageLimit, "page-limit", 0, "records per page (default from config or query)")
	cmd.Flags().IntVar(&opts.maxCalls, "max-calls", 0, "call ceiling for this run (default from config)")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts crawlOptions) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}

	modeName := opts.mode
	if modeName == "" {
		modeName = a.Config.Source.Mode
	}
	mode, err := source.ParseMode(modeName)
	if err != nil {
		return err
	}
	query, err := a.Query(mode)
	if err != nil {
		return err
	}
	fetcher, err := a.Fetcher(nil)
	if err != nil {
		return err
	}
	quota, err := a.QuotaTable()
	if err != nil {
		return err
	}
	engine, err := crawler.NewEngine(crawler.Deps{
		Fetcher: fetcher,
		Store:   a.Store,
		Hasher:  blake2b.New(),
		Clock:   a.Clock,
		Sleeper: a.Clock,
		IDs:     a.IDs,
		Emitter: a.Hub,
		Logger:  a.Logger.Named("crawler"),
	}, quota)
	if err != nil {
		return fmt.Errorf("init crawler: %w", err)
	}

	runOpts := crawler.Options{PageLimit: a.Config.Crawler.PageLimit, MaxCalls: a.Config.Crawler.MaxCalls}
	if opts.pageLimit > 0 {
		runOpts.PageLimit = opts.pageLimit
	}
	if opts.maxCalls > 0 {
		runOpts.MaxCalls = opts.maxCalls
	}

	res, err := engine.Run(ctx, query, runOpts)
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}

	summary := CrawlSummary{
		RunID:      res.RunID.String(),
		Mode:       res.Mode.String(),
		Stop:       string(res.Stop()),
		Calls:      res.Final.CallCount,
		Records:    res.Records,
		Total:      res.Final.Total,
		FinishedAt: a.Clock.Now().UTC(),
	}
	if !res.Since.IsZero() {
		summary.Since = res.Since.UTC().Format(time.RFC3339)
	}
	if err := writeAbout(cmd, a.Store, storage.AboutLastCrawl, summary); err != nil {
		a.Logger.Warn("failed to record crawl summary", zap.Error(err))
	}
	return printJSON(cmd, summary)
}

// aboutWriter is the slice of storage.Store used for run summaries.
type aboutWriter interface {
	SetAbout(ctx context.Context, key, value string) error
}

func writeAbout(cmd *cobra.Command, store aboutWriter, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.SetAbout(cmd.Context(), key, string(data))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
