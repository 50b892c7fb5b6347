package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/exitwatch/internal/config"
	"github.com/nao1215/exitwatch/internal/database"
	"github.com/nao1215/exitwatch/internal/model"
	"github.com/nao1215/exitwatch/internal/pipeline"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [capture ...]",
		Short: "Report hosts in a capture that contacted Tor exit nodes",
		Long: `Analyze reads pcap or pcapng captures, checks the destination of every IP
packet against the Tor exit list and reports each match with its source,
destination and time of contact.

Captures whose link type has no IP layer are rejected. Frames that cannot be
decoded are skipped and listed as warnings. Use - to read a capture from
standard input.

The exit list comes from --watchlist, or from the cache. With --fetch, a
missing or expired cache is refreshed first, directly or through Tor
(--external-tor, --embedded-tor). Without it, an expired cache is still used
and the report marks it as stale.

Examples:
  # Analyse a capture with the cached exit list
  exitwatch analyze capture.pcap

  # Refresh the exit list through a local Tor proxy first
  exitwatch analyze --fetch --external-tor 127.0.0.1:9050 capture.pcapng

  # Use a specific exit list and write JSON
  exitwatch analyze -W exits.txt --json -o report.json capture.pcap

  # Read a tshark field export from standard input
  tshark -r in.pcap -T fields -e frame.time_epoch -e ip.src -e ip.dst | exitwatch analyze --fields -

  # Analyse many captures, four at a time, each within ten minutes
  exitwatch analyze --batch 4 --timeout 10m captures/*.pcap`,
		Args: cobra.ArbitraryArgs,
		RunE: runAnalyzeCmd,
	}

	addConfigFlags(cmd, false)
	addWatchlistFlags(cmd, false)
	addFormatFlags(cmd)

	cmd.Flags().BoolP("fetch", "F", false,
		"Download the exit list when the cache is missing or older than --max-age")

	cmd.Flags().DurationP("timeout", "t", 0,
		"Analysis deadline for each capture (0 means no limit)")
	cmd.Flags().Bool("fields", false,
		"Read tshark field exports instead of pcap/pcapng")
	cmd.Flags().String("separator", config.DefaultFieldSeparator,
		"Column separator of field exports")
	cmd.Flags().IntP("workers", "w", 0,
		"Frame decoders per capture (0 uses one per CPU)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of captures analysed concurrently")
	cmd.Flags().Bool("strict-timestamps", false,
		"Abort instead of dropping matches whose capture time is unusable")

	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-save", false,
		"Do not store the run in the evidence database")
	cmd.Flags().Bool("redact", false,
		"Replace suspect addresses in log output with stable pseudonyms")

	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildAnalyzeConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runAnalyze(ctx, cmd, cfg, logger)
}

// buildAnalyzeConfig layers the flags the user set over the config file.
func buildAnalyzeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := applyWatchlistFlags(cmd, cfg); err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("fetch") {
		if cfg.Fetch, err = fs.GetBool("fetch"); err != nil {
			return nil, err
		}
	}
	if fs.Changed("timeout") {
		if cfg.Timeout, err = fs.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if fs.Changed("fields") {
		if cfg.FieldExport, err = fs.GetBool("fields"); err != nil {
			return nil, err
		}
	}
	if fs.Changed("separator") {
		if cfg.FieldSeparator, err = fs.GetString("separator"); err != nil {
			return nil, err
		}
	}
	if cfg.FieldSeparator == `\t` {
		cfg.FieldSeparator = "\t"
	}
	if fs.Changed("workers") {
		if cfg.Workers, err = fs.GetInt("workers"); err != nil {
			return nil, err
		}
	}
	if fs.Changed("batch") {
		if cfg.BatchSize, err = fs.GetInt("batch"); err != nil {
			return nil, err
		}
	}
	if fs.Changed("strict-timestamps") {
		if cfg.StrictTimestamps, err = fs.GetBool("strict-timestamps"); err != nil {
			return nil, err
		}
	}
	if fs.Changed("redact") {
		if cfg.Redact, err = fs.GetBool("redact"); err != nil {
			return nil, err
		}
	}

	noSave, err := fs.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	if noSave {
		cfg.SaveToDB = false
	}

	if cfg.ReportFile, err = fs.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = fs.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = fs.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.CSVReport, err = fs.GetBool("csv"); err != nil {
		return nil, err
	}

	cfg.Captures = args
	return cfg, nil
}

// runAnalyze analyses every capture, writes the reports of those that
// finished and returns an error naming each capture that did not.
func runAnalyze(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting analysis",
		"captures", len(cfg.Captures),
		"batchSize", cfg.BatchSize,
		"torMode", cfg.TorMode,
		"saveToDB", cfg.SaveToDB,
	)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var fetcher *exitListFetcher
	if cfg.Fetch && cfg.WatchlistPath == "" {
		fetcher = newExitListFetcher(cfg, logger, cmd.ErrOrStderr())
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
	}

	ws := pipeline.NewWatchlistStep(
		newWatchlistProvider(cfg, fetcher, db, logger),
		pipeline.WithWatchlistLogger(logger),
	)
	stdin := cmd.InOrStdin()

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return newAnalysisPipeline(cfg, ws, db, stdin, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	results, batchErr := bp.ProcessBatch(ctx, cfg.Captures)

	if snap, ok := ws.Snapshot(); ok {
		saveSnapshot(ctx, db, snap, logger)
	}

	if err := writeReports(cmd, cfg, results); err != nil {
		return err
	}

	return analysisError(cfg.Captures, results, batchErr)
}

// newAnalysisPipeline builds the steps for one capture. ws is shared so the
// exit list is loaded once per command.
func newAnalysisPipeline(cfg *config.Config, ws *pipeline.WatchlistStep, db *database.EvidenceDB, stdin io.Reader, logger *slog.Logger) *pipeline.Pipeline {
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithTimeout(cfg.Timeout),
	)

	p.AddSteps(
		ws,
		pipeline.NewCaptureStep(
			pipeline.WithFieldExport(cfg.FieldExport),
			pipeline.WithFieldSeparator(separatorRune(cfg.FieldSeparator)),
			pipeline.WithWorkers(cfg.Workers),
			pipeline.WithStdin(stdin),
			pipeline.WithCaptureLogger(logger),
		),
		pipeline.NewCorrelateStep(),
		pipeline.NewAggregateStep(
			pipeline.WithStrictTimestamps(cfg.StrictTimestamps),
			pipeline.WithAggregateLogger(logger),
		),
	)

	if db != nil {
		p.AddStep(pipeline.NewSaveStep(db, logger))
	}

	return p
}

// separatorRune returns the first character of s, or a tab when s is empty.
func separatorRune(s string) rune {
	for _, r := range s {
		return r
	}
	return '\t'
}

// writeReports writes one report per finished investigation, in input order.
func writeReports(cmd *cobra.Command, cfg *config.Config, results []*model.Investigation) (err error) {
	format := formatText
	switch {
	case cfg.JSONReport:
		format = formatJSON
	case cfg.MarkdownReport:
		format = formatMarkdown
	case cfg.CSVReport:
		format = formatCSV
	}

	out, closeOut, err := openOutput(cfg.ReportFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report file: %w", cerr)
		}
	}()

	w := newReportWriter(format, out, cfg.Verbose)
	for _, inv := range results {
		if inv == nil || inv.Report == nil || inv.TimedOut {
			continue
		}
		if _, err := w.Write(inv); err != nil {
			return fmt.Errorf("failed to write report for %s: %w", inv.Capture.Path, err)
		}
	}
	return nil
}

// analysisError joins the failures of every capture that produced no report.
func analysisError(paths []string, results []*model.Investigation, batchErr error) error {
	var errs []error
	for i, inv := range results {
		switch {
		case inv == nil:
			// Never started; covered by batchErr.
		case inv.TimedOut:
			cause := inv.Error
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			errs = append(errs, fmt.Errorf("analysis of %s did not finish: %w", paths[i], cause))
		case inv.Error != nil:
			errs = append(errs, fmt.Errorf("failed to analyse %s: %w", paths[i], inv.Error))
		}
	}
	if batchErr != nil {
		errs = append(errs, fmt.Errorf("analysis interrupted: %w", batchErr))
	}
	return errors.Join(errs...)
}
