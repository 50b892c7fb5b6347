package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/exitwatch/internal/database"
	"github.com/nao1215/exitwatch/internal/evidence"
	"github.com/nao1215/exitwatch/internal/model"
	"github.com/nao1215/exitwatch/internal/watchlist"
)

// historyTimeLayout is used for run start times in listings.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and compare stored analysis runs",
		Long: `History reads the evidence database written by analyze.

Without flags it lists every stored run, newest first.

Examples:
  # List stored runs
  exitwatch history

  # Print the full report of run 3
  exitwatch history --show 3

  # Compare the suspect sources of run 2 and run 5
  exitwatch history --compare 2,5

  # List every stored contact made by one host
  exitwatch history --source 192.168.1.5`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	addConfigFlags(cmd, false)
	addFormatFlags(cmd)

	cmd.Flags().Int64P("show", "s", 0,
		"Print the report of the run with this ID")
	cmd.Flags().Int64SliceP("compare", "C", nil,
		"Compare two runs by ID: --compare PREVIOUS,CURRENT")
	cmd.Flags().String("source", "",
		"List stored matches from this source address")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := getFormat(cmd)
	if err != nil {
		return err
	}

	showID, err := cmd.Flags().GetInt64("show")
	if err != nil {
		return err
	}
	compareIDs, err := cmd.Flags().GetInt64Slice("compare")
	if err != nil {
		return err
	}
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}

	// Validate before opening the database.
	if len(compareIDs) != 0 && len(compareIDs) != 2 {
		return fmt.Errorf("--compare takes exactly two run IDs, got %d", len(compareIDs))
	}
	if source != "" {
		normalized, ok := watchlist.Normalize(source)
		if !ok {
			return fmt.Errorf("not an IP address: %s", source)
		}
		source = normalized
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case showID != 0:
		return showRun(ctx, db, showID, format, out, cfg.Verbose)
	case len(compareIDs) == 2:
		return compareRuns(ctx, db, compareIDs[0], compareIDs[1], format, out)
	case source != "":
		return listSourceMatches(ctx, db, source, format, out)
	default:
		return listRuns(ctx, db, format, out)
	}
}

// listRuns prints every stored run, newest first.
func listRuns(ctx context.Context, db *database.EvidenceDB, format reportFormat, out io.Writer) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}

	if format == formatJSON {
		return encodeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'exitwatch analyze <capture>' to analyse a capture.")
		return nil
	}

	fmt.Fprintf(out, "Stored runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-19s  %-8s  %-7s  %-11s  %s\n", "ID", "Started (UTC)", "Matches", "Sources", "Exit list", "Capture")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))
	for _, r := range runs {
		capturePath := r.CapturePath
		if r.Error != "" {
			capturePath += " (failed)"
		}
		fmt.Fprintf(out, "  %-6d  %-19s  %-8s  %-7s  %-11s  %s\n",
			r.ID,
			r.StartedAt.UTC().Format(historyTimeLayout),
			humanize.Comma(int64(r.TotalMatches)),
			humanize.Comma(int64(r.DistinctSources)),
			string(r.WatchlistStatus),
			capturePath,
		)
	}
	fmt.Fprintln(out, "\nUse 'exitwatch history --show <id>' to print a report.")
	fmt.Fprintln(out, "Use 'exitwatch history --compare <id>,<id>' to compare two runs.")
	return nil
}

// getRun loads a stored run and fails when it does not exist.
func getRun(ctx context.Context, db *database.EvidenceDB, id int64) (*model.Investigation, error) {
	inv, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("run %d not found (use 'exitwatch history' to list runs)", id)
	}
	return inv, nil
}

// showRun prints a stored run with the report writers used by analyze.
func showRun(ctx context.Context, db *database.EvidenceDB, id int64, format reportFormat, out io.Writer, verbose bool) error {
	inv, err := getRun(ctx, db, id)
	if err != nil {
		return err
	}
	if _, err := newReportWriter(format, out, verbose).Write(inv); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// listSourceMatches prints every stored contact made by source.
func listSourceMatches(ctx context.Context, db *database.EvidenceDB, source string, format reportFormat, out io.Writer) error {
	matches, err := db.MatchesBySource(ctx, source)
	if err != nil {
		return err
	}

	if format == formatJSON {
		return encodeJSON(out, matches)
	}

	if len(matches) == 0 {
		fmt.Fprintf(out, "No stored matches from %s.\n", source)
		return nil
	}

	fmt.Fprintf(out, "Stored matches from %s (%d):\n\n", source, len(matches))
	fmt.Fprintf(out, "  %-6s  %-8s  %-30s  %-39s  %s\n", "Run", "Packet", "Contact Time", "Exit Node", "Capture")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))
	for _, m := range matches {
		fmt.Fprintf(out, "  %-6d  %-8d  %-30s  %-39s  %s\n",
			m.RunID,
			m.Index,
			m.ContactTime.UTC().Format(model.ContactTimeLayout),
			m.Destination,
			m.CapturePath,
		)
	}
	return nil
}

// RunComparison is the result of comparing the suspect sources of two runs.
type RunComparison struct {
	// Previous describes the earlier run.
	Previous RunMetadata `json:"previous"`

	// Current describes the later run.
	Current RunMetadata `json:"current"`

	// Sources holds the per-source changes.
	Sources *evidence.Comparison `json:"sources"`
}

// RunMetadata identifies one side of a comparison.
type RunMetadata struct {
	// ID is the database ID of the run.
	ID int64 `json:"id"`

	// Capture is the analysed capture path.
	Capture string `json:"capture"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// TotalMatches is the number of matches.
	TotalMatches int `json:"total_matches"`

	// DistinctSources is the number of suspect sources.
	DistinctSources int `json:"distinct_sources"`
}

func runMetadata(id int64, inv *model.Investigation) RunMetadata {
	return RunMetadata{
		ID:              id,
		Capture:         inv.Capture.Path,
		StartedAt:       inv.StartedAt,
		TotalMatches:    inv.Report.TotalMatches,
		DistinctSources: inv.Report.DistinctSources,
	}
}

// compareRuns compares the suspect sources of two stored runs.
func compareRuns(ctx context.Context, db *database.EvidenceDB, previousID, currentID int64, format reportFormat, out io.Writer) error {
	previous, err := getRun(ctx, db, previousID)
	if err != nil {
		return err
	}
	current, err := getRun(ctx, db, currentID)
	if err != nil {
		return err
	}

	sources, err := evidence.CompareSources(previous.Report, current.Report)
	if err != nil {
		return fmt.Errorf("cannot compare runs %d and %d: %w", previousID, currentID, err)
	}

	result := &RunComparison{
		Previous: runMetadata(previousID, previous),
		Current:  runMetadata(currentID, current),
		Sources:  sources,
	}

	switch format {
	case formatJSON:
		return encodeJSON(out, result)
	case formatMarkdown:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// outputComparisonText outputs the comparison in human-readable text format.
func outputComparisonText(out io.Writer, result *RunComparison) error {
	fmt.Fprintf(out, "Run Comparison: %d -> %d\n", result.Previous.ID, result.Current.ID)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious run: %s  %s\n", result.Previous.StartedAt.UTC().Format(historyTimeLayout), result.Previous.Capture)
	fmt.Fprintf(out, "Current run:  %s  %s\n", result.Current.StartedAt.UTC().Format(historyTimeLayout), result.Current.Capture)

	fmt.Fprintf(out, "\n  %-17s  %-10s  %-10s  %s\n", "Metric", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 52))
	fmt.Fprintf(out, "  %-17s  %-10d  %-10d  %s\n", "Matches",
		result.Previous.TotalMatches, result.Current.TotalMatches,
		formatDelta(result.Current.TotalMatches-result.Previous.TotalMatches))
	fmt.Fprintf(out, "  %-17s  %-10d  %-10d  %s\n", "Distinct sources",
		result.Previous.DistinctSources, result.Current.DistinctSources,
		formatDelta(result.Current.DistinctSources-result.Previous.DistinctSources))

	s := result.Sources
	if len(s.NewSources) > 0 {
		fmt.Fprintf(out, "\nNew Sources (%d):\n", len(s.NewSources))
		for _, src := range s.NewSources {
			fmt.Fprintf(out, "  [+] %s  %d match(es)\n", src.Address, src.Matches)
		}
	}
	if len(s.GoneSources) > 0 {
		fmt.Fprintf(out, "\nGone Sources (%d):\n", len(s.GoneSources))
		for _, src := range s.GoneSources {
			fmt.Fprintf(out, "  [-] %s  %d match(es)\n", src.Address, src.Matches)
		}
	}
	if len(s.PersistingSources) > 0 {
		fmt.Fprintf(out, "\nPersisting Sources (%d):\n", len(s.PersistingSources))
		for _, d := range s.PersistingSources {
			fmt.Fprintf(out, "  [=] %s  %d -> %d (%s)\n", d.Address, d.Previous, d.Current, formatDelta(d.Delta()))
		}
	}
	if !s.HasChanges() && len(s.PersistingSources) == 0 {
		fmt.Fprintln(out, "\nNo suspect sources in either run.")
	}

	return nil
}

// outputComparisonMarkdown outputs the comparison in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *RunComparison) error {
	md := markdown.NewMarkdown(out)

	md.H1(fmt.Sprintf("Run Comparison: %d -> %d", result.Previous.ID, result.Current.ID))
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Started", result.Previous.StartedAt.UTC().Format(historyTimeLayout), result.Current.StartedAt.UTC().Format(historyTimeLayout), "-"},
			{"Capture", "`" + result.Previous.Capture + "`", "`" + result.Current.Capture + "`", "-"},
			{"Matches", strconv.Itoa(result.Previous.TotalMatches), strconv.Itoa(result.Current.TotalMatches),
				formatDelta(result.Current.TotalMatches - result.Previous.TotalMatches)},
			{"Distinct sources", strconv.Itoa(result.Previous.DistinctSources), strconv.Itoa(result.Current.DistinctSources),
				formatDelta(result.Current.DistinctSources - result.Previous.DistinctSources)},
		},
	})
	md.PlainText("")

	s := result.Sources
	if len(s.NewSources) > 0 {
		md.H2(fmt.Sprintf("New Sources (%d)", len(s.NewSources)))
		md.PlainText("")
		items := make([]string, len(s.NewSources))
		for i, src := range s.NewSources {
			items[i] = fmt.Sprintf("`%s`: %d match(es)", src.Address, src.Matches)
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if len(s.GoneSources) > 0 {
		md.H2(fmt.Sprintf("Gone Sources (%d)", len(s.GoneSources)))
		md.PlainText("")
		items := make([]string, len(s.GoneSources))
		for i, src := range s.GoneSources {
			items[i] = fmt.Sprintf("~~`%s`: %d match(es)~~", src.Address, src.Matches)
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if len(s.PersistingSources) > 0 {
		md.H2(fmt.Sprintf("Persisting Sources (%d)", len(s.PersistingSources)))
		md.PlainText("")
		rows := make([][]string, len(s.PersistingSources))
		for i, d := range s.PersistingSources {
			rows[i] = []string{"`" + d.Address + "`", strconv.Itoa(d.Previous), strconv.Itoa(d.Current), formatDelta(d.Delta())}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Source", "Previous", "Current", "Change"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	return md.Build()
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// encodeJSON writes v as indented JSON.
func encodeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
