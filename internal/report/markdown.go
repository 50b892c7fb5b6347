package report

import (
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/exitwatch/internal/model"
)

// maxChartSources is the number of sources drawn individually in the pie chart.
// Remaining sources are grouped as "Other".
const maxChartSources = 8

// MarkdownWriter outputs reports in Markdown format for case files and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the investigation in Markdown format.
func (w *MarkdownWriter) Write(inv *model.Investigation) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, inv)
	if inv.Report != nil {
		w.writeEvidence(md, inv.Report)
	}
	w.writeDiagnostics(md, inv.Diagnostics)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteEvidence outputs only the evidence sections in Markdown format.
func (w *MarkdownWriter) WriteEvidence(report *model.EvidenceReport) (int, error) {
	if report == nil {
		return 0, ErrNoReport
	}

	md := markdown.NewMarkdown(w.output)
	w.writeEvidence(md, report)
	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, inv *model.Investigation) {
	md.H1("Exit Node Evidence Report")
	md.PlainText("")

	c := inv.Capture
	wl := inv.Watchlist
	rows := [][]string{
		{"Investigation", "`" + inv.ID + "`"},
		{"Started", inv.StartedAt.UTC().Format(timeLayout)},
		{"Capture", "`" + c.Path + "`"},
	}
	if c.Format != "" {
		rows = append(rows,
			[]string{"Format", c.Format + " " + c.LinkType},
			[]string{"Size", humanize.Bytes(uint64(max(c.Size, 0)))},
			[]string{"SHA3-256", "`" + shortDigest(c.Digest) + "`"},
			[]string{"Frames", w.count(c.Stats.Frames)},
		)
	}
	rows = append(rows,
		[]string{"Exit list", orDash(wl.Source)},
		[]string{"Exit list size", w.count(wl.Size)},
		[]string{"Exit list status", watchlistStatusText(wl.Status)},
		[]string{"Status", statusText(inv)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if wl.Status == model.WatchlistUnavailable {
		md.Cautionf("No exit list was available. The report cannot contain any match.")
		md.PlainText("")
	}
}

// writeEvidence writes the summary, chart, source and match tables.
func (w *MarkdownWriter) writeEvidence(md *markdown.Markdown, report *model.EvidenceReport) {
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Matches", w.count(report.TotalMatches)},
		{"Distinct sources", w.count(report.DistinctSources)},
	}
	if report.FirstContact != nil && report.LastContact != nil {
		rows = append(rows,
			[]string{"First contact", report.FirstContact.UTC().Format(model.ContactTimeLayout)},
			[]string{"Last contact", report.LastContact.UTC().Format(model.ContactTimeLayout)},
		)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if !report.HasMatches() {
		md.Tip("No host contacted a listed exit node.")
		md.PlainText("")
		return
	}

	md.Warningf("%s host(s) contacted a listed exit node %s time(s).",
		w.count(report.DistinctSources), w.count(report.TotalMatches))
	md.PlainText("")

	w.writePieChart(md, report)
	w.writeSources(md, report)
	w.writeMatches(md, report)
}

// writePieChart writes a mermaid pie chart of matches per source.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.EvidenceReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Matches per Source"),
		piechart.WithShowData(true),
	)

	var other uint64
	for i, s := range report.Sources {
		if i < maxChartSources {
			chart.LabelAndIntValue(s.Address, uint64(s.Matches)) //nolint:gosec // match counts are never negative
			continue
		}
		other += uint64(s.Matches) //nolint:gosec // match counts are never negative
	}
	if other > 0 {
		chart.LabelAndIntValue("Other", other)
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeSources writes the suspect source table.
func (w *MarkdownWriter) writeSources(md *markdown.Markdown, report *model.EvidenceReport) {
	md.H2("Suspect Sources")
	md.PlainText("")

	rows := make([][]string, len(report.Sources))
	for i, s := range report.Sources {
		rows[i] = []string{
			"`" + s.Address + "`",
			w.count(s.Matches),
			s.FirstContact.UTC().Format(model.ContactTimeLayout),
			s.LastContact.UTC().Format(model.ContactTimeLayout),
			strings.Join(s.Destinations, ", "),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Source", "Matches", "First Contact", "Last Contact", "Exit Nodes"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeMatches writes the match table in capture order.
func (w *MarkdownWriter) writeMatches(md *markdown.Markdown, report *model.EvidenceReport) {
	md.H2("Matches")
	md.PlainText("")

	rows := make([][]string, len(report.Matches))
	for i, m := range report.Matches {
		rows[i] = []string{
			indexText(m.Index),
			m.ContactTimeText(),
			"`" + m.Source + "`",
			"`" + m.Destination + "`",
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Packet", "Contact Time", "Source", "Exit Node"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDiagnostics writes warning counts with the full list folded.
func (w *MarkdownWriter) writeDiagnostics(md *markdown.Markdown, diags model.Diagnostics) {
	if len(diags) == 0 {
		return
	}

	md.H2("Warnings")
	md.PlainText("")

	summary := diags.Summary()
	rows := make([][]string, len(summary))
	for i, kc := range summary {
		rows[i] = []string{string(kc.Kind), w.count(kc.Count)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	lines := make([]string, len(diags))
	for i, d := range diags {
		lines[i] = d.String()
	}
	md.Details("All warnings", strings.Join(lines, "<br>"))
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [exitwatch](https://github.com/nao1215/exitwatch)*")
}

// orDash returns s, or "-" when s is empty.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
