package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/exitwatch/internal/model"
)

// timeLayout renders run and contact times in text reports.
const timeLayout = "2006-01-02 15:04:05 MST"

// ruleWidth is the width of section separators.
const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose lists every diagnostic instead of a count per kind.
	verbose bool

	// maxMatches limits the listed matches; zero lists all.
	maxMatches int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every diagnostic individually.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithMaxMatches limits how many matches are listed. Zero lists all.
func WithMaxMatches(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		if n >= 0 {
			w.maxMatches = n
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the investigation in human-readable format.
func (w *SimpleWriter) Write(inv *model.Investigation) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, inv)
	if inv.Report != nil {
		w.writeEvidence(&sb, inv.Report)
	}
	w.writeDiagnostics(&sb, inv.Diagnostics)

	return io.WriteString(w.output, sb.String())
}

// WriteEvidence outputs only the evidence sections.
func (w *SimpleWriter) WriteEvidence(report *model.EvidenceReport) (int, error) {
	if report == nil {
		return 0, ErrNoReport
	}

	var sb strings.Builder
	w.writeEvidence(&sb, report)
	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, inv *model.Investigation) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                    EXIT NODE EVIDENCE REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	c := inv.Capture
	fmt.Fprintf(sb, "Investigation:  %s\n", inv.ID)
	fmt.Fprintf(sb, "Started:        %s\n", inv.StartedAt.UTC().Format(timeLayout))
	fmt.Fprintf(sb, "Capture:        %s\n", c.Path)
	if c.Format != "" {
		fmt.Fprintf(sb, "Format:         %s %s, %s\n", c.Format, c.LinkType, humanize.Bytes(uint64(max(c.Size, 0))))
		fmt.Fprintf(sb, "SHA3-256:       %s\n", c.Digest)
		fmt.Fprintf(sb, "Frames:         %s (%s IP, %s non-IP, %s malformed)\n",
			w.count(c.Stats.Frames), w.count(c.Stats.IPFrames),
			w.count(c.Stats.NonIPFrames), w.count(c.Stats.MalformedFrames))
	}

	wl := inv.Watchlist
	source := wl.Source
	if source == "" {
		source = "-"
	}
	fmt.Fprintf(sb, "Exit list:      %s (%s addresses, %s)\n", source, w.count(wl.Size), watchlistStatusText(wl.Status))
	if wl.FetchedAt != nil {
		fmt.Fprintf(sb, "List age:       fetched %s\n", humanize.RelTime(*wl.FetchedAt, inv.StartedAt, "before the run", "after the run"))
	}
	fmt.Fprintf(sb, "Status:         %s\n", statusText(inv))
	sb.WriteString("\n")
}

// writeEvidence writes summary, sources and matches.
func (w *SimpleWriter) writeEvidence(sb *strings.Builder, report *model.EvidenceReport) {
	writeSection(sb, "SUMMARY")

	fmt.Fprintf(sb, "  Matches:           %s\n", w.count(report.TotalMatches))
	fmt.Fprintf(sb, "  Distinct sources:  %s\n", w.count(report.DistinctSources))
	if report.FirstContact != nil && report.LastContact != nil {
		fmt.Fprintf(sb, "  First contact:     %s\n", report.FirstContact.UTC().Format(model.ContactTimeLayout))
		fmt.Fprintf(sb, "  Last contact:      %s\n", report.LastContact.UTC().Format(model.ContactTimeLayout))
	}
	sb.WriteString("\n")

	if !report.HasMatches() {
		sb.WriteString("  No host contacted a listed exit node.\n\n")
		return
	}

	writeSection(sb, "SUSPECT SOURCES")
	for _, s := range report.Sources {
		fmt.Fprintf(sb, "  %-39s %s match(es)\n", s.Address, w.count(s.Matches))
		fmt.Fprintf(sb, "      first %s, last %s\n",
			s.FirstContact.UTC().Format(model.ContactTimeLayout),
			s.LastContact.UTC().Format(model.ContactTimeLayout))
		fmt.Fprintf(sb, "      exit nodes: %s\n", strings.Join(s.Destinations, ", "))
	}
	sb.WriteString("\n")

	writeSection(sb, "MATCHES")
	matches := report.Matches
	if w.maxMatches > 0 && len(matches) > w.maxMatches {
		matches = matches[:w.maxMatches]
	}
	for _, m := range matches {
		fmt.Fprintf(sb, "  %-8s %s  %s -> %s\n", indexText(m.Index), m.ContactTimeText(), m.Source, m.Destination)
	}
	if hidden := len(report.Matches) - len(matches); hidden > 0 {
		fmt.Fprintf(sb, "  ... %s more match(es) not shown\n", w.count(hidden))
	}
	sb.WriteString("\n")
}

// writeDiagnostics writes the warnings section.
func (w *SimpleWriter) writeDiagnostics(sb *strings.Builder, diags model.Diagnostics) {
	if len(diags) == 0 {
		return
	}

	writeSection(sb, "WARNINGS")
	if w.verbose {
		for _, d := range diags {
			fmt.Fprintf(sb, "  %s\n", d.String())
		}
	} else {
		for _, kc := range diags.Summary() {
			fmt.Fprintf(sb, "  %-24s %s\n", kc.Kind, w.count(kc.Count))
		}
	}
	sb.WriteString("\n")
}

// writeSection writes a section title between rules.
func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}
