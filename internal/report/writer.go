package report

import (
	"errors"
	"io"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/exitwatch/internal/model"
)

// ErrNoReport is returned when an investigation has no evidence report to render.
var ErrNoReport = errors.New("investigation has no evidence report")

// Writer renders investigations in one output format.
type Writer interface {
	// Write outputs the investigation: run metadata, evidence and warnings.
	// Returns the number of bytes written and any error encountered.
	Write(inv *model.Investigation) (int, error)

	// WriteEvidence outputs only the evidence report.
	WriteEvidence(report *model.EvidenceReport) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the investigation to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(inv *model.Investigation) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(inv)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteEvidence outputs the evidence report to all configured Writers.
func (m *MultiWriter) WriteEvidence(report *model.EvidenceReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteEvidence(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output  io.Writer
	printer *message.Printer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{
		output:  output,
		printer: message.NewPrinter(language.English),
	}
}

// count formats n with digit grouping, e.g. 12,345.
func (b baseWriter) count(n int) string {
	return b.printer.Sprintf("%d", n)
}

// statusText describes how a run ended.
func statusText(inv *model.Investigation) string {
	switch {
	case inv.TimedOut:
		return "Cancelled (no report)"
	case inv.ErrorMessage != "":
		return "Error - " + inv.ErrorMessage
	default:
		return "Complete"
	}
}

// watchlistStatusText capitalizes a watchlist status for display.
func watchlistStatusText(status model.WatchlistStatus) string {
	if status == "" {
		return "Unknown"
	}
	return cases.Title(language.English).String(string(status))
}

// indexText renders a packet index.
func indexText(i int) string {
	return "#" + strconv.Itoa(i)
}

// shortDigest abbreviates a hex digest for display.
func shortDigest(digest string) string {
	if len(digest) <= 16 {
		return digest
	}
	return digest[:16]
}
