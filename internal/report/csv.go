package report

import (
	"encoding/csv"
	"io"

	"github.com/nao1215/exitwatch/internal/model"
)

// csvHeader is the header row of CSV output.
var csvHeader = []string{"contact_time", "source_address", "destination_address"}

// CSVWriter outputs one row per match for spreadsheets and timeline tools.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the matches of the investigation's report.
func (w *CSVWriter) Write(inv *model.Investigation) (int, error) {
	return w.WriteEvidence(inv.Report)
}

// WriteEvidence outputs the header followed by one row per match in capture order.
func (w *CSVWriter) WriteEvidence(report *model.EvidenceReport) (int, error) {
	if report == nil {
		return 0, ErrNoReport
	}

	cw := &countingWriter{w: w.output}
	out := csv.NewWriter(cw)
	if err := out.Write(csvHeader); err != nil {
		return cw.n, err
	}
	for _, m := range report.Matches {
		if err := out.Write([]string{m.ContactTimeText(), m.Source, m.Destination}); err != nil {
			return cw.n, err
		}
	}
	out.Flush()
	return cw.n, out.Error()
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
