package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/exitwatch/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// jsonInvestigation is the JSON document for a full run.
type jsonInvestigation struct {
	*model.Investigation

	// DiagnosticSummary counts diagnostics per kind.
	DiagnosticSummary []model.KindCount `json:"diagnostic_summary"`
}

// Write outputs the investigation with its report and run metadata.
func (w *JSONWriter) Write(inv *model.Investigation) (int, error) {
	return w.writeJSON(jsonInvestigation{
		Investigation:     inv,
		DiagnosticSummary: inv.Diagnostics.Summary(),
	})
}

// WriteEvidence outputs only the evidence report.
func (w *JSONWriter) WriteEvidence(report *model.EvidenceReport) (int, error) {
	if report == nil {
		return 0, ErrNoReport
	}
	return w.writeJSON(report)
}

// writeJSON encodes v followed by a newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// MarshalInvestigation returns the indented JSON document of inv.
func MarshalInvestigation(inv *model.Investigation) ([]byte, error) {
	return json.MarshalIndent(jsonInvestigation{
		Investigation:     inv,
		DiagnosticSummary: inv.Diagnostics.Summary(),
	}, "", "  ")
}
