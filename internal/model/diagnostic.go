package model

import (
	"fmt"
	"sort"
)

// Pipeline stage names used in diagnostics and PerformedStages.
const (
	StageWatchlist = "watchlist"
	StageCapture   = "capture"
	StageCorrelate = "correlate"
	StageAggregate = "aggregate"
)

// DiagnosticKind classifies a non-fatal data-quality issue.
type DiagnosticKind string

const (
	// KindMalformedFrame is a frame whose network header could not be decoded.
	KindMalformedFrame DiagnosticKind = "malformed_frame"

	// KindTruncatedFrame is a kept record whose frame ended before the
	// length its IP header announces.
	KindTruncatedFrame DiagnosticKind = "truncated_frame"

	// KindTruncatedCapture means the capture ended inside a record.
	KindTruncatedCapture DiagnosticKind = "truncated_capture"

	// KindInvalidRow is a field-export row with the wrong shape.
	KindInvalidRow DiagnosticKind = "invalid_row"

	// KindInvalidAddress is a record whose address is not an IP literal.
	KindInvalidAddress DiagnosticKind = "invalid_address"

	// KindInvalidTimestamp is a record whose capture time cannot be used.
	KindInvalidTimestamp DiagnosticKind = "invalid_timestamp"

	// KindWatchlistUnavailable means no exit list could be loaded.
	KindWatchlistUnavailable DiagnosticKind = "watchlist_unavailable"

	// KindStaleWatchlist means an expired cached exit list was used.
	KindStaleWatchlist DiagnosticKind = "stale_watchlist"

	// KindInvalidWatchlistEntry is an exit list line that is not an IP literal.
	KindInvalidWatchlistEntry DiagnosticKind = "invalid_watchlist_entry"
)

// Diagnostic is a non-fatal issue returned upward by a pipeline stage.
// Stages never print; presentation is left to the caller.
type Diagnostic struct {
	// Stage is the pipeline stage that produced the diagnostic.
	Stage string `json:"stage"`

	// Kind classifies the issue.
	Kind DiagnosticKind `json:"kind"`

	// Index is the 1-based frame, row or line number, or 0 if not applicable.
	Index int `json:"index,omitempty"`

	// Message describes the issue.
	Message string `json:"message"`
}

// String returns a one-line rendering of the diagnostic.
func (d Diagnostic) String() string {
	if d.Index > 0 {
		return fmt.Sprintf("%s: %s #%d: %s", d.Stage, d.Kind, d.Index, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Stage, d.Kind, d.Message)
}

// Diagnostics is an ordered list of diagnostics.
type Diagnostics []Diagnostic

// KindCount is the number of diagnostics of one kind.
type KindCount struct {
	Kind  DiagnosticKind `json:"kind"`
	Count int            `json:"count"`
}

// Count returns the number of diagnostics.
func (d Diagnostics) Count() int {
	return len(d)
}

// CountKind returns the number of diagnostics of the given kind.
func (d Diagnostics) CountKind(kind DiagnosticKind) int {
	n := 0
	for _, diag := range d {
		if diag.Kind == kind {
			n++
		}
	}
	return n
}

// Summary returns per-kind counts sorted by kind name.
func (d Diagnostics) Summary() []KindCount {
	counts := make(map[DiagnosticKind]int)
	for _, diag := range d {
		counts[diag.Kind]++
	}

	summary := make([]KindCount, 0, len(counts))
	for kind, n := range counts {
		summary = append(summary, KindCount{Kind: kind, Count: n})
	}
	sort.Slice(summary, func(i, j int) bool {
		return summary[i].Kind < summary[j].Kind
	})
	return summary
}
