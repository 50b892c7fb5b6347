package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestDiagnostics tests counting and summarizing diagnostics.
func TestDiagnostics(t *testing.T) {
	t.Parallel()

	diags := Diagnostics{
		{Stage: StageCapture, Kind: KindMalformedFrame, Index: 4, Message: "short IPv4 header"},
		{Stage: StageAggregate, Kind: KindInvalidTimestamp, Index: 9, Message: "timestamp missing"},
		{Stage: StageCapture, Kind: KindMalformedFrame, Index: 12, Message: "short IPv4 header"},
		{Stage: StageWatchlist, Kind: KindStaleWatchlist, Message: "cache is old"},
	}

	if diags.Count() != 4 {
		t.Errorf("expected 4 diagnostics, got %d", diags.Count())
	}
	if diags.CountKind(KindMalformedFrame) != 2 {
		t.Errorf("expected 2 malformed frames, got %d", diags.CountKind(KindMalformedFrame))
	}

	want := []KindCount{
		{Kind: KindInvalidTimestamp, Count: 1},
		{Kind: KindMalformedFrame, Count: 2},
		{Kind: KindStaleWatchlist, Count: 1},
	}
	if diff := cmp.Diff(want, diags.Summary()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	if got := diags[0].String(); got != "capture: malformed_frame #4: short IPv4 header" {
		t.Errorf("unexpected string %q", got)
	}
	if got := diags[3].String(); got != "watchlist: stale_watchlist: cache is old" {
		t.Errorf("unexpected string %q", got)
	}
}

// TestNewInvestigation tests run initialization.
func TestNewInvestigation(t *testing.T) {
	t.Parallel()

	a := NewInvestigation("a.pcap")
	b := NewInvestigation("a.pcap")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Capture.Path != "a.pcap" {
		t.Errorf("expected capture path, got %q", a.Capture.Path)
	}
	if a.Succeeded() {
		t.Error("expected new investigation not to have succeeded")
	}

	a.Report = &EvidenceReport{}
	if !a.Succeeded() {
		t.Error("expected investigation with report to succeed")
	}
}
