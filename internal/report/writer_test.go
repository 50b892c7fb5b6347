package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/exitwatch/internal/evidence"
	"github.com/nao1215/exitwatch/internal/model"
)

func sampleReport(t *testing.T) *model.EvidenceReport {
	t.Helper()

	matches := []model.MatchRecord{
		model.NewMatchRecord(model.PacketRecord{
			Index: 2, Source: "192.168.1.5", Destination: "185.220.101.1",
			CapturedAt: model.UnixTimestamp(1700000001, 0), Protocol: model.ProtocolIPv4,
		}),
		model.NewMatchRecord(model.PacketRecord{
			Index: 5, Source: "10.0.0.7", Destination: "185.220.101.1",
			CapturedAt: model.UnixTimestamp(1700000002, 500000000), Protocol: model.ProtocolIPv4,
		}),
		model.NewMatchRecord(model.PacketRecord{
			Index: 9, Source: "192.168.1.5", Destination: "185.220.101.2",
			CapturedAt: model.UnixTimestamp(1700000003, 0), Protocol: model.ProtocolIPv4,
		}),
	}

	report, _, err := evidence.Aggregate(matches)
	if err != nil {
		t.Fatalf("failed to aggregate: %v", err)
	}
	return report
}

func sampleInvestigation(t *testing.T) *model.Investigation {
	t.Helper()

	fetched := time.Date(2023, 11, 14, 20, 0, 0, 0, time.UTC)
	inv := model.NewInvestigation("case.pcap")
	inv.StartedAt = time.Date(2023, 11, 14, 22, 0, 0, 0, time.UTC)
	inv.Capture = model.CaptureInfo{
		Path:     "case.pcap",
		Format:   "pcap",
		LinkType: "Ethernet",
		Size:     2048,
		Digest:   strings.Repeat("ab", 32),
		Stats:    model.CaptureStats{Frames: 12345, IPFrames: 12000, NonIPFrames: 344, MalformedFrames: 1},
	}
	inv.Watchlist = model.WatchlistInfo{
		Source:    "tor_exit_nodes.txt",
		Size:      1200,
		FetchedAt: &fetched,
		Status:    model.WatchlistLoaded,
	}
	inv.Report = sampleReport(t)
	inv.AddDiagnostics(model.Diagnostic{
		Stage: model.StageCapture, Kind: model.KindMalformedFrame, Index: 7, Message: "truncated IPv4 header",
	})
	return inv
}

// TestSimpleWriter tests the human-readable text output.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("full investigation", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(sampleInvestigation(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		out := buf.String()
		for _, want := range []string{
			"EXIT NODE EVIDENCE REPORT",
			"case.pcap",
			"12,345",
			"2.0 kB",
			"Loaded",
			"fetched 2 hours before the run",
			"Distinct sources:  2",
			"192.168.1.5",
			"185.220.101.1, 185.220.101.2",
			"#2       2023-11-14 22:13:21.000000 UTC  192.168.1.5 -> 185.220.101.1",
			"malformed_frame",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "truncated IPv4 header") {
			t.Error("non-verbose output should only summarize diagnostics")
		}
	})

	t.Run("verbose lists every diagnostic", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(sampleInvestigation(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "capture: malformed_frame #7: truncated IPv4 header") {
			t.Errorf("verbose output missing diagnostic:\n%s", buf.String())
		}
	})

	t.Run("max matches hides the rest", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithMaxMatches(1)).WriteEvidence(sampleReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "2 more match(es) not shown") {
			t.Errorf("expected truncation notice:\n%s", buf.String())
		}
	})

	t.Run("empty report", func(t *testing.T) {
		t.Parallel()

		report, _, err := evidence.Aggregate(nil)
		if err != nil {
			t.Fatalf("failed to aggregate: %v", err)
		}

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteEvidence(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No host contacted a listed exit node.") {
			t.Errorf("expected empty notice:\n%s", buf.String())
		}
	})

	t.Run("cancelled run has no evidence", func(t *testing.T) {
		t.Parallel()

		inv := model.NewInvestigation("case.pcap")
		inv.TimedOut = true

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(inv); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Cancelled (no report)") {
			t.Errorf("expected cancelled status:\n%s", buf.String())
		}
		if strings.Contains(buf.String(), "SUMMARY") {
			t.Error("cancelled run should not render a summary")
		}
	})
}

// TestJSONWriter tests the JSON output.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("investigation document", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(sampleInvestigation(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var doc struct {
			ID                string                `json:"id"`
			Report            *model.EvidenceReport `json:"report"`
			DiagnosticSummary []model.KindCount     `json:"diagnostic_summary"`
			Watchlist         model.WatchlistInfo   `json:"watchlist"`
		}
		if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if doc.ID == "" {
			t.Error("expected investigation id")
		}
		if doc.Report == nil || doc.Report.TotalMatches != 3 {
			t.Fatalf("expected report with 3 matches, got %+v", doc.Report)
		}
		want := []model.KindCount{{Kind: model.KindMalformedFrame, Count: 1}}
		if diff := cmp.Diff(want, doc.DiagnosticSummary); diff != "" {
			t.Errorf("diagnostic summary mismatch (-want +got):\n%s", diff)
		}
		if doc.Watchlist.Status != model.WatchlistLoaded {
			t.Errorf("expected loaded watchlist, got %q", doc.Watchlist.Status)
		}
	})

	t.Run("evidence is byte-identical across runs", func(t *testing.T) {
		t.Parallel()

		var first, second bytes.Buffer
		if _, err := NewJSONWriter(&first).WriteEvidence(sampleReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := NewJSONWriter(&second).WriteEvidence(sampleReport(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(first.Bytes(), second.Bytes()) {
			t.Errorf("outputs differ:\n%s\n%s", first.String(), second.String())
		}
		if !bytes.HasSuffix(first.Bytes(), []byte("\n")) {
			t.Error("expected trailing newline")
		}
	})

	t.Run("marshal investigation", func(t *testing.T) {
		t.Parallel()

		data, err := MarshalInvestigation(sampleInvestigation(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !json.Valid(data) {
			t.Error("expected valid JSON")
		}
	})
}

// TestMarkdownWriter tests the Markdown output.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("full investigation", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(sampleInvestigation(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := buf.String()
		for _, want := range []string{
			"# Exit Node Evidence Report",
			"## Suspect Sources",
			"## Matches",
			"```mermaid",
			"Matches per Source",
			"`192.168.1.5`",
			"## Warnings",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("unavailable watchlist raises caution", func(t *testing.T) {
		t.Parallel()

		inv := sampleInvestigation(t)
		inv.Watchlist.Status = model.WatchlistUnavailable

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(inv); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!CAUTION]") {
			t.Errorf("expected caution alert:\n%s", buf.String())
		}
	})
}

// TestCSVWriter tests the CSV output.
func TestCSVWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := NewCSVWriter(&buf).Write(sampleInvestigation(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != buf.Len() {
		t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
	}

	want := "contact_time,source_address,destination_address\n" +
		"2023-11-14 22:13:21.000000 UTC,192.168.1.5,185.220.101.1\n" +
		"2023-11-14 22:13:22.500000 UTC,10.0.0.7,185.220.101.1\n" +
		"2023-11-14 22:13:23.000000 UTC,192.168.1.5,185.220.101.2\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

// TestWritersWithoutReport tests that WriteEvidence rejects a nil report.
func TestWritersWithoutReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writers := map[string]Writer{
		"simple":   NewSimpleWriter(&buf),
		"json":     NewJSONWriter(&buf),
		"markdown": NewMarkdownWriter(&buf),
		"csv":      NewCSVWriter(&buf),
	}
	for name, w := range writers {
		if _, err := w.WriteEvidence(nil); !errors.Is(err, ErrNoReport) {
			t.Errorf("%s: expected ErrNoReport, got %v", name, err)
		}
	}
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, csvOut bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&text), NewCSVWriter(&csvOut))

	n, err := mw.Write(sampleInvestigation(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != text.Len()+csvOut.Len() {
		t.Errorf("expected %d bytes, got %d", text.Len()+csvOut.Len(), n)
	}
	if text.Len() == 0 || csvOut.Len() == 0 {
		t.Error("expected output from every writer")
	}
}
