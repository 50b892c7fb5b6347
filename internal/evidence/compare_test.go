package evidence

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/exitwatch/internal/model"
)

// TestCompareSources tests comparing suspect sources across runs.
func TestCompareSources(t *testing.T) {
	t.Parallel()

	t.Run("classifies new, gone and persisting sources", func(t *testing.T) {
		t.Parallel()

		previous, _, err := Aggregate([]model.MatchRecord{
			match(1, "10.0.0.1", "185.220.101.1", 10),
			match(2, "10.0.0.2", "185.220.101.1", 20),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		current, _, err := Aggregate([]model.MatchRecord{
			match(1, "10.0.0.2", "185.220.101.1", 30),
			match(2, "10.0.0.2", "185.220.101.1", 40),
			match(3, "10.0.0.3", "185.220.101.9", 50),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := CompareSources(previous, current)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(got.NewSources) != 1 || got.NewSources[0].Address != "10.0.0.3" {
			t.Errorf("unexpected new sources %+v", got.NewSources)
		}
		if len(got.GoneSources) != 1 || got.GoneSources[0].Address != "10.0.0.1" {
			t.Errorf("unexpected gone sources %+v", got.GoneSources)
		}
		want := []SourceDelta{{Address: "10.0.0.2", Previous: 1, Current: 2}}
		if diff := cmp.Diff(want, got.PersistingSources); diff != "" {
			t.Errorf("persisting mismatch (-want +got):\n%s", diff)
		}
		if got.PersistingSources[0].Delta() != 1 {
			t.Errorf("expected delta 1, got %d", got.PersistingSources[0].Delta())
		}
		if got.MatchDelta != 1 {
			t.Errorf("expected match delta 1, got %d", got.MatchDelta)
		}
		if !got.HasChanges() {
			t.Error("expected changes")
		}
	})

	t.Run("identical reports have no changes", func(t *testing.T) {
		t.Parallel()

		report, _, err := Aggregate([]model.MatchRecord{match(1, "10.0.0.1", "185.220.101.1", 10)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := CompareSources(report, report)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.HasChanges() || got.MatchDelta != 0 {
			t.Errorf("expected no changes, got %+v", got)
		}
	})

	t.Run("missing report is an error", func(t *testing.T) {
		t.Parallel()

		if _, err := CompareSources(nil, &model.EvidenceReport{}); !errors.Is(err, ErrNoReport) {
			t.Errorf("expected ErrNoReport, got %v", err)
		}
	})
}
