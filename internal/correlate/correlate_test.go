package correlate

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/exitwatch/internal/model"
	"github.com/nao1215/exitwatch/internal/watchlist"
)

func record(index int, src, dst string) model.PacketRecord {
	return model.PacketRecord{
		Index:       index,
		Source:      src,
		Destination: dst,
		CapturedAt:  model.UnixTimestamp(1700000000+int64(index), 0),
		Protocol:    model.ProtocolIPv4,
	}
}

// TestCorrelate tests destination membership filtering.
func TestCorrelate(t *testing.T) {
	t.Parallel()

	t.Run("matches watched destination only", func(t *testing.T) {
		t.Parallel()

		set, _ := watchlist.NewSet("185.220.101.1")
		records := []model.PacketRecord{
			record(1, "192.168.1.5", "8.8.8.8"),
			record(2, "192.168.1.5", "185.220.101.1"),
		}

		got := Correlate(records, set)

		want := []model.MatchRecord{model.NewMatchRecord(records[1])}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("matches mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ignores watched source", func(t *testing.T) {
		t.Parallel()

		set, _ := watchlist.NewSet("185.220.101.1")
		got := Correlate([]model.PacketRecord{record(1, "185.220.101.1", "192.168.1.5")}, set)

		if len(got) != 0 {
			t.Errorf("expected no matches for inbound exit traffic, got %d", len(got))
		}
	})

	t.Run("preserves input order and duplicates", func(t *testing.T) {
		t.Parallel()

		set, _ := watchlist.NewSet("185.220.101.1", "2001:db8::1")
		records := []model.PacketRecord{
			record(1, "10.0.0.9", "2001:db8::1"),
			record(2, "10.0.0.5", "185.220.101.1"),
			record(3, "10.0.0.5", "1.1.1.1"),
			record(4, "10.0.0.5", "185.220.101.1"),
		}

		got := Correlate(records, set)

		indexes := make([]int, 0, len(got))
		for _, m := range got {
			indexes = append(indexes, m.Index)
		}
		if diff := cmp.Diff([]int{1, 2, 4}, indexes); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty set yields empty output", func(t *testing.T) {
		t.Parallel()

		empty, _ := watchlist.NewSet()
		records := []model.PacketRecord{record(1, "10.0.0.5", "185.220.101.1")}

		if got := Correlate(records, empty); len(got) != 0 {
			t.Errorf("expected no matches, got %d", len(got))
		}
		if got := Correlate(records, nil); got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice for nil matcher, got %v", got)
		}
	})

	t.Run("no records yields empty output", func(t *testing.T) {
		t.Parallel()

		set, _ := watchlist.NewSet("185.220.101.1")
		if got := Correlate(nil, set); len(got) != 0 {
			t.Errorf("expected no matches, got %d", len(got))
		}
	})
}
