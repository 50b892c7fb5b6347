package evidence

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nao1215/exitwatch/internal/model"
)

// options configures Aggregate.
type options struct {
	strictTimestamps bool
	logger           *slog.Logger
}

// Option configures Aggregate.
type Option func(*options)

// WithStrictTimestamps makes Aggregate fail on the first match whose
// contact time could not be derived, instead of dropping it.
func WithStrictTimestamps(strict bool) Option {
	return func(o *options) {
		o.strictTimestamps = strict
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Aggregate builds the evidence report for matches, which must be in
// capture order. The returned diagnostics describe dropped matches.
//
// In strict mode the first contact time failure is returned as an error
// wrapping the *model.TimestampError and no report is produced.
func Aggregate(matches []model.MatchRecord, opts ...Option) (*model.EvidenceReport, model.Diagnostics, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	kept := make([]model.MatchRecord, 0, len(matches))
	var diags model.Diagnostics
	for _, m := range matches {
		if err := m.ContactTimeErr(); err != nil {
			if o.strictTimestamps {
				return nil, nil, fmt.Errorf("match for packet %d: %w", m.Index, err)
			}
			diags = append(diags, model.Diagnostic{
				Stage:   model.StageAggregate,
				Kind:    model.KindInvalidTimestamp,
				Index:   m.Index,
				Message: "match dropped: " + err.Error(),
			})
			continue
		}
		kept = append(kept, m)
	}

	if len(diags) > 0 {
		o.logger.Warn("matches dropped for invalid timestamps", "dropped", len(diags), "kept", len(kept))
	}

	report := &model.EvidenceReport{
		Matches:      kept,
		TotalMatches: len(kept),
		Sources:      tallySources(kept),
	}
	report.DistinctSources = len(report.Sources)

	if len(kept) > 0 {
		first, last := kept[0].ContactTime, kept[0].ContactTime
		for _, m := range kept[1:] {
			if m.ContactTime.Before(first) {
				first = m.ContactTime
			}
			if m.ContactTime.After(last) {
				last = m.ContactTime
			}
		}
		report.FirstContact = &first
		report.LastContact = &last
	}

	return report, diags, nil
}

// tallySources groups matches by source, most matches first and ties
// broken by address.
func tallySources(matches []model.MatchRecord) []model.SourceTally {
	type tally struct {
		matches      int
		destinations map[string]struct{}
		first, last  time.Time
	}

	bySource := make(map[string]*tally)
	for _, m := range matches {
		t, ok := bySource[m.Source]
		if !ok {
			t = &tally{
				destinations: make(map[string]struct{}),
				first:        m.ContactTime,
				last:         m.ContactTime,
			}
			bySource[m.Source] = t
		}
		t.matches++
		t.destinations[m.Destination] = struct{}{}
		if m.ContactTime.Before(t.first) {
			t.first = m.ContactTime
		}
		if m.ContactTime.After(t.last) {
			t.last = m.ContactTime
		}
	}

	sources := make([]model.SourceTally, 0, len(bySource))
	for addr, t := range bySource {
		dests := make([]string, 0, len(t.destinations))
		for d := range t.destinations {
			dests = append(dests, d)
		}
		sort.Strings(dests)

		sources = append(sources, model.SourceTally{
			Address:      addr,
			Matches:      t.matches,
			Destinations: dests,
			FirstContact: t.first,
			LastContact:  t.last,
		})
	}

	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Matches != sources[j].Matches {
			return sources[i].Matches > sources[j].Matches
		}
		return sources[i].Address < sources[j].Address
	})
	return sources
}
