package model

import (
	"sort"
	"time"
)

// EvidenceReport is the ordered, summarized result of correlating one capture.
// It contains no wall-clock or random data, so two runs over identical
// inputs encode to identical bytes.
type EvidenceReport struct {
	// Matches holds every kept match in capture order.
	// Identical (source, destination, time) entries are preserved.
	Matches []MatchRecord `json:"matches"`

	// TotalMatches is len(Matches).
	TotalMatches int `json:"total_matches"`

	// DistinctSources is the number of distinct source addresses in Matches.
	DistinctSources int `json:"distinct_sources"`

	// Sources tallies matches per source, highest count first.
	Sources []SourceTally `json:"sources"`

	// FirstContact is the earliest contact time, nil when there are no matches.
	FirstContact *time.Time `json:"first_contact,omitempty"`

	// LastContact is the latest contact time, nil when there are no matches.
	LastContact *time.Time `json:"last_contact,omitempty"`
}

// SourceTally summarizes the matches of one suspect source address.
type SourceTally struct {
	// Address is the source address.
	Address string `json:"address"`

	// Matches is the number of matches from this source.
	Matches int `json:"matches"`

	// Destinations lists the distinct watched destinations contacted, sorted.
	Destinations []string `json:"destinations"`

	// FirstContact is this source's earliest contact.
	FirstContact time.Time `json:"first_contact"`

	// LastContact is this source's latest contact.
	LastContact time.Time `json:"last_contact"`
}

// HasMatches reports whether the report contains any match.
func (r *EvidenceReport) HasMatches() bool {
	return r != nil && r.TotalMatches > 0
}

// SourceAddresses returns the distinct source addresses, sorted.
func (r *EvidenceReport) SourceAddresses() []string {
	if r == nil {
		return nil
	}
	addrs := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		addrs = append(addrs, s.Address)
	}
	sort.Strings(addrs)
	return addrs
}
