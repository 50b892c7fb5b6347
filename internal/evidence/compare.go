package evidence

import (
	"sort"

	"github.com/nao1215/exitwatch/internal/model"
)

// Comparison describes how suspect sources changed between two reports.
type Comparison struct {
	// NewSources are sources present only in the current report.
	NewSources []model.SourceTally `json:"new_sources"`

	// GoneSources are sources present only in the previous report.
	GoneSources []model.SourceTally `json:"gone_sources"`

	// PersistingSources are sources present in both reports.
	PersistingSources []SourceDelta `json:"persisting_sources"`

	// MatchDelta is current.TotalMatches - previous.TotalMatches.
	MatchDelta int `json:"match_delta"`
}

// SourceDelta is the match count of one source in two reports.
type SourceDelta struct {
	// Address is the source address.
	Address string `json:"address"`

	// Previous is the match count in the previous report.
	Previous int `json:"previous"`

	// Current is the match count in the current report.
	Current int `json:"current"`
}

// Delta returns Current - Previous.
func (d SourceDelta) Delta() int {
	return d.Current - d.Previous
}

// HasChanges reports whether any source appeared or disappeared.
func (c *Comparison) HasChanges() bool {
	return len(c.NewSources) > 0 || len(c.GoneSources) > 0
}

// CompareSources compares the suspect sources of two reports.
// All lists are sorted by address.
func CompareSources(previous, current *model.EvidenceReport) (*Comparison, error) {
	if previous == nil || current == nil {
		return nil, ErrNoReport
	}

	prevByAddr := make(map[string]model.SourceTally, len(previous.Sources))
	for _, s := range previous.Sources {
		prevByAddr[s.Address] = s
	}
	curByAddr := make(map[string]model.SourceTally, len(current.Sources))
	for _, s := range current.Sources {
		curByAddr[s.Address] = s
	}

	result := &Comparison{
		NewSources:        make([]model.SourceTally, 0),
		GoneSources:       make([]model.SourceTally, 0),
		PersistingSources: make([]SourceDelta, 0),
		MatchDelta:        current.TotalMatches - previous.TotalMatches,
	}

	for addr, cur := range curByAddr {
		prev, ok := prevByAddr[addr]
		if !ok {
			result.NewSources = append(result.NewSources, cur)
			continue
		}
		result.PersistingSources = append(result.PersistingSources, SourceDelta{
			Address:  addr,
			Previous: prev.Matches,
			Current:  cur.Matches,
		})
	}
	for addr, prev := range prevByAddr {
		if _, ok := curByAddr[addr]; !ok {
			result.GoneSources = append(result.GoneSources, prev)
		}
	}

	sort.Slice(result.NewSources, func(i, j int) bool {
		return result.NewSources[i].Address < result.NewSources[j].Address
	})
	sort.Slice(result.GoneSources, func(i, j int) bool {
		return result.GoneSources[i].Address < result.GoneSources[j].Address
	})
	sort.Slice(result.PersistingSources, func(i, j int) bool {
		return result.PersistingSources[i].Address < result.PersistingSources[j].Address
	})

	return result, nil
}
