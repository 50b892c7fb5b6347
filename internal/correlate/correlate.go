package correlate

import "github.com/nao1215/exitwatch/internal/model"

// Matcher reports whether an address is watched.
// *watchlist.Set implements it.
type Matcher interface {
	Contains(addr string) bool
}

// Correlate returns a MatchRecord for every record whose destination is in
// watched, in input order. A nil matcher matches nothing.
func Correlate(records []model.PacketRecord, watched Matcher) []model.MatchRecord {
	matches := make([]model.MatchRecord, 0)
	if watched == nil {
		return matches
	}

	for _, r := range records {
		if watched.Contains(r.Destination) {
			matches = append(matches, model.NewMatchRecord(r))
		}
	}
	return matches
}
