// Package evidence turns correlated matches into an ordered evidence report.
//
// Every match is kept, including exact repeats of the same source,
// destination and time, because repeated contacts are evidence too. Only
// the suspect source count is deduplicated. A match whose contact time
// cannot be derived is either dropped with a diagnostic or, in strict mode,
// aborts aggregation.
package evidence
