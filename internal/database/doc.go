// Package database provides SQLite-based storage for exitwatch.
//
// The EvidenceDB stores:
//   - Analysis runs with their complete investigation as JSON
//   - Every match of every run, queryable by source address
//   - Exit list snapshots, so an investigation can be repeated against the
//     exact list it used
//
// Storage uses modernc.org/sqlite, a CGO-free driver; the database is a
// single file in the XDG data directory.
package database
