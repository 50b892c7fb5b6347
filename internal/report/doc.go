// Package report renders investigations for people and tools.
//
// Writers cover four formats:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: the evidence report together with run metadata
//   - MarkdownWriter: shareable Markdown with a pie chart of matches per source
//   - CSVWriter: one row per match (contact_time, source_address, destination_address)
//
// Every writer also renders the evidence report on its own through
// WriteEvidence; that output carries no run metadata, so identical inputs
// render to identical bytes.
package report
