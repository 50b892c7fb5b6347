// Package model defines the core data structures used throughout exitwatch.
//
// This package contains the following main types:
//   - PacketRecord: One network-layer packet extracted from a capture
//   - Timestamp: A validated seconds-since-epoch capture time
//   - MatchRecord: A packet whose destination is a watched exit address
//   - EvidenceReport: The ordered matches plus summary statistics
//   - Diagnostic: A non-fatal data-quality issue returned to the caller
//   - Investigation: One pipeline run over a single capture
//
// The models are serializable to JSON for report output and database storage.
package model
