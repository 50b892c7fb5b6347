package model

import (
	"time"

	"github.com/google/uuid"
)

// WatchlistStatus describes how the exit list for a run was obtained.
type WatchlistStatus string

const (
	// WatchlistLoaded means a current exit list was loaded.
	WatchlistLoaded WatchlistStatus = "loaded"

	// WatchlistStale means an expired cached exit list was used.
	WatchlistStale WatchlistStatus = "stale"

	// WatchlistUnavailable means no exit list was available; no match is possible.
	WatchlistUnavailable WatchlistStatus = "unavailable"
)

// CaptureStats counts what the capture reader saw.
type CaptureStats struct {
	// Frames is the number of frames (or export rows) read.
	Frames int `json:"frames"`

	// IPFrames is the number of frames that produced a PacketRecord.
	IPFrames int `json:"ip_frames"`

	// NonIPFrames is the number of frames silently skipped for lacking an IP header.
	NonIPFrames int `json:"non_ip_frames"`

	// MalformedFrames is the number of frames skipped with a diagnostic.
	MalformedFrames int `json:"malformed_frames"`
}

// CaptureInfo describes the capture analysed by a run.
type CaptureInfo struct {
	// Path is the capture file path, or "-" for standard input.
	Path string `json:"path"`

	// Format is "pcap", "pcapng" or "fields".
	Format string `json:"format"`

	// LinkType is the capture's link-layer type name.
	LinkType string `json:"link_type,omitempty"`

	// Size is the capture size in bytes.
	Size int64 `json:"size"`

	// Digest is the hex SHA3-256 digest of the capture bytes.
	Digest string `json:"digest"`

	// Stats counts frames by outcome.
	Stats CaptureStats `json:"stats"`
}

// WatchlistInfo describes the exit list used by a run.
type WatchlistInfo struct {
	// Source names where the list came from (file path or URL).
	Source string `json:"source"`

	// Size is the number of watched addresses.
	Size int `json:"size"`

	// Digest is the hex SHA3-256 digest of the list in line format.
	Digest string `json:"digest,omitempty"`

	// FetchedAt is when the list was obtained, if known.
	FetchedAt *time.Time `json:"fetched_at,omitempty"`

	// Status is how the list was obtained.
	Status WatchlistStatus `json:"status"`
}

// AddressSet is a read-only set of watched addresses.
type AddressSet interface {
	// Contains reports whether addr is watched.
	Contains(addr string) bool

	// Len returns the number of watched addresses.
	Len() int
}

// Investigation is one pipeline run over a single capture.
// Pipeline steps fill it in stage by stage.
type Investigation struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Capture describes the analysed capture.
	Capture CaptureInfo `json:"capture"`

	// Watchlist describes the exit list used.
	Watchlist WatchlistInfo `json:"watchlist"`

	// Watched is the address set used for correlation.
	Watched AddressSet `json:"-"`

	// Records holds the parsed packet records.
	Records []PacketRecord `json:"-"`

	// Matches holds the correlated matches before aggregation.
	Matches []MatchRecord `json:"-"`

	// Report is the evidence report. It is nil until aggregation completes.
	Report *EvidenceReport `json:"report,omitempty"`

	// Diagnostics collects non-fatal issues from every stage.
	Diagnostics Diagnostics `json:"diagnostics"`

	// PerformedStages lists the stages that ran, in order.
	PerformedStages []string `json:"performed_stages"`

	// Error is the fatal error that stopped the run, if any.
	Error error `json:"-"`

	// ErrorMessage is Error as text, for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// TimedOut is true when the run was cancelled between stages.
	TimedOut bool `json:"timed_out,omitempty"`
}

// NewInvestigation creates an Investigation for the capture at path.
func NewInvestigation(path string) *Investigation {
	return &Investigation{
		ID:              uuid.NewString(),
		StartedAt:       time.Now().UTC(),
		Capture:         CaptureInfo{Path: path},
		Diagnostics:     Diagnostics{},
		PerformedStages: make([]string, 0),
	}
}

// AddDiagnostics appends diagnostics to the run.
func (inv *Investigation) AddDiagnostics(diags ...Diagnostic) {
	inv.Diagnostics = append(inv.Diagnostics, diags...)
}

// Succeeded reports whether the run produced a report without a fatal error.
func (inv *Investigation) Succeeded() bool {
	return inv.Error == nil && inv.Report != nil
}
