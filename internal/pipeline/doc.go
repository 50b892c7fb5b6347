// Package pipeline runs the analysis stages over one capture, or over many
// captures concurrently.
//
// A run is an *model.Investigation passed through a fixed sequence of steps:
// load the exit list, read the capture, correlate destinations, aggregate
// evidence and optionally persist the result. Each step fills in its part of
// the investigation. The context is checked between steps, and the evidence
// report is only attached once aggregation has finished, so a cancelled run
// never carries a partial report.
//
// BatchProcessor analyses several captures with errgroup under a concurrency
// limit. Pipelines built by the same factory may share one WatchlistStep, in
// which case the exit list is loaded once and read by every run.
package pipeline
