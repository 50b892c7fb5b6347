package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/nao1215/exitwatch/internal/capture"
	"github.com/nao1215/exitwatch/internal/correlate"
	"github.com/nao1215/exitwatch/internal/evidence"
	"github.com/nao1215/exitwatch/internal/model"
	"github.com/nao1215/exitwatch/internal/watchlist"
)

// WatchlistStep loads the exit list and attaches it to the investigation.
//
// The list is loaded on first use and reused by every later Do call, so one
// WatchlistStep shared by several pipelines gives them the same set.
// An unavailable list is not fatal: the run continues with an empty set.
type WatchlistStep struct {
	// provider supplies the exit list.
	provider watchlist.Provider

	// logger for structured logging.
	logger *slog.Logger

	mu       sync.Mutex
	loaded   bool
	snapshot watchlist.Snapshot
	info     model.WatchlistInfo
	diags    model.Diagnostics
}

// WatchlistStepOption configures a WatchlistStep.
type WatchlistStepOption func(*WatchlistStep)

// WithWatchlistLogger sets a custom logger for the watchlist step.
func WithWatchlistLogger(logger *slog.Logger) WatchlistStepOption {
	return func(s *WatchlistStep) {
		s.logger = logger
	}
}

// NewWatchlistStep creates a step that loads the exit list from provider.
func NewWatchlistStep(provider watchlist.Provider, opts ...WatchlistStepOption) *WatchlistStep {
	s := &WatchlistStep{
		provider: provider,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *WatchlistStep) Name() string {
	return model.StageWatchlist
}

// Do loads the exit list once and attaches it to inv.
func (s *WatchlistStep) Do(ctx context.Context, inv *model.Investigation) error {
	if err := s.load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv.Watched = s.snapshot.Set
	inv.Watchlist = s.info
	inv.AddDiagnostics(s.diags...)
	return nil
}

// Snapshot returns the loaded exit list. ok is false before the first
// successful load.
func (s *WatchlistStep) Snapshot() (snap watchlist.Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.loaded
}

func (s *WatchlistStep) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	snap, err := s.provider.Load(ctx)
	switch {
	case err == nil:
		s.snapshot = snap
		s.diags = snap.Diagnostics
		s.info = model.WatchlistInfo{
			Source: snap.Source,
			Size:   snap.Set.Len(),
			Digest: snap.Set.Digest(),
			Status: model.WatchlistLoaded,
		}
		if !snap.FetchedAt.IsZero() {
			fetched := snap.FetchedAt.UTC()
			s.info.FetchedAt = &fetched
		}
		if snap.Stale {
			s.info.Status = model.WatchlistStale
		}
		s.logger.Debug("exit list loaded", "source", snap.Source, "addresses", snap.Set.Len(), "stale", snap.Stale)

	case errors.Is(err, watchlist.ErrUnavailable):
		empty, _ := watchlist.NewSet()
		s.snapshot = watchlist.Snapshot{Set: empty}
		s.info = model.WatchlistInfo{Status: model.WatchlistUnavailable}
		var unavailable *watchlist.UnavailableError
		if errors.As(err, &unavailable) {
			s.info.Source = unavailable.Source
		}
		s.diags = model.Diagnostics{{
			Stage:   model.StageWatchlist,
			Kind:    model.KindWatchlistUnavailable,
			Message: err.Error() + "; no match is possible",
		}}
		s.logger.Warn("exit list unavailable, continuing with an empty set", "error", err)

	default:
		return err
	}

	s.loaded = true
	return nil
}

// CaptureStep reads the capture named by the investigation.
// A capture that cannot be read or decoded is fatal for the run.
type CaptureStep struct {
	// fieldExport reads tshark field exports instead of pcap/pcapng.
	fieldExport bool

	// comma is the field export separator.
	comma rune

	// workers is the number of decode goroutines; zero means the default.
	workers int

	// stdin is read when the capture path is "-".
	stdin io.Reader

	// logger for structured logging.
	logger *slog.Logger
}

// CaptureStepOption configures a CaptureStep.
type CaptureStepOption func(*CaptureStep)

// WithFieldExport reads the input as a tshark field export.
func WithFieldExport(fieldExport bool) CaptureStepOption {
	return func(s *CaptureStep) {
		s.fieldExport = fieldExport
	}
}

// WithFieldSeparator sets the field export separator.
func WithFieldSeparator(comma rune) CaptureStepOption {
	return func(s *CaptureStep) {
		s.comma = comma
	}
}

// WithWorkers sets the number of frame decode goroutines.
func WithWorkers(n int) CaptureStepOption {
	return func(s *CaptureStep) {
		s.workers = n
	}
}

// WithStdin sets the reader used for the "-" capture path.
func WithStdin(r io.Reader) CaptureStepOption {
	return func(s *CaptureStep) {
		s.stdin = r
	}
}

// WithCaptureLogger sets a custom logger for the capture step.
func WithCaptureLogger(logger *slog.Logger) CaptureStepOption {
	return func(s *CaptureStep) {
		s.logger = logger
	}
}

// NewCaptureStep creates a capture reading step.
func NewCaptureStep(opts ...CaptureStepOption) *CaptureStep {
	s := &CaptureStep{
		comma:  '\t',
		stdin:  os.Stdin,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CaptureStep) Name() string {
	return model.StageCapture
}

// Do reads the capture into inv.Records.
func (s *CaptureStep) Do(ctx context.Context, inv *model.Investigation) error {
	opts := []capture.Option{
		capture.WithComma(s.comma),
		capture.WithLogger(s.logger),
	}
	if s.workers > 0 {
		opts = append(opts, capture.WithWorkers(s.workers))
	}

	path := inv.Capture.Path
	var (
		result *capture.Result
		err    error
	)
	switch {
	case path == capture.StdinPath && s.fieldExport:
		result, err = capture.ParseFieldExport(ctx, s.stdin, opts...)
	case path == capture.StdinPath:
		result, err = capture.Parse(ctx, s.stdin, opts...)
	case s.fieldExport:
		result, err = capture.ParseFieldExportFile(ctx, path, opts...)
	default:
		result, err = capture.ParseFile(ctx, path, opts...)
	}
	if err != nil {
		return err
	}

	inv.Capture = result.Info
	inv.Records = result.Records
	inv.AddDiagnostics(result.Diagnostics...)

	s.logger.Debug("capture read",
		"capture", path,
		"records", len(result.Records),
		"frames", result.Info.Stats.Frames,
	)
	return nil
}

// CorrelateStep matches packet destinations against the watched set.
type CorrelateStep struct{}

// NewCorrelateStep creates a correlation step.
func NewCorrelateStep() *CorrelateStep {
	return &CorrelateStep{}
}

// Name returns the step name.
func (s *CorrelateStep) Name() string {
	return model.StageCorrelate
}

// Do fills inv.Matches. Without a watched set nothing matches.
func (s *CorrelateStep) Do(_ context.Context, inv *model.Investigation) error {
	var watched correlate.Matcher
	if inv.Watched != nil {
		watched = inv.Watched
	}
	inv.Matches = correlate.Correlate(inv.Records, watched)
	return nil
}

// AggregateStep builds the evidence report from the matches.
type AggregateStep struct {
	// strictTimestamps aborts the run on an invalid contact time.
	strictTimestamps bool

	// logger for structured logging.
	logger *slog.Logger
}

// AggregateStepOption configures an AggregateStep.
type AggregateStepOption func(*AggregateStep)

// WithStrictTimestamps aborts the run on the first invalid contact time.
func WithStrictTimestamps(strict bool) AggregateStepOption {
	return func(s *AggregateStep) {
		s.strictTimestamps = strict
	}
}

// WithAggregateLogger sets a custom logger for the aggregate step.
func WithAggregateLogger(logger *slog.Logger) AggregateStepOption {
	return func(s *AggregateStep) {
		s.logger = logger
	}
}

// NewAggregateStep creates an aggregation step.
func NewAggregateStep(opts ...AggregateStepOption) *AggregateStep {
	s := &AggregateStep{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *AggregateStep) Name() string {
	return model.StageAggregate
}

// Do aggregates inv.Matches and attaches the finished report.
func (s *AggregateStep) Do(_ context.Context, inv *model.Investigation) error {
	report, diags, err := evidence.Aggregate(inv.Matches,
		evidence.WithStrictTimestamps(s.strictTimestamps),
		evidence.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	inv.AddDiagnostics(diags...)
	inv.Report = report
	return nil
}

// Saver persists a finished investigation.
// *database.EvidenceDB implements it.
type Saver interface {
	SaveInvestigation(ctx context.Context, inv *model.Investigation) (int64, error)
}

// SaveStep stores the investigation. Storage failures are logged and do not
// fail the run, since the report itself is complete.
type SaveStep struct {
	saver  Saver
	logger *slog.Logger
}

// NewSaveStep creates a persistence step.
func NewSaveStep(saver Saver, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{saver: saver, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do saves inv if it carries a report.
func (s *SaveStep) Do(ctx context.Context, inv *model.Investigation) error {
	if inv.Report == nil {
		return nil
	}
	id, err := s.saver.SaveInvestigation(ctx, inv)
	if err != nil {
		s.logger.Warn("failed to save investigation", "id", inv.ID, "error", err)
		return nil
	}
	s.logger.Debug("investigation saved", "id", inv.ID, "row", id)
	return nil
}
