package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nao1215/exitwatch/internal/model"
)

// Snapshot is a loaded exit list together with where it came from.
type Snapshot struct {
	// Set holds the watched addresses. It is never nil on success.
	Set *Set

	// Source names the file or URL the list came from.
	Source string

	// FetchedAt is when the list was written or downloaded.
	FetchedAt time.Time

	// Stale is true when an expired cache was used because refreshing failed.
	Stale bool

	// Diagnostics holds non-fatal issues found while loading.
	Diagnostics model.Diagnostics
}

// Provider supplies the current watched address set.
type Provider interface {
	// Load returns the exit list, or an *UnavailableError when none exists.
	Load(ctx context.Context) (Snapshot, error)
}

// Fetcher downloads a fresh exit list.
type Fetcher interface {
	// Fetch downloads and parses the list.
	Fetch(ctx context.Context) (*Set, ParseStats, error)

	// Source names where the list is downloaded from.
	Source() string
}

// FileProvider loads the exit list from a file in line format.
type FileProvider struct {
	// Path is the list file.
	Path string
}

// NewFileProvider returns a provider for the list file at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// Load reads the list file.
func (p *FileProvider) Load(_ context.Context) (Snapshot, error) {
	info, err := os.Stat(p.Path)
	if err != nil {
		return Snapshot{}, &UnavailableError{Source: p.Path, Err: err}
	}

	set, stats, err := ReadFile(p.Path)
	if err != nil {
		return Snapshot{}, &UnavailableError{Source: p.Path, Err: err}
	}

	return Snapshot{
		Set:         set,
		Source:      p.Path,
		FetchedAt:   info.ModTime().UTC(),
		Diagnostics: stats.Diagnostics(p.Path),
	}, nil
}

// CachedProvider serves the exit list from a cache file and refreshes it
// with a Fetcher when the cache is missing or older than MaxAge.
type CachedProvider struct {
	// cachePath is the cache file in line format.
	cachePath string

	// fetcher refreshes the cache. It may be nil for cache-only operation.
	fetcher Fetcher

	// maxAge is how long a cache stays fresh. Zero means forever.
	maxAge time.Duration

	// now returns the current time.
	now func() time.Time

	// logger for structured logging.
	logger *slog.Logger
}

// CachedProviderOption configures a CachedProvider.
type CachedProviderOption func(*CachedProvider)

// WithFetcher sets the fetcher used to refresh the cache.
func WithFetcher(f Fetcher) CachedProviderOption {
	return func(p *CachedProvider) {
		p.fetcher = f
	}
}

// WithMaxAge sets how long a cached list stays fresh. Zero means forever.
func WithMaxAge(d time.Duration) CachedProviderOption {
	return func(p *CachedProvider) {
		p.maxAge = d
	}
}

// WithClock overrides the clock used to judge cache age.
func WithClock(now func() time.Time) CachedProviderOption {
	return func(p *CachedProvider) {
		p.now = now
	}
}

// WithProviderLogger sets a custom logger.
func WithProviderLogger(logger *slog.Logger) CachedProviderOption {
	return func(p *CachedProvider) {
		p.logger = logger
	}
}

// NewCachedProvider returns a provider backed by the cache file at cachePath.
func NewCachedProvider(cachePath string, opts ...CachedProviderOption) *CachedProvider {
	p := &CachedProvider{
		cachePath: cachePath,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load returns the cached list when fresh, otherwise a freshly fetched list.
// If fetching fails, an expired cache is still used and marked Stale.
func (p *CachedProvider) Load(ctx context.Context) (Snapshot, error) {
	var causes []error

	info, statErr := os.Stat(p.cachePath)
	cached := statErr == nil
	if !cached {
		causes = append(causes, statErr)
	}

	if cached && p.isFresh(info.ModTime()) {
		snap, err := p.readCache(info.ModTime())
		if err == nil {
			return snap, nil
		}
		causes = append(causes, err)
	}

	if p.fetcher != nil {
		snap, err := p.refresh(ctx)
		if err == nil {
			return snap, nil
		}
		p.logger.Warn("exit list refresh failed", "url", p.fetcher.Source(), "error", err)
		causes = append(causes, err)
	}

	if cached {
		snap, err := p.readCache(info.ModTime())
		if err == nil {
			snap.Stale = true
			snap.Diagnostics = append(snap.Diagnostics, model.Diagnostic{
				Stage: model.StageWatchlist,
				Kind:  model.KindStaleWatchlist,
				Message: fmt.Sprintf("using cached exit list from %s (%s old)",
					info.ModTime().UTC().Format(time.RFC3339), p.now().Sub(info.ModTime()).Round(time.Second)),
			})
			return snap, nil
		}
		causes = append(causes, err)
	}

	return Snapshot{}, &UnavailableError{Source: p.cachePath, Err: errors.Join(causes...)}
}

// Refresh downloads the list and replaces the cache regardless of its age.
func (p *CachedProvider) Refresh(ctx context.Context) (Snapshot, error) {
	if p.fetcher == nil {
		return Snapshot{}, errors.New("no exit list fetcher configured")
	}
	return p.refresh(ctx)
}

// CachePath returns the cache file path.
func (p *CachedProvider) CachePath() string {
	return p.cachePath
}

func (p *CachedProvider) isFresh(modTime time.Time) bool {
	if p.maxAge <= 0 {
		return true
	}
	return p.now().Sub(modTime) <= p.maxAge
}

func (p *CachedProvider) readCache(modTime time.Time) (Snapshot, error) {
	set, stats, err := ReadFile(p.cachePath)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Set:         set,
		Source:      p.cachePath,
		FetchedAt:   modTime.UTC(),
		Diagnostics: stats.Diagnostics(p.cachePath),
	}, nil
}

func (p *CachedProvider) refresh(ctx context.Context) (Snapshot, error) {
	set, stats, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	if err := WriteFile(p.cachePath, set); err != nil {
		// The downloaded list is still usable for this run.
		p.logger.Warn("failed to update exit list cache", "path", p.cachePath, "error", err)
	} else {
		p.logger.Info("exit list cache updated", "path", p.cachePath, "addresses", set.Len())
	}

	return Snapshot{
		Set:         set,
		Source:      p.fetcher.Source(),
		FetchedAt:   p.now().UTC(),
		Diagnostics: stats.Diagnostics(p.fetcher.Source()),
	}, nil
}

// ChainProvider tries providers in order and returns the first success.
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider returns a provider that falls through providers in order.
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

// Load returns the first successful snapshot, or an *UnavailableError
// joining every provider's failure.
func (c *ChainProvider) Load(ctx context.Context) (Snapshot, error) {
	causes := make([]error, 0, len(c.providers))
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		snap, err := p.Load(ctx)
		if err == nil {
			return snap, nil
		}
		causes = append(causes, err)
	}
	return Snapshot{}, &UnavailableError{Source: "all exit list sources", Err: errors.Join(causes...)}
}
