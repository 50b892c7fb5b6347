package watchlist

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultExitListURL is the Tor Project's bulk exit list, one address per line.
const DefaultExitListURL = "https://check.torproject.org/torbulkexitlist"

// DefaultMaxListSize bounds the downloaded list body.
const DefaultMaxListSize = 16 * 1024 * 1024

// HTTPFetcher downloads the exit list over HTTP.
// The client decides the route: direct, or through Tor via internal/tor.
type HTTPFetcher struct {
	client      *http.Client
	url         string
	userAgent   string
	maxBodySize int64
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithURL overrides the list URL.
func WithURL(url string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.url = url
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize bounds the response body.
func WithMaxBodySize(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// NewHTTPFetcher returns a fetcher using client. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client, opts ...FetcherOption) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:      client,
		url:         DefaultExitListURL,
		maxBodySize: DefaultMaxListSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Source returns the list URL.
func (f *HTTPFetcher) Source() string {
	return f.url
}

// Fetch downloads and parses the list. A non-200 answer or an empty list is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*Set, ParseStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("failed to build exit list request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("failed to fetch exit list from %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for reuse
		return nil, ParseStats{}, fmt.Errorf("%w from %s: %s", ErrUnexpectedStatus, f.url, resp.Status)
	}

	set, stats, err := Read(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, stats, err
	}
	if set.Len() == 0 {
		return nil, stats, fmt.Errorf("%w: %s", ErrEmptyList, f.url)
	}
	return set, stats, nil
}
