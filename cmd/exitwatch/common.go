package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nao1215/exitwatch/internal/config"
	"github.com/nao1215/exitwatch/internal/database"
	applog "github.com/nao1215/exitwatch/internal/log"
	"github.com/nao1215/exitwatch/internal/report"
	"github.com/nao1215/exitwatch/internal/tor"
	"github.com/nao1215/exitwatch/internal/watchlist"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the secure logger writing to the command's stderr.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return applog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose,
		applog.WithAddressRedaction(cfg.Redact))
}

// addConfigFlags registers the flags every command shares for locating
// settings and the evidence database.
func addConfigFlags(cmd *cobra.Command, persistent bool) {
	fs := cmd.Flags()
	if persistent {
		fs = cmd.PersistentFlags()
	}
	fs.StringP("config", "c", "",
		"Configuration file path (default: .exitwatch in current or home directory)")
	fs.String("db-dir", "",
		"Evidence database directory (default: XDG data directory)")
}

// addWatchlistFlags registers the flags that choose and download the exit list.
func addWatchlistFlags(cmd *cobra.Command, persistent bool) {
	fs := cmd.Flags()
	if persistent {
		fs = cmd.PersistentFlags()
	}
	fs.StringP("watchlist", "W", "",
		"Exit list file, one address per line (disables the cache and downloads)")
	fs.StringP("url", "u", config.DefaultExitListURL,
		"Exit list download URL")
	fs.String("cache", "",
		"Exit list cache file (default: XDG cache directory)")
	fs.Duration("max-age", config.DefaultMaxAge,
		"How long the cached exit list counts as current (0 keeps it forever)")
	fs.StringP("external-tor", "e", "",
		"Download through an existing Tor SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	fs.Bool("embedded-tor", false,
		"Download through an embedded Tor daemon")
	fs.DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	fs.Duration("fetch-timeout", config.DefaultFetchTimeout,
		"Timeout for one exit list download")
}

// loadConfig builds the configuration from defaults and the config file.
// An explicitly named file that does not exist is an error; a missing
// default file is not.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	found := config.FindConfigFile(configPath)
	switch {
	case found != "":
		file, err := config.LoadConfigFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		file.Apply(cfg)
		cfg.ConfigFilePath = found
	case configPath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	if cmd.Flags().Changed("db-dir") {
		if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
			return nil, err
		}
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// applyWatchlistFlags copies the exit list flags the user set onto cfg.
func applyWatchlistFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	var err error

	if fs.Changed("watchlist") {
		if cfg.WatchlistPath, err = fs.GetString("watchlist"); err != nil {
			return err
		}
	}
	if fs.Changed("url") {
		if cfg.ExitListURL, err = fs.GetString("url"); err != nil {
			return err
		}
	}
	if fs.Changed("cache") {
		if cfg.CachePath, err = fs.GetString("cache"); err != nil {
			return err
		}
	}
	if fs.Changed("max-age") {
		if cfg.MaxAge, err = fs.GetDuration("max-age"); err != nil {
			return err
		}
	}
	if fs.Changed("tor-timeout") {
		if cfg.TorStartupTimeout, err = fs.GetDuration("tor-timeout"); err != nil {
			return err
		}
	}
	if fs.Changed("fetch-timeout") {
		if cfg.FetchTimeout, err = fs.GetDuration("fetch-timeout"); err != nil {
			return err
		}
	}

	externalTor, err := fs.GetString("external-tor")
	if err != nil {
		return err
	}
	embeddedTor, err := fs.GetBool("embedded-tor")
	if err != nil {
		return err
	}
	switch {
	case externalTor != "" && embeddedTor:
		return config.ErrConflictingTorModes
	case externalTor != "":
		cfg.TorMode = config.TorModeExternal
		cfg.TorProxyAddress = externalTor
	case embeddedTor:
		cfg.TorMode = config.TorModeEmbedded
	}

	return nil
}

// exitListFetcher downloads the exit list over the configured route.
// Tor is only contacted on the first Fetch, so a run served from a fresh
// cache never starts a daemon.
type exitListFetcher struct {
	cfg    *config.Config
	logger *slog.Logger
	status io.Writer

	once     sync.Once
	fetcher  *watchlist.HTTPFetcher
	embedded *tor.EmbeddedTor
	initErr  error
}

// newExitListFetcher creates a fetcher. Progress notes go to status.
func newExitListFetcher(cfg *config.Config, logger *slog.Logger, status io.Writer) *exitListFetcher {
	return &exitListFetcher{cfg: cfg, logger: logger, status: status}
}

// Source implements watchlist.Fetcher.
func (f *exitListFetcher) Source() string {
	return f.cfg.ExitListURL
}

// Fetch implements watchlist.Fetcher.
func (f *exitListFetcher) Fetch(ctx context.Context) (*watchlist.Set, watchlist.ParseStats, error) {
	f.once.Do(func() {
		f.fetcher, f.initErr = f.connect(ctx)
	})
	if f.initErr != nil {
		return nil, watchlist.ParseStats{}, f.initErr
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()
	return f.fetcher.Fetch(ctx)
}

// connect prepares the HTTP client for the configured Tor mode.
func (f *exitListFetcher) connect(ctx context.Context) (*watchlist.HTTPFetcher, error) {
	var client *http.Client

	switch f.cfg.TorMode {
	case config.TorModeExternal:
		c, err := tor.NewClient(f.cfg.TorProxyAddress, f.cfg.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := c.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, fmt.Errorf("tor proxy check failed: %w (make sure Tor is running at %s)",
				status.Err(), f.cfg.TorProxyAddress)
		}
		f.logger.Info("Tor proxy connection verified", "address", f.cfg.TorProxyAddress)
		client = c.NewHTTPClient()

	case config.TorModeEmbedded:
		fmt.Fprintln(f.status, "Starting embedded Tor daemon to download the exit list.")
		fmt.Fprintln(f.status, "This may take 1-3 minutes while Tor bootstraps.")

		e := tor.NewEmbeddedTor(
			tor.WithStartupTimeout(f.cfg.TorStartupTimeout),
			tor.WithLogger(f.logger),
		)
		if err := e.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		f.embedded = e

		c, err := e.NewClient(f.cfg.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		client = c.NewHTTPClient()

	default:
		client = &http.Client{Timeout: f.cfg.FetchTimeout}
	}

	return watchlist.NewHTTPFetcher(client,
		watchlist.WithURL(f.cfg.ExitListURL),
		watchlist.WithUserAgent(f.cfg.UserAgent),
		watchlist.WithMaxBodySize(f.cfg.MaxListSize),
	), nil
}

// Close stops the embedded Tor daemon if one was started.
func (f *exitListFetcher) Close() error {
	if f.embedded == nil {
		return nil
	}
	f.logger.Info("stopping embedded Tor daemon")
	return f.embedded.Stop()
}

// newWatchlistProvider returns the exit list source for cfg: an explicit
// file, or the cache refreshed by fetcher and backed by the snapshots in db.
// fetcher and db may be nil.
func newWatchlistProvider(cfg *config.Config, fetcher *exitListFetcher, db *database.EvidenceDB, logger *slog.Logger) watchlist.Provider {
	if cfg.WatchlistPath != "" {
		return watchlist.NewFileProvider(cfg.WatchlistPath)
	}

	opts := []watchlist.CachedProviderOption{
		watchlist.WithMaxAge(cfg.MaxAge),
		watchlist.WithProviderLogger(logger),
	}
	if fetcher != nil {
		opts = append(opts, watchlist.WithFetcher(fetcher))
	}
	cached := watchlist.NewCachedProvider(cfg.CachePath, opts...)

	if db == nil {
		return cached
	}
	return watchlist.NewChainProvider(cached, database.NewSnapshotProvider(db))
}

// openDB opens the evidence database, or returns nil when saving is disabled.
func openDB(cfg *config.Config) (*database.EvidenceDB, error) {
	if !cfg.SaveToDB {
		return nil, nil //nolint:nilnil // saving disabled
	}
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// saveSnapshot stores a non-empty exit list in db. Failures are logged.
func saveSnapshot(ctx context.Context, db *database.EvidenceDB, snap watchlist.Snapshot, logger *slog.Logger) {
	if db == nil || snap.Set == nil || snap.Set.Len() == 0 {
		return
	}
	id, err := db.SaveWatchlistSnapshot(ctx, snap)
	if err != nil {
		logger.Warn("failed to save exit list snapshot", "error", err)
		return
	}
	logger.Debug("exit list snapshot saved", "id", id, "digest", snap.Set.Digest())
}

// openOutput returns path opened for writing, or stdout when path is empty.
// Reports name suspect hosts, so files are created owner-only.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen report path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// reportFormat is the output format chosen by --json, --markdown and --csv.
type reportFormat int

const (
	formatText reportFormat = iota
	formatJSON
	formatMarkdown
	formatCSV
)

// addFormatFlags registers the report format flags.
func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown and --csv)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json and --csv)")
	cmd.Flags().Bool("csv", false,
		"Output CSV rows contact_time,source_address,destination_address")
}

// getFormat reads the report format flags.
func getFormat(cmd *cobra.Command) (reportFormat, error) {
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return formatText, err
	}
	markdownOut, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return formatText, err
	}
	csvOut := false
	if cmd.Flags().Lookup("csv") != nil {
		if csvOut, err = cmd.Flags().GetBool("csv"); err != nil {
			return formatText, err
		}
	}

	selected := 0
	format := formatText
	for _, f := range []struct {
		on     bool
		format reportFormat
	}{{jsonOut, formatJSON}, {markdownOut, formatMarkdown}, {csvOut, formatCSV}} {
		if f.on {
			selected++
			format = f.format
		}
	}
	if selected > 1 {
		return formatText, config.ErrConflictingReportFormats
	}
	return format, nil
}

// newReportWriter returns the report writer for format.
func newReportWriter(format reportFormat, out io.Writer, verbose bool) report.Writer {
	switch format {
	case formatJSON:
		return report.NewJSONWriter(out, report.WithPrettyPrint())
	case formatMarkdown:
		return report.NewMarkdownWriter(out)
	case formatCSV:
		return report.NewCSVWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(verbose))
	}
}
