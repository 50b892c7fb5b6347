package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "exitwatch"

	// CacheFileName is the exit list cache file inside the XDG cache directory.
	CacheFileName = "tor_exit_nodes.txt"

	// DefaultExitListURL is the Tor Project's bulk exit list.
	DefaultExitListURL = "https://check.torproject.org/torbulkexitlist"

	// DefaultMaxAge is how long a cached exit list counts as current.
	// The Tor Project regenerates the list several times a day.
	DefaultMaxAge = 24 * time.Hour

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultFetchTimeout bounds one exit list download.
	// Downloads through Tor are considerably slower than direct ones.
	DefaultFetchTimeout = 120 * time.Second

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultBatchSize is the number of captures analysed concurrently.
	DefaultBatchSize = 4

	// DefaultFieldSeparator separates columns of a field export.
	DefaultFieldSeparator = "\t"

	// DefaultUserAgent identifies exitwatch when downloading the exit list.
	DefaultUserAgent = "exitwatch (+https://github.com/nao1215/exitwatch)"

	// DefaultMaxListSize limits the downloaded exit list body.
	DefaultMaxListSize = 16 * 1024 * 1024 // 16MB
)

// TorMode selects how the exit list is downloaded.
type TorMode string

const (
	// TorModeDirect downloads the list without Tor.
	TorModeDirect TorMode = "direct"

	// TorModeExternal downloads through an existing Tor SOCKS5 proxy.
	TorModeExternal TorMode = "external"

	// TorModeEmbedded starts a private Tor daemon for the download.
	TorModeEmbedded TorMode = "embedded"
)

// Config holds all configuration options for exitwatch.
// It is populated from the config file, then CLI flags, and passed through
// the application rather than held in global state.
type Config struct {
	// WatchlistPath is an explicit exit list file in line format.
	// When set, the cache and the network are not used.
	WatchlistPath string

	// ExitListURL is where the exit list is downloaded from.
	ExitListURL string

	// CachePath is the exit list cache file.
	CachePath string

	// MaxAge is how long the cache counts as current. Zero means forever.
	MaxAge time.Duration

	// Fetch allows downloading the list when the cache is missing or expired.
	// Without it, an expired cache is used and reported as stale.
	Fetch bool

	// TorMode selects the download route.
	TorMode TorMode

	// TorProxyAddress is the external Tor SOCKS5 proxy in "host:port" format.
	TorProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded daemon.
	TorStartupTimeout time.Duration

	// FetchTimeout bounds one exit list download.
	FetchTimeout time.Duration

	// UserAgent is sent when downloading the exit list.
	UserAgent string

	// MaxListSize is the maximum exit list body size in bytes.
	MaxListSize int64

	// Timeout bounds the analysis of one capture. Zero means no limit.
	Timeout time.Duration

	// FieldExport treats the input as a tshark-style field export instead of a capture.
	FieldExport bool

	// FieldSeparator separates field export columns.
	FieldSeparator string

	// Workers is the number of frame decoders per capture. Zero uses GOMAXPROCS.
	Workers int

	// BatchSize is the number of captures analysed concurrently.
	BatchSize int

	// StrictTimestamps aborts a run on the first unusable capture time
	// instead of dropping the match with a warning.
	StrictTimestamps bool

	// JSONReport selects JSON output.
	JSONReport bool

	// MarkdownReport selects Markdown output.
	MarkdownReport bool

	// CSVReport selects CSV output.
	CSVReport bool

	// ReportFile is the output file. Empty means stdout.
	ReportFile string

	// SaveToDB stores every run in the evidence database.
	SaveToDB bool

	// DBDir is the directory of the evidence database.
	DBDir string

	// Redact masks suspect addresses in log output.
	Redact bool

	// Verbose enables debug logging and lists every warning in text reports.
	Verbose bool

	// ConfigFilePath is the configuration file path.
	// If empty, .exitwatch is searched in the current and home directories.
	ConfigFilePath string

	// Captures lists the capture files to analyse; "-" is standard input.
	Captures []string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ExitListURL:       DefaultExitListURL,
		CachePath:         DefaultCachePath(),
		MaxAge:            DefaultMaxAge,
		TorMode:           TorModeDirect,
		TorProxyAddress:   DefaultTorProxyAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		FetchTimeout:      DefaultFetchTimeout,
		UserAgent:         DefaultUserAgent,
		MaxListSize:       DefaultMaxListSize,
		FieldSeparator:    DefaultFieldSeparator,
		BatchSize:         DefaultBatchSize,
		SaveToDB:          true,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for exitwatch.
// On Linux: ~/.local/share/exitwatch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for exitwatch.
// On Linux: ~/.config/exitwatch
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for exitwatch.
// On Linux: ~/.cache/exitwatch
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DefaultCachePath returns the exit list cache file path.
func DefaultCachePath() string {
	return filepath.Join(XDGCacheDir(), CacheFileName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Captures) == 0 {
		return ErrNoCapture
	}
	if err := c.ValidateWatchlist(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Workers < 0 {
		return ErrInvalidWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.reportFormats() > 1 {
		return ErrConflictingReportFormats
	}
	if c.FieldExport && len([]rune(c.FieldSeparator)) != 1 {
		return ErrInvalidFieldSeparator
	}
	if c.SaveToDB && c.DBDir == "" {
		return ErrNoDBDir
	}
	return nil
}

// ValidateWatchlist checks the settings used to obtain the exit list.
// Commands that only manage the list call it instead of Validate.
func (c *Config) ValidateWatchlist() error {
	if c.WatchlistPath == "" && c.CachePath == "" {
		return ErrNoWatchlistSource
	}
	if c.MaxAge < 0 {
		return ErrInvalidMaxAge
	}
	switch c.TorMode {
	case TorModeDirect, TorModeExternal, TorModeEmbedded:
	default:
		return ErrInvalidTorMode
	}
	if c.Fetch && c.ExitListURL == "" {
		return ErrNoExitListURL
	}
	if c.FetchTimeout <= 0 || c.TorStartupTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxListSize < 0 {
		return ErrInvalidMaxListSize
	}
	return nil
}

// reportFormats counts the selected report formats.
func (c *Config) reportFormats() int {
	n := 0
	for _, selected := range []bool{c.JSONReport, c.MarkdownReport, c.CSVReport} {
		if selected {
			n++
		}
	}
	return n
}
