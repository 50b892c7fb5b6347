package config

import "time"

// WatchlistSection configures where the exit list comes from.
type WatchlistSection struct {
	// Path is an explicit list file; it disables the cache and the network.
	Path string `yaml:"path,omitempty"`

	// URL is the download location.
	URL string `yaml:"url,omitempty"`

	// Cache is the cache file path.
	Cache string `yaml:"cache,omitempty"`

	// MaxAge is how long the cache counts as current, e.g. "12h".
	MaxAge *time.Duration `yaml:"max_age,omitempty"`

	// Fetch allows downloading when the cache is missing or expired.
	Fetch bool `yaml:"fetch,omitempty"`

	// UserAgent is sent with downloads.
	UserAgent string `yaml:"user_agent,omitempty"`
}

// TorSection configures the download route.
type TorSection struct {
	// Mode is "direct", "external" or "embedded".
	Mode TorMode `yaml:"mode,omitempty"`

	// Proxy is the external SOCKS5 proxy address.
	Proxy string `yaml:"proxy,omitempty"`

	// StartupTimeout bounds embedded daemon bootstrap.
	StartupTimeout time.Duration `yaml:"startup_timeout,omitempty"`

	// FetchTimeout bounds one download.
	FetchTimeout time.Duration `yaml:"fetch_timeout,omitempty"`
}

// AnalysisSection configures capture analysis.
type AnalysisSection struct {
	// Workers is the number of frame decoders per capture.
	Workers int `yaml:"workers,omitempty"`

	// Batch is the number of captures analysed concurrently.
	Batch int `yaml:"batch,omitempty"`

	// Timeout bounds the analysis of one capture.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// StrictTimestamps aborts on unusable capture times.
	StrictTimestamps bool `yaml:"strict_timestamps,omitempty"`

	// FieldSeparator separates field export columns.
	FieldSeparator string `yaml:"field_separator,omitempty"`

	// Redact masks suspect addresses in logs.
	Redact bool `yaml:"redact,omitempty"`

	// Save stores runs in the evidence database. Nil keeps the default.
	Save *bool `yaml:"save,omitempty"`

	// DBDir overrides the evidence database directory.
	DBDir string `yaml:"db_dir,omitempty"`
}

// File represents the structure of the .exitwatch configuration file.
type File struct {
	Watchlist WatchlistSection `yaml:"watchlist,omitempty"`
	Tor       TorSection       `yaml:"tor,omitempty"`
	Analysis  AnalysisSection  `yaml:"analysis,omitempty"`
}

// Apply copies every setting present in the file onto c.
// Zero values in the file leave c unchanged.
func (f *File) Apply(c *Config) {
	w := f.Watchlist
	if w.Path != "" {
		c.WatchlistPath = w.Path
	}
	if w.URL != "" {
		c.ExitListURL = w.URL
	}
	if w.Cache != "" {
		c.CachePath = w.Cache
	}
	if w.MaxAge != nil {
		c.MaxAge = *w.MaxAge
	}
	if w.Fetch {
		c.Fetch = true
	}
	if w.UserAgent != "" {
		c.UserAgent = w.UserAgent
	}

	t := f.Tor
	if t.Mode != "" {
		c.TorMode = t.Mode
	}
	if t.Proxy != "" {
		c.TorProxyAddress = t.Proxy
	}
	if t.StartupTimeout != 0 {
		c.TorStartupTimeout = t.StartupTimeout
	}
	if t.FetchTimeout != 0 {
		c.FetchTimeout = t.FetchTimeout
	}

	a := f.Analysis
	if a.Workers != 0 {
		c.Workers = a.Workers
	}
	if a.Batch != 0 {
		c.BatchSize = a.Batch
	}
	if a.Timeout != 0 {
		c.Timeout = a.Timeout
	}
	if a.StrictTimestamps {
		c.StrictTimestamps = true
	}
	if a.FieldSeparator != "" {
		c.FieldSeparator = a.FieldSeparator
	}
	if a.Redact {
		c.Redact = true
	}
	if a.Save != nil {
		c.SaveToDB = *a.Save
	}
	if a.DBDir != "" {
		c.DBDir = a.DBDir
	}
}
