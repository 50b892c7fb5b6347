package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoCapture is returned when no capture file is given.
	ErrNoCapture = errors.New("no capture specified: provide a capture file or - for standard input")

	// ErrNoWatchlistSource is returned when neither a list file nor a cache path is set.
	ErrNoWatchlistSource = errors.New("no exit list source: set --watchlist or a cache path")

	// ErrNoExitListURL is returned when fetching is enabled without a URL.
	ErrNoExitListURL = errors.New("no exit list URL configured")

	// ErrInvalidMaxAge is returned when the cache age limit is negative.
	ErrInvalidMaxAge = errors.New("invalid max age: must be non-negative")

	// ErrInvalidTorMode is returned for an unknown Tor mode.
	ErrInvalidTorMode = errors.New("invalid tor mode: must be direct, external or embedded")

	// ErrConflictingTorModes is returned when both --external-tor and --embedded-tor are set.
	ErrConflictingTorModes = errors.New("conflicting tor modes: --external-tor and --embedded-tor cannot be used together")

	// ErrInvalidTimeout is returned when a timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the decoder count is negative.
	ErrInvalidWorkers = errors.New("invalid workers: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when more than one of --json,
	// --markdown and --csv is set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: use only one of --json, --markdown and --csv")

	// ErrInvalidFieldSeparator is returned when the separator is not a single character.
	ErrInvalidFieldSeparator = errors.New("invalid field separator: must be a single character")

	// ErrInvalidMaxListSize is returned when the list size limit is negative.
	ErrInvalidMaxListSize = errors.New("invalid max list size: must be non-negative")

	// ErrNoDBDir is returned when saving is enabled without a database directory.
	ErrNoDBDir = errors.New("no database directory configured")
)
