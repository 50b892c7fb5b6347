package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/exitwatch/internal/model"
)

// FileName is the database file name inside the data directory.
const FileName = "exitwatch.db"

// storedTimeLayout is a fixed-width UTC layout, so stored times sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNilInvestigation is returned when saving a nil investigation.
var ErrNilInvestigation = errors.New("investigation is nil")

// EvidenceDB provides SQLite-based storage for analysis runs and exit list snapshots.
type EvidenceDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures EvidenceDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an EvidenceDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*EvidenceDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	edb := &EvidenceDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := edb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return edb, nil
}

// Path returns the database file path.
func (edb *EvidenceDB) Path() string {
	return edb.dbPath
}

// Close closes the database connection.
func (edb *EvidenceDB) Close() error {
	return edb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (edb *EvidenceDB) createTables() error {
	schema := `
	-- One row per analysis run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_uuid TEXT NOT NULL UNIQUE,
		capture_path TEXT NOT NULL,
		capture_digest TEXT,
		started_at TEXT NOT NULL,
		watchlist_source TEXT,
		watchlist_digest TEXT,
		watchlist_status TEXT,
		total_matches INTEGER DEFAULT 0,
		distinct_sources INTEGER DEFAULT 0,
		diagnostics INTEGER DEFAULT 0,
		error TEXT,
		investigation_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_digest ON runs(capture_digest);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Matches are duplicated out of the JSON for cross-run queries
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		packet_index INTEGER NOT NULL,
		source TEXT NOT NULL,
		destination TEXT NOT NULL,
		contact_time TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_source ON matches(source);
	CREATE INDEX IF NOT EXISTS idx_matches_run ON matches(run_id);

	-- Exit list snapshots in line format, one row per distinct list
	CREATE TABLE IF NOT EXISTS watchlist_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		digest TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL,
		fetched_at TEXT NOT NULL,
		addresses TEXT NOT NULL
	);
	`

	_, err := edb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveInvestigation stores a run and its matches in one transaction.
// It returns the database ID of the run.
func (edb *EvidenceDB) SaveInvestigation(ctx context.Context, inv *model.Investigation) (int64, error) {
	if inv == nil {
		return 0, ErrNilInvestigation
	}

	invJSON, err := json.Marshal(inv)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize investigation: %w", err)
	}

	var totalMatches, distinctSources int
	var matches []model.MatchRecord
	if inv.Report != nil {
		totalMatches = inv.Report.TotalMatches
		distinctSources = inv.Report.DistinctSources
		matches = inv.Report.Matches
	}

	tx, err := edb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (run_uuid, capture_path, capture_digest, started_at,
		watchlist_source, watchlist_digest, watchlist_status,
		total_matches, distinct_sources, diagnostics, error, investigation_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID,
		inv.Capture.Path,
		inv.Capture.Digest,
		inv.StartedAt.UTC().Format(storedTimeLayout),
		inv.Watchlist.Source,
		inv.Watchlist.Digest,
		string(inv.Watchlist.Status),
		totalMatches,
		distinctSources,
		inv.Diagnostics.Count(),
		inv.ErrorMessage,
		string(invJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO matches (run_id, packet_index, source, destination, contact_time)
	VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare match insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := stmt.ExecContext(ctx, runID, m.Index, m.Source, m.Destination,
			m.ContactTime.UTC().Format(storedTimeLayout)); err != nil {
			return 0, fmt.Errorf("failed to save match for packet %d: %w", m.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	return runID, nil
}

// RunSummary contains summary information about a stored run.
// It is used for listing history without loading the full investigation.
type RunSummary struct {
	// ID is the database ID of the run.
	ID int64 `json:"id"`

	// RunID is the investigation UUID.
	RunID string `json:"run_id"`

	// CapturePath is the analysed capture.
	CapturePath string `json:"capture_path"`

	// CaptureDigest is the SHA3-256 digest of the capture.
	CaptureDigest string `json:"capture_digest"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// WatchlistStatus is how the exit list was obtained.
	WatchlistStatus model.WatchlistStatus `json:"watchlist_status"`

	// TotalMatches is the number of matches in the report.
	TotalMatches int `json:"total_matches"`

	// DistinctSources is the number of suspect sources.
	DistinctSources int `json:"distinct_sources"`

	// Diagnostics is the number of warnings.
	Diagnostics int `json:"diagnostics"`

	// Error is the fatal error message, if the run failed.
	Error string `json:"error,omitempty"`
}

// ListRuns returns all stored runs, newest first.
func (edb *EvidenceDB) ListRuns(ctx context.Context) ([]RunSummary, error) {
	query := `
	SELECT id, run_uuid, capture_path, capture_digest, started_at, watchlist_status,
		total_matches, distinct_sources, diagnostics, error
	FROM runs
	ORDER BY id DESC
	`

	rows, err := edb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var (
			s         RunSummary
			digest    sql.NullString
			startedAt string
			status    sql.NullString
			errText   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.RunID, &s.CapturePath, &digest, &startedAt, &status,
			&s.TotalMatches, &s.DistinctSources, &s.Diagnostics, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		s.CaptureDigest = digest.String
		s.StartedAt = parseTimestamp(startedAt)
		s.WatchlistStatus = model.WatchlistStatus(status.String)
		s.Error = errText.String
		results = append(results, s)
	}

	return results, rows.Err()
}

// GetRun retrieves a stored investigation by its database ID.
// It returns nil without error when no run has that ID.
func (edb *EvidenceDB) GetRun(ctx context.Context, id int64) (*model.Investigation, error) {
	query := `
	SELECT investigation_json FROM runs
	WHERE id = ?
	`

	var invJSON string
	err := edb.db.QueryRowContext(ctx, query, id).Scan(&invJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var inv model.Investigation
	if err := json.Unmarshal([]byte(invJSON), &inv); err != nil {
		return nil, fmt.Errorf("failed to parse investigation: %w", err)
	}

	return &inv, nil
}

// StoredMatch is a match row together with the run that produced it.
type StoredMatch struct {
	// RunID is the database ID of the run.
	RunID int64 `json:"run_id"`

	// CapturePath is the capture the match was found in.
	CapturePath string `json:"capture_path"`

	// Index is the packet index within the capture.
	Index int `json:"index"`

	// Source is the suspect source address.
	Source string `json:"source"`

	// Destination is the exit node address.
	Destination string `json:"destination"`

	// ContactTime is the UTC contact time.
	ContactTime time.Time `json:"contact_time"`
}

// MatchesBySource returns every stored match from source across all runs,
// ordered by run and packet index.
func (edb *EvidenceDB) MatchesBySource(ctx context.Context, source string) ([]StoredMatch, error) {
	query := `
	SELECT m.run_id, r.capture_path, m.packet_index, m.source, m.destination, m.contact_time
	FROM matches m
	JOIN runs r ON r.id = m.run_id
	WHERE m.source = ?
	ORDER BY m.run_id, m.packet_index
	`

	rows, err := edb.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var results []StoredMatch
	for rows.Next() {
		var m StoredMatch
		var contactTime string
		if err := rows.Scan(&m.RunID, &m.CapturePath, &m.Index, &m.Source, &m.Destination, &contactTime); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.ContactTime = parseTimestamp(contactTime)
		results = append(results, m)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimeLayout,          // Format written by this package
	time.RFC3339Nano,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
