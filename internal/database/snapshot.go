package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/exitwatch/internal/watchlist"
)

// ErrNoSnapshot is returned when no exit list snapshot is stored.
var ErrNoSnapshot = errors.New("no exit list snapshot stored")

// SaveWatchlistSnapshot stores the exit list of snap in line format.
// A list already stored under the same digest only has its source and
// fetch time updated. It returns the database ID of the snapshot.
func (edb *EvidenceDB) SaveWatchlistSnapshot(ctx context.Context, snap watchlist.Snapshot) (int64, error) {
	if snap.Set == nil {
		return 0, fmt.Errorf("failed to save exit list snapshot: %w", watchlist.ErrEmptyList)
	}

	var sb strings.Builder
	if err := watchlist.Write(&sb, snap.Set); err != nil {
		return 0, fmt.Errorf("failed to encode exit list: %w", err)
	}

	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	query := `
	INSERT INTO watchlist_snapshots (source, digest, size, fetched_at, addresses)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(digest) DO UPDATE SET
		source = excluded.source,
		fetched_at = excluded.fetched_at
	RETURNING id
	`

	var id int64
	err := edb.db.QueryRowContext(ctx, query,
		snap.Source,
		snap.Set.Digest(),
		snap.Set.Len(),
		fetchedAt.UTC().Format(storedTimeLayout),
		sb.String(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save exit list snapshot: %w", err)
	}

	return id, nil
}

// LatestWatchlistSnapshot returns the most recently fetched snapshot.
// It returns ErrNoSnapshot when none is stored.
func (edb *EvidenceDB) LatestWatchlistSnapshot(ctx context.Context) (watchlist.Snapshot, error) {
	query := `
	SELECT source, fetched_at, addresses FROM watchlist_snapshots
	ORDER BY fetched_at DESC, id DESC
	LIMIT 1
	`

	var source, fetchedAt, addresses string
	err := edb.db.QueryRowContext(ctx, query).Scan(&source, &fetchedAt, &addresses)
	if errors.Is(err, sql.ErrNoRows) {
		return watchlist.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return watchlist.Snapshot{}, fmt.Errorf("failed to get exit list snapshot: %w", err)
	}

	set, stats, err := watchlist.Read(strings.NewReader(addresses))
	if err != nil {
		return watchlist.Snapshot{}, fmt.Errorf("failed to parse exit list snapshot: %w", err)
	}

	return watchlist.Snapshot{
		Set:         set,
		Source:      source,
		FetchedAt:   parseTimestamp(fetchedAt),
		Diagnostics: stats.Diagnostics(source),
	}, nil
}

// SnapshotProvider serves the latest stored exit list snapshot.
// It is the last fallback when neither the cache nor the network has a list.
type SnapshotProvider struct {
	db *EvidenceDB
}

// NewSnapshotProvider returns a provider reading snapshots from db.
func NewSnapshotProvider(db *EvidenceDB) *SnapshotProvider {
	return &SnapshotProvider{db: db}
}

// Load implements watchlist.Provider.
func (p *SnapshotProvider) Load(ctx context.Context) (watchlist.Snapshot, error) {
	snap, err := p.db.LatestWatchlistSnapshot(ctx)
	if err != nil {
		return watchlist.Snapshot{}, &watchlist.UnavailableError{Source: p.db.Path(), Err: err}
	}
	return snap, nil
}
