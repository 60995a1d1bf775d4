// Package store persists canonical entities keyed by sync ID with additive
// merge-on-upsert semantics.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"tunebridge/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	sync_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS albums (
	sync_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS artists (
	sync_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a SQLite-backed entity store. Point reads are guarded by a Bloom
// filter primed from existing rows so definitely-unknown sync IDs skip the
// database entirely; a false positive only costs one SELECT.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mutex sync.RWMutex
	seen  *bloom.BloomFilter
}

// Open opens (and if needed creates) the store at cfg.Path. ":memory:" is
// accepted for tests.
func Open(cfg *core.StoreConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create store schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		seen:   bloom.NewWithEstimates(uint(cfg.BloomCapacity), cfg.BloomFalsePositiveRate),
	}

	if err := s.primeFilter(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// primeFilter loads every known sync ID into the Bloom filter so rows written
// by earlier runs are not mistaken for misses.
func (s *Store) primeFilter() error {
	for _, table := range []string{"songs", "albums", "artists"} {
		rows, err := s.db.Query(fmt.Sprintf("SELECT sync_id FROM %s", table)) //nolint:gosec // fixed table names
		if err != nil {
			return fmt.Errorf("failed to prime filter from %s: %w", table, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			s.seen.AddString(table + ":" + id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()
	}
	return nil
}

func (s *Store) mayContain(table, syncID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.seen.TestString(table + ":" + syncID)
}

func (s *Store) markSeen(table, syncID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.seen.AddString(table + ":" + syncID)
}

// GetSong returns the stored song for a sync ID, or nil when unknown.
func (s *Store) GetSong(ctx context.Context, syncID string) (*core.Song, error) {
	data, err := s.get(ctx, "songs", syncID)
	if err != nil || data == nil {
		return nil, err
	}
	var song core.Song
	if err := json.Unmarshal(data, &song); err != nil {
		return nil, fmt.Errorf("failed to decode stored song: %w", err)
	}
	return &song, nil
}

// GetAlbum returns the stored album for a sync ID, or nil when unknown.
func (s *Store) GetAlbum(ctx context.Context, syncID string) (*core.Album, error) {
	data, err := s.get(ctx, "albums", syncID)
	if err != nil || data == nil {
		return nil, err
	}
	var album core.Album
	if err := json.Unmarshal(data, &album); err != nil {
		return nil, fmt.Errorf("failed to decode stored album: %w", err)
	}
	return &album, nil
}

// GetArtist returns the stored artist for a sync ID, or nil when unknown.
func (s *Store) GetArtist(ctx context.Context, syncID string) (*core.Artist, error) {
	data, err := s.get(ctx, "artists", syncID)
	if err != nil || data == nil {
		return nil, err
	}
	var artist core.Artist
	if err := json.Unmarshal(data, &artist); err != nil {
		return nil, fmt.Errorf("failed to decode stored artist: %w", err)
	}
	return &artist, nil
}

// GetEntity dispatches a point lookup on the tagged kind.
func (s *Store) GetEntity(ctx context.Context, kind core.EntityKind, syncID string) (core.Entity, error) {
	switch kind {
	case core.KindSong:
		song, err := s.GetSong(ctx, syncID)
		if err != nil || song == nil {
			return nil, err
		}
		return song, nil
	case core.KindAlbum:
		album, err := s.GetAlbum(ctx, syncID)
		if err != nil || album == nil {
			return nil, err
		}
		return album, nil
	case core.KindArtist:
		artist, err := s.GetArtist(ctx, syncID)
		if err != nil || artist == nil {
			return nil, err
		}
		return artist, nil
	}
	return nil, fmt.Errorf("%w: no store collection for kind %q", core.ErrUnsupportedURL, kind)
}

func (s *Store) get(ctx context.Context, table, syncID string) ([]byte, error) {
	if !s.mayContain(table, syncID) {
		return nil, nil
	}

	var data []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE sync_id = ?", table) //nolint:gosec // fixed table names
	err := s.db.QueryRowContext(ctx, query, syncID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store read failed: %w", err)
	}
	return data, nil
}

// UpsertSong writes a song, merging with any existing row per the additive
// merge rules, and returns the merged row.
func (s *Store) UpsertSong(ctx context.Context, song *core.Song) (*core.Song, error) {
	merged := *song
	err := s.upsert(ctx, "songs", song.SyncID, func(existing []byte) (interface{}, error) {
		if existing == nil {
			return &merged, nil
		}
		var old core.Song
		if err := json.Unmarshal(existing, &old); err != nil {
			return nil, fmt.Errorf("failed to decode stored song: %w", err)
		}
		merged = MergeSongs(&old, song)
		return &merged, nil
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

// UpsertAlbum writes an album with merge-on-conflict and returns the merged
// row.
func (s *Store) UpsertAlbum(ctx context.Context, album *core.Album) (*core.Album, error) {
	merged := *album
	err := s.upsert(ctx, "albums", album.SyncID, func(existing []byte) (interface{}, error) {
		if existing == nil {
			return &merged, nil
		}
		var old core.Album
		if err := json.Unmarshal(existing, &old); err != nil {
			return nil, fmt.Errorf("failed to decode stored album: %w", err)
		}
		merged = MergeAlbums(&old, album)
		return &merged, nil
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

// UpsertArtist writes an artist with merge-on-conflict and returns the merged
// row.
func (s *Store) UpsertArtist(ctx context.Context, artist *core.Artist) (*core.Artist, error) {
	merged := *artist
	err := s.upsert(ctx, "artists", artist.SyncID, func(existing []byte) (interface{}, error) {
		if existing == nil {
			return &merged, nil
		}
		var old core.Artist
		if err := json.Unmarshal(existing, &old); err != nil {
			return nil, fmt.Errorf("failed to decode stored artist: %w", err)
		}
		merged = MergeArtists(&old, artist)
		return &merged, nil
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

// UpsertEntity dispatches an upsert on the tagged kind.
func (s *Store) UpsertEntity(ctx context.Context, entity core.Entity) (core.Entity, error) {
	switch e := entity.(type) {
	case *core.Song:
		return s.UpsertSong(ctx, e)
	case *core.Album:
		return s.UpsertAlbum(ctx, e)
	case *core.Artist:
		return s.UpsertArtist(ctx, e)
	}
	return nil, fmt.Errorf("cannot upsert entity of kind %q", entity.Kind())
}

// upsert runs the read-merge-write inside one short transaction. This narrows
// the lost-update window between concurrent writers for the same sync ID but
// does not eliminate it across processes; the merge stays optimistic.
func (s *Store) upsert(ctx context.Context, table, syncID string, merge func(existing []byte) (interface{}, error)) error {
	if syncID == "" {
		return errors.New("cannot upsert entity without sync ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store upsert failed: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var existing []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE sync_id = ?", table) //nolint:gosec // fixed table names
	err = tx.QueryRowContext(ctx, query, syncID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store upsert read failed: %w", err)
	}

	merged, err := merge(existing)
	if err != nil {
		return err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode entity: %w", err)
	}

	//nolint:gosec // fixed table names
	write := fmt.Sprintf(`INSERT INTO %s (sync_id, data) VALUES (?, ?)
		ON CONFLICT(sync_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`, table)
	if _, err := tx.ExecContext(ctx, write, syncID, string(data)); err != nil {
		return fmt.Errorf("store upsert write failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store upsert commit failed: %w", err)
	}

	s.markSeen(table, syncID)
	return nil
}
