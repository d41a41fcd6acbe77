// Package sqlitestore keeps catalog assets in a single SQLite table. It
// suits catalogs that are shared between tools or too large for a loose
// file tree; the schema is versioned through embedded migrations.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
)

const queryTimeout = 5 * time.Second

// Store is a storage.Store backed by SQLite.
type Store struct {
	db       *sql.DB
	path     string
	version  uint
	mu       sync.Mutex
	readOnly bool
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at path and migrates it. Use
// ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path
	}
	log.Debug(log.CatStore, "opening database", "path", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.ErrorErr(log.CatStore, "failed to open database", err, "path", path)
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	version, err := migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info(log.CatStore, "connected to database", "path", path, "schema", version)
	return &Store{db: db, path: path, version: version}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the migration version the database is at.
func (s *Store) SchemaVersion() uint {
	return s.version
}

// SetReadOnly makes every mutating call fail with storage.ErrReadOnly.
func (s *Store) SetReadOnly(readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = readOnly
}

// Enumerate returns the locations of assets with tag, sorted.
func (s *Store) Enumerate(tag storage.TypeTag) ([]storage.Location, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT location FROM assets WHERE kind = ? ORDER BY location`, string(tag))
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", tag, err)
	}
	defer func() { _ = rows.Close() }()

	var locs []storage.Location
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, err
		}
		locs = append(locs, storage.Location(loc))
	}
	return locs, rows.Err()
}

// Load returns the asset stored at loc.
func (s *Store) Load(loc storage.Location) (*storage.Asset, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var kind, id, collection, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, id, collection, payload FROM assets WHERE location = ?`, string(loc),
	).Scan(&kind, &id, &collection, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", loc, err)
	}

	asset := &storage.Asset{Tag: storage.TypeTag(kind)}
	if err := asset.ID.UnmarshalText([]byte(id)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrMalformedAsset, loc, err)
	}
	if err := asset.Collection.UnmarshalText([]byte(collection)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrMalformedAsset, loc, err)
	}
	if asset.Payload, err = storage.DecodePayload(payload); err != nil {
		return nil, fmt.Errorf("loading %s: %w", loc, err)
	}
	return asset, nil
}

// Save upserts the asset at loc.
func (s *Store) Save(loc storage.Location, asset *storage.Asset) error {
	if asset == nil {
		return fmt.Errorf("asset cannot be nil")
	}
	if err := s.writable(); err != nil {
		return err
	}
	payload, err := storage.EncodePayload(asset.Payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (location, kind, id, collection, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(location) DO UPDATE SET
			kind = excluded.kind,
			id = excluded.id,
			collection = excluded.collection,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		string(loc), string(asset.Tag), text(asset.ID), text(asset.Collection), payload)
	if err != nil {
		return fmt.Errorf("saving %s: %w", loc, err)
	}
	return nil
}

// Delete removes the asset at loc.
func (s *Store) Delete(loc storage.Location) error {
	if err := s.writable(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE location = ?`, string(loc))
	if err != nil {
		return fmt.Errorf("deleting %s: %w", loc, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, loc)
	}
	return nil
}

// Move rewrites the location key of an asset.
func (s *Store) Move(from, to storage.Location) error {
	if err := s.writable(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE location = ?`, string(to)).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", storage.ErrExists, to)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE assets SET location = ?, updated_at = CURRENT_TIMESTAMP WHERE location = ?`, string(to), string(from))
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", from, to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, from)
	}
	return tx.Commit()
}

// IsNestedUnder applies the shared directory locality rule to the location
// keys.
func (s *Store) IsNestedUnder(loc, ancestor storage.Location) bool {
	return storage.NestedUnder(loc, ancestor)
}

// LocationsOf returns every location carrying id, sorted. More than one
// result means the identifier is duplicated in the medium.
func (s *Store) LocationsOf(ctx context.Context, id identity.ID) ([]storage.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT location FROM assets WHERE id = ? ORDER BY location`, text(id))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var locs []storage.Location
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, err
		}
		locs = append(locs, storage.Location(loc))
	}
	return locs, rows.Err()
}

func (s *Store) writable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

func text(id identity.ID) string {
	b, _ := id.MarshalText()
	return string(b)
}
