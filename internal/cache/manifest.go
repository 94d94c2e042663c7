package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Entry is one row of the cache manifest.
type Entry struct {
	Key       string
	Size      int64
	SHA256    string
	Source    string
	FetchedAt time.Time
}

// Manifest records cache entries in SQLite.
type Manifest struct {
	db *sql.DB
}

const manifestMigration = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	size       INTEGER NOT NULL,
	sha256     TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	fetched_at INTEGER NOT NULL
);
`

// OpenManifest opens (creating if needed) the manifest database at path.
func OpenManifest(ctx context.Context, path string) (*Manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open manifest")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, manifestMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "cache: migrate manifest")
	}
	return &Manifest{db: db}, nil
}

// Close closes the manifest database.
func (m *Manifest) Close() error {
	if err := m.db.Close(); err != nil {
		return eris.Wrap(err, "cache: close manifest")
	}
	return nil
}

// Put inserts or replaces the row for e.Key.
func (m *Manifest) Put(ctx context.Context, e Entry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, size, sha256, source, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			size = excluded.size,
			sha256 = excluded.sha256,
			source = excluded.source,
			fetched_at = excluded.fetched_at`,
		e.Key, e.Size, e.SHA256, e.Source, e.FetchedAt.UnixMilli(),
	)
	if err != nil {
		return eris.Wrapf(err, "cache: record %s", e.Key)
	}
	return nil
}

// Get returns the row for key, if any.
func (m *Manifest) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	var fetched int64
	err := m.db.QueryRowContext(ctx,
		`SELECT key, size, sha256, source, fetched_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.Size, &e.SHA256, &e.Source, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrapf(err, "cache: lookup %s", key)
	}
	e.FetchedAt = time.UnixMilli(fetched).UTC()
	return e, true, nil
}

// Delete removes the row for key.
func (m *Manifest) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return eris.Wrapf(err, "cache: delete %s", key)
	}
	return nil
}

// List returns every row ordered by key.
func (m *Manifest) List(ctx context.Context) ([]Entry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT key, size, sha256, source, fetched_at FROM cache_entries ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "cache: list entries")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var fetched int64
		if err := rows.Scan(&e.Key, &e.Size, &e.SHA256, &e.Source, &fetched); err != nil {
			return nil, eris.Wrap(err, "cache: scan entry")
		}
		e.FetchedAt = time.UnixMilli(fetched).UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "cache: iterate entries")
}
