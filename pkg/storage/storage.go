package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the per-user key/value store that keeps portal preferences between
// sessions: the business unit choice, recently viewed policies and trip
// date ranges.
type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  owner      TEXT NOT NULL,
  key        TEXT NOT NULL,
  value      TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (owner, key)
);
CREATE INDEX IF NOT EXISTS idx_kv_owner ON kv(owner);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// GetItem returns the value stored under key, and whether it exists.
func (d *DB) GetItem(ctx context.Context, owner, key string) (string, bool, error) {
	var value string
	err := d.sql.QueryRowContext(ctx, "SELECT value FROM kv WHERE owner = ? AND key = ?", owner, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetItem stores value under key. The last writer wins.
func (d *DB) SetItem(ctx context.Context, owner, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO kv(owner, key, value, updated_at) VALUES(?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(owner, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, owner, key, value)
	return err
}

func (d *DB) RemoveItem(ctx context.Context, owner, key string) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM kv WHERE owner = ? AND key = ?", owner, key)
	return err
}

// Clear removes everything stored for owner.
func (d *DB) Clear(ctx context.Context, owner string) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM kv WHERE owner = ?", owner)
	return err
}

// ListItems returns every item stored for owner, ordered by key. An empty
// owner lists all owners.
func (d *DB) ListItems(ctx context.Context, owner string) ([]Item, error) {
	q := "SELECT owner, key, value, updated_at FROM kv"
	args := []interface{}{}
	if owner != "" {
		q += " WHERE owner = ?"
		args = append(args, owner)
	}
	q += " ORDER BY owner, key"

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var updatedAt string
		if err := rows.Scan(&it.Owner, &it.Key, &it.Value, &updatedAt); err != nil {
			return nil, err
		}
		// Parse SQLite CURRENT_TIMESTAMP format
		if t, perr := time.Parse("2006-01-02 15:04:05", updatedAt); perr == nil {
			it.UpdatedAt = t
		} else if t2, perr2 := time.Parse(time.RFC3339, updatedAt); perr2 == nil {
			it.UpdatedAt = t2
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
