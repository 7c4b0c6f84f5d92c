package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);`

// Durable is the indefinite-scope store backed by a local sqlite file. It
// holds the device id, the backend-assigned cookie id, and the cached
// payment completion flags.
type Durable struct {
	db *sql.DB
}

// OpenDurable opens (creating if necessary) the sqlite store at path.
// Use ":memory:" for an ephemeral store in tests.
func OpenDurable(path string) (*Durable, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &Durable{db: db}, nil
}

// Get returns the value for key, or "" when the key is absent.
func (d *Durable) Get(key string) (string, error) {
	var v string
	err := d.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, nil
}

// Set upserts key. Identity keys reject empty values; an identifier, once
// obtained, may only be replaced by another non-empty identifier.
func (d *Durable) Set(key, value string) error {
	if value == "" && identityKey(key) {
		return ErrEmptyValue
	}
	_, err := d.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Unlike Set it is allowed on any key: an explicit
// delete (e.g. clearing the payment cache) is a deliberate act, not a
// silent overwrite.
func (d *Durable) Delete(key string) error {
	if _, err := d.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (d *Durable) Close() error { return d.db.Close() }

func identityKey(key string) bool {
	return key == KeyDeviceID || key == KeyCookieID
}
