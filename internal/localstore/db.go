// Package localstore persists the client's per-user resource index and
// settings key-value store under the application data directory (spec §6
// "Persisted state"). Grounded on the teacher's internal/storage/db.go,
// which opens a pure-Go modernc.org/sqlite database with WAL mode and a
// busy timeout; that connection setup is kept close to verbatim, the
// schema replaced with resource-presence and settings tables.
package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps the client's local sqlite database.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates data.db under dataDir, ensuring dataDir and its
// resources/screenshots/lightmaps subdirectories exist (spec §6).
func Open(dataDir string) (*DB, error) {
	for _, sub := range []string{"", "resources", "screenshots", "lightmaps"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("localstore: create %s: %w", sub, err)
		}
	}

	dbPath := filepath.Join(dataDir, "data.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("localstore: open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS resources (
			url          TEXT PRIMARY KEY,
			hash         INTEGER NOT NULL,
			present      INTEGER NOT NULL DEFAULT 0,
			failed       INTEGER NOT NULL DEFAULT 0,
			local_path   TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: create schema: %w", err)
	}

	// The failed marker is session-scoped (spec §4.G step 6: "not retried
	// until the session ends"), so a fresh open clears any carried over from
	// the previous run.
	if _, err := db.Exec(`UPDATE resources SET failed = 0`); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: reset denylist: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Path() string { return d.path }

// MarkPresent records url as locally present with the given hash and path.
func (d *DB) MarkPresent(url string, hash uint64, localPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(
		`INSERT INTO resources (url, hash, present, failed, local_path) VALUES (?, ?, 1, 0, ?)
		 ON CONFLICT(url) DO UPDATE SET hash=excluded.hash, present=1, failed=0, local_path=excluded.local_path`,
		url, hash, localPath,
	)
	if err != nil {
		return fmt.Errorf("localstore: mark present %s: %w", url, err)
	}
	return nil
}

// MarkFailed records url in the session-scoped denylist (spec §4.G step 6,
// §7 ResourceNotFound).
func (d *DB) MarkFailed(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(
		`INSERT INTO resources (url, hash, present, failed, local_path) VALUES (?, 0, 0, 1, '')
		 ON CONFLICT(url) DO UPDATE SET failed=1`,
		url,
	)
	if err != nil {
		return fmt.Errorf("localstore: mark failed %s: %w", url, err)
	}
	return nil
}

// IsPresent reports whether url is recorded as locally present.
func (d *DB) IsPresent(url string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var present int
	err := d.db.QueryRow(`SELECT present FROM resources WHERE url = ?`, url).Scan(&present)
	return err == nil && present == 1
}

// IsFailed reports whether url is in the session-scoped denylist.
func (d *DB) IsFailed(url string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var failed int
	err := d.db.QueryRow(`SELECT failed FROM resources WHERE url = ?`, url).Scan(&failed)
	return err == nil && failed == 1
}

// LocalPath returns the on-disk path recorded for url, if present.
func (d *DB) LocalPath(url string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var path string
	err := d.db.QueryRow(`SELECT local_path FROM resources WHERE url = ? AND present = 1`, url).Scan(&path)
	if err != nil {
		return "", false
	}
	return path, true
}

// SetSetting and GetSetting implement the flat key-value settings store
// (spec §6: "setting/show_chat", "photo/last_saved_photo_path").
func (d *DB) SetSetting(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("localstore: set setting %s: %w", key, err)
	}
	return nil
}

func (d *DB) GetSetting(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var value string
	err := d.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}
