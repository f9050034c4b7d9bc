// Package history persists a ledger of finished downloads in a local
// SQLite database, so repeated runs can show what was already fetched
// and how each attempt ended.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/romfetch-downloader/romfetch/internal/download"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	rom_name    TEXT NOT NULL,
	url         TEXT NOT NULL,
	dest_path   TEXT NOT NULL,
	system_name TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	crc32       TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_rom_name ON downloads(rom_name);
`

// Entry is one recorded download attempt.
type Entry struct {
	ID         int64
	RomName    string
	URL        string
	DestPath   string
	SystemName string
	Status     string
	CRC32      string
	Bytes      int64
	CreatedAt  time.Time
}

// Store wraps the history database. Safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTask appends a terminal task to the ledger. Satisfies the
// download queue's Recorder interface.
func (s *Store) RecordTask(task *download.Task) error {
	_, err := s.db.Exec(
		`INSERT INTO downloads (rom_name, url, dest_path, system_name, status, crc32, bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.RomName, task.URL, task.DestPath, task.SystemName,
		task.Status.String(), task.ComputedCRC, task.DownloadedBytes, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, rom_name, url, dest_path, system_name, status, crc32, bytes, created_at
		 FROM downloads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RomName, &e.URL, &e.DestPath,
			&e.SystemName, &e.Status, &e.CRC32, &e.Bytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Completed reports whether a ROM by this name has a successful entry.
func (s *Store) Completed(romName string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM downloads WHERE rom_name = ? AND status = ?`,
		romName, download.StatusComplete.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query history: %w", err)
	}
	return count > 0, nil
}
