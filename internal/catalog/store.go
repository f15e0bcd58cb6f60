package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"dsdiff.click/internal/decoder"
	"dsdiff.click/internal/tag"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("catalog is closed")

// Record is one stored virtual track
type Record struct {
	Container string
	Name      string
	Area      string
	Track     int
	Number    int
	Codec     string
	Duration  time.Duration
	Title     string
	Artist    string
	Album     string
	ScannedAt time.Time
}

// Store persists container scans in SQLite
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the catalog database at dbPath and applies the schema
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own in-memory database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	slog.Debug("catalog opened", "path", dbPath)
	return &Store{db: db, path: dbPath, now: time.Now}, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS tracks (
    id         INTEGER PRIMARY KEY,
    container  TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    area       TEXT    NOT NULL,
    track      INTEGER NOT NULL CHECK (track >= 0),
    number     INTEGER NOT NULL,
    codec      TEXT    NOT NULL,
    duration   INTEGER NOT NULL,
    title      TEXT,
    artist     TEXT,
    album      TEXT,
    scanned_at INTEGER NOT NULL,
    UNIQUE(container, name)
);

CREATE INDEX IF NOT EXISTS idx_tracks_container ON tracks(container);
CREATE INDEX IF NOT EXISTS idx_tracks_scanned ON tracks(scanned_at DESC);
CREATE INDEX IF NOT EXISTS idx_tracks_codec ON tracks(codec);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Path returns the database location
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Replace stores the entries of one container scan, dropping whatever was
// recorded for that container before.
func (s *Store) Replace(container string, entries []decoder.Entry) error {
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tracks WHERE container = ?", container); err != nil {
		return fmt.Errorf("failed to clear container: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO tracks
(container, name, area, track, number, codec, duration, title, artist, album, scanned_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	scannedAt := s.now().Unix()
	for _, e := range entries {
		number, _ := e.Tag.Get(tag.Track)
		n, _ := strconv.Atoi(number)
		title, _ := e.Tag.Get(tag.Title)
		artist, _ := e.Tag.Get(tag.Artist)
		album, _ := e.Tag.Get(tag.Album)

		_, err := stmt.Exec(container, e.Name, e.Area.String(), e.Track, n, e.Codec(),
			e.Tag.Duration.Milliseconds(), title, artist, album, scannedAt)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan: %w", err)
	}

	slog.Debug("catalog updated", "container", container, "entries", len(entries))
	return nil
}

// Remove drops every record of container
func (s *Store) Remove(container string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.Exec("DELETE FROM tracks WHERE container = ?", container); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// List returns the records matching filter ordered by container and track number
func (s *Store) List(filter Filter) ([]Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	where, args, err := filter.BuildWhereClause(s.now())
	if err != nil {
		return nil, err
	}

	query := `SELECT container, name, area, track, number, codec, duration,
COALESCE(title, ''), COALESCE(artist, ''), COALESCE(album, ''), scanned_at FROM tracks`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY container, number"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var durationMs, scannedAt int64
		if err := rows.Scan(&r.Container, &r.Name, &r.Area, &r.Track, &r.Number, &r.Codec,
			&durationMs, &r.Title, &r.Artist, &r.Album, &scannedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.ScannedAt = time.Unix(scannedAt, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	slog.Debug("catalog listed", "records", len(records))
	return records, nil
}
