package resultcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps entries in a local database file so selections still
// resolve after a restart.
type SQLiteStore struct {
	conn *sql.DB
}

func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing cache.sqlite.path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("resultcache: create sqlite dir: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("resultcache: open sqlite: %w", err)
	}
	// A single writer connection keeps the pragmas below in effect and
	// serializes writes instead of surfacing SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("resultcache: set wal mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("resultcache: set busy timeout: %w", err)
	}
	s := &SQLiteStore{conn: conn}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("resultcache: migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS inline_results (
		result_id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		parse_mode TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		keyboard TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.conn.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, resultID string, entry Entry) error {
	if err := validateResultID(resultID); err != nil {
		return err
	}
	keyboard, err := encodeKeyboard(entry.Keyboard)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO inline_results (result_id, text, parse_mode, url, keyboard, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(result_id) DO UPDATE SET
			text = excluded.text,
			parse_mode = excluded.parse_mode,
			url = excluded.url,
			keyboard = excluded.keyboard`,
		resultID, entry.Text, entry.ParseMode, entry.URL, keyboard, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("resultcache: sqlite put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, resultID string) (Entry, bool, error) {
	var entry Entry
	var keyboard string
	err := s.conn.QueryRowContext(ctx,
		"SELECT text, parse_mode, url, keyboard FROM inline_results WHERE result_id = ?", resultID,
	).Scan(&entry.Text, &entry.ParseMode, &entry.URL, &keyboard)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("resultcache: sqlite get: %w", err)
	}
	entry.Keyboard, err = decodeKeyboard(keyboard)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
