package resultcache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore shares entries between bot instances, so a selection can be
// handled by a different process than the one that answered the query.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing cache.postgres.dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("resultcache: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("resultcache: ping postgres: %w", err)
	}
	if err := migratePostgres(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func migratePostgres(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("resultcache: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("resultcache: run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, resultID string, entry Entry) error {
	if err := validateResultID(resultID); err != nil {
		return err
	}
	keyboard, err := encodeKeyboard(entry.Keyboard)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inline_results (result_id, text, parse_mode, url, keyboard)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (result_id) DO UPDATE SET
			text = EXCLUDED.text,
			parse_mode = EXCLUDED.parse_mode,
			url = EXCLUDED.url,
			keyboard = EXCLUDED.keyboard`,
		resultID, entry.Text, entry.ParseMode, entry.URL, keyboard)
	if err != nil {
		return fmt.Errorf("resultcache: postgres put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, resultID string) (Entry, bool, error) {
	var entry Entry
	var keyboard string
	err := s.db.QueryRowContext(ctx,
		`SELECT text, parse_mode, url, keyboard::text FROM inline_results WHERE result_id = $1`, resultID,
	).Scan(&entry.Text, &entry.ParseMode, &entry.URL, &keyboard)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("resultcache: postgres get: %w", err)
	}
	entry.Keyboard, err = decodeKeyboard(keyboard)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
