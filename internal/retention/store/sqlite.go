package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the schedule in a single-table SQLite database.
// Useful when the schedule should survive on a mounted volume with real
// transactional semantics instead of a flat file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := ensureDir(dbPath); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_mode=rwc", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close database after schema error: %w", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedule_entries (
		content_id TEXT PRIMARY KEY,
		delete_at DATETIME NOT NULL
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads all schedule entries. Rows with an unparseable timestamp are
// skipped.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_id, delete_at FROM schedule_entries`)
	if err != nil {
		return nil, fmt.Errorf("load schedule entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var deleteAt time.Time
		if err := rows.Scan(&id, &deleteAt); err != nil {
			continue
		}
		entries[id] = deleteAt.UTC()
	}
	return entries, rows.Err()
}

// Save replaces the full schedule inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries map[string]time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries`); err != nil {
		return fmt.Errorf("clear schedule entries: %w", err)
	}
	for id, deleteAt := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedule_entries (content_id, delete_at) VALUES (?, ?)`,
			id, deleteAt.UTC()); err != nil {
			return fmt.Errorf("insert schedule entry %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Upsert sets the planned deletion time for one id.
func (s *SQLiteStore) Upsert(ctx context.Context, id string, deleteAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_entries (content_id, delete_at) VALUES (?, ?)
		ON CONFLICT(content_id) DO UPDATE SET delete_at = excluded.delete_at`,
		id, deleteAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert schedule entry %s: %w", id, err)
	}
	return nil
}

// Remove deletes the entry for one id. Removing an absent id is a no-op.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM schedule_entries WHERE content_id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove schedule entry %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
