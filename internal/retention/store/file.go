package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
)

// FileStore persists the schedule as a single JSON object mapping content id
// to an RFC3339 UTC timestamp. Writes go to a temp file in the same
// directory followed by a rename, so a reader never observes a truncated
// mapping even if the process dies mid-save.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *logger.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store at the given path. The file is
// created lazily on first save.
func NewFileStore(path string, log *logger.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: log.WithFields(zap.String("component", "schedule-store"), zap.String("path", path)),
	}
}

// Load reads the full schedule. A missing file yields an empty map. An entry
// whose timestamp does not parse is dropped with a warning; one bad entry
// must never block startup reconciliation for the rest.
func (s *FileStore) Load(ctx context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (map[string]time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]time.Time{}, nil
		}
		return nil, fmt.Errorf("read schedule store: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		// Unreadable file: start empty rather than blocking startup.
		s.logger.Warn("schedule store unreadable, starting empty", zap.Error(err))
		return map[string]time.Time{}, nil
	}

	entries := make(map[string]time.Time, len(raw))
	for id, stamp := range raw {
		t, err := parseTimestamp(stamp)
		if err != nil {
			s.logger.Warn("dropping malformed schedule entry",
				zap.String("content_id", id),
				zap.String("value", stamp))
			continue
		}
		entries[id] = t
	}
	return entries, nil
}

// Save atomically replaces the schedule with the given mapping.
func (s *FileStore) Save(ctx context.Context, entries map[string]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(entries)
}

func (s *FileStore) saveLocked(entries map[string]time.Time) error {
	raw := make(map[string]string, len(entries))
	for id, t := range entries {
		raw[id] = t.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal schedule store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp schedule store: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write schedule store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync schedule store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp schedule store: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace schedule store: %w", err)
	}
	return nil
}

// Upsert sets the planned deletion time for one id.
func (s *FileStore) Upsert(ctx context.Context, id string, deleteAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	entries[id] = deleteAt.UTC()
	return s.saveLocked(entries)
}

// Remove deletes the entry for one id. Removing an absent id is a no-op.
func (s *FileStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := entries[id]; !ok {
		return nil
	}
	delete(entries, id)
	return s.saveLocked(entries)
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// parseTimestamp accepts RFC3339 and the bare ISO-8601 form (no zone) that
// older store files may contain; the latter is taken as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
