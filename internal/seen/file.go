package seen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// formatVersion identifies the on-disk layout. Files carrying a different
// version are treated as corrupt and replaced by an empty store.
const formatVersion = 1

type fileImage struct {
	Version int      `json:"version"`
	FeedURL string   `json:"feed_url"`
	Records []Record `json:"records"`
}

// FileStore keeps the seen set for one feed in memory, insertion-ordered and
// bounded to a retention count, and mirrors it to a JSON file.
type FileStore struct {
	path      string
	feedURL   string
	retention int
	logger    *slog.Logger

	records []Record
	index   map[string]struct{}
	dirty   bool
}

// NewFileStore loads the store for feedURL from dir, creating an empty one
// when no file exists. A corrupt or unversioned file also yields an empty
// store, with a warning: redelivering a few items beats refusing to start.
func NewFileStore(dir, feedURL string, retention int, logger *slog.Logger) (*FileStore, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	store := &FileStore{
		path:      filepath.Join(dir, FileName(feedURL)),
		feedURL:   feedURL,
		retention: retention,
		logger:    logger,
		index:     map[string]struct{}{},
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// FileName derives the state file name for a feed URL. Hashing keeps the
// name filesystem-safe and gives every feed its own file.
func FileName(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return "seen-" + hex.EncodeToString(sum[:])[:12] + ".json"
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}

	var image fileImage
	if err := json.Unmarshal(data, &image); err != nil {
		s.logger.Warn("state file is corrupt, starting empty", "path", s.path, "error", err)
		return nil
	}
	if image.Version != formatVersion {
		s.logger.Warn("state file has unknown version, starting empty", "path", s.path, "version", image.Version)
		return nil
	}

	s.records = make([]Record, 0, len(image.Records))
	for _, record := range image.Records {
		if record.ItemID == "" {
			continue
		}
		if _, ok := s.index[record.ItemID]; ok {
			continue
		}
		s.records = append(s.records, record)
		s.index[record.ItemID] = struct{}{}
	}
	s.evict()
	return nil
}

func (s *FileStore) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Mark records an id as seen. Marking an id again keeps the first record.
func (s *FileStore) Mark(id string, seenAt time.Time) {
	if id == "" {
		return
	}
	if _, ok := s.index[id]; ok {
		return
	}
	s.records = append(s.records, Record{ItemID: id, SeenAt: seenAt.UTC()})
	s.index[id] = struct{}{}
	s.dirty = true
	s.evict()
}

func (s *FileStore) evict() {
	excess := len(s.records) - s.retention
	if excess <= 0 {
		return
	}
	for _, old := range s.records[:excess] {
		delete(s.index, old.ItemID)
	}
	s.records = append([]Record(nil), s.records[excess:]...)
	s.dirty = true
}

// Persist writes the store to its file via a temp file and rename, so a
// crash mid-write leaves the previous image intact. A clean store is a
// no-op; a failed persist leaves the store dirty for the next cycle.
func (s *FileStore) Persist() error {
	if !s.dirty {
		return nil
	}

	image := fileImage{
		Version: formatVersion,
		FeedURL: s.feedURL,
		Records: s.records,
	}
	data, err := json.MarshalIndent(image, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *FileStore) Len() int { return len(s.records) }

func (s *FileStore) Dirty() bool { return s.dirty }
