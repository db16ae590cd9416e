package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	// ErrNotFound is returned when no artifact exists for an ID.
	ErrNotFound = errors.New("snapshot not found")
	// ErrInvalidID is returned for IDs that are not UUIDs.
	ErrInvalidID = errors.New("invalid snapshot id")
)

// SnapshotMeta describes a stored heatmap artifact.
type SnapshotMeta struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	TimePeriod string    `json:"time_period"`
	Format     string    `json:"format"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	SizeBytes  int       `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// Store keeps captured heatmap images and a JSON sidecar per artifact on disk.
// Each capture writes a new artifact; nothing is looked up by symbol.
type Store struct {
	dir  string
	keep int
	mu   sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// SetRetention caps the number of stored artifacts. After each Save the
// oldest artifacts beyond keep are removed. Zero or less keeps everything.
func (s *Store) SetRetention(keep int) {
	s.mu.Lock()
	s.keep = keep
	s.mu.Unlock()
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// ImagePath returns where the image for meta lives on disk.
func (s *Store) ImagePath(meta SnapshotMeta) string {
	return filepath.Join(s.dir, meta.ID+"."+meta.Format)
}

// Save writes both the image file and metadata sidecar.
func (s *Store) Save(meta SnapshotMeta, imageData []byte) error {
	if err := s.validateID(meta.ID); err != nil {
		return err
	}
	if meta.Format == "" {
		meta.Format = "png"
	}
	meta.SizeBytes = len(imageData)

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath := s.ImagePath(meta)
	jsonPath := filepath.Join(s.dir, meta.ID+".json")

	if err := os.WriteFile(imgPath, imageData, 0o644); err != nil {
		return fmt.Errorf("snapshot store: write image: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		s.removeQuietly(imgPath)
		return fmt.Errorf("snapshot store: marshal meta: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		s.removeQuietly(imgPath)
		return fmt.Errorf("snapshot store: write meta: %w", err)
	}

	if s.keep > 0 {
		s.prune(s.keep)
	}
	return nil
}

// prune removes the oldest artifacts beyond keep. Callers hold the write lock.
func (s *Store) prune(keep int) {
	metas, err := s.scan()
	if err != nil || len(metas) <= keep {
		return
	}
	for _, meta := range metas[keep:] {
		s.removeQuietly(s.ImagePath(meta))
		s.removeQuietly(filepath.Join(s.dir, meta.ID+".json"))
	}
	slog.Info("snapshot retention pruned artifacts", "removed", len(metas)-keep, "keep", keep)
}

// Get reads snapshot metadata by ID.
func (s *Store) Get(id string) (SnapshotMeta, error) {
	if err := s.validateID(id); err != nil {
		return SnapshotMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

func (s *Store) readMeta(id string) (SnapshotMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return SnapshotMeta{}, fmt.Errorf("snapshot store: read meta: %w", err)
	}

	var meta SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SnapshotMeta{}, fmt.Errorf("snapshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all snapshots, newest first.
func (s *Store) List() ([]SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scan()
}

// scan reads every sidecar in the directory. Unreadable sidecars are skipped.
func (s *Store) scan() ([]SnapshotMeta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: read dir: %w", err)
	}

	var metas []SnapshotMeta
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if s.validateID(id) != nil {
			continue
		}
		meta, err := s.readMeta(id)
		if err != nil {
			slog.Debug("snapshot sidecar skipped", "file", name, "error", err)
			continue
		}
		metas = append(metas, meta)
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadImage reads the raw image bytes and returns the format.
func (s *Store) ReadImage(id string) ([]byte, string, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.ImagePath(meta))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: image for %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("snapshot store: read image: %w", err)
	}
	return data, meta.Format, nil
}

// Delete removes both the image and metadata files.
func (s *Store) Delete(id string) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return err
	}

	if err := os.Remove(s.ImagePath(meta)); err != nil {
		slog.Debug("snapshot image cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(filepath.Join(s.dir, id+".json")); err != nil {
		return fmt.Errorf("snapshot store: remove meta: %w", err)
	}
	return nil
}

func (s *Store) removeQuietly(path string) {
	if err := os.Remove(path); err != nil {
		slog.Debug("snapshot cleanup failed", "path", path, "error", err)
	}
}
