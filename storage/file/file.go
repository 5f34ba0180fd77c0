// Package file implements the property store on a flat JSON file. The whole
// data set is held in memory behind a RWMutex and persisted with an atomic
// replace (temp file + rename) on every mutation, so readers never observe a
// torn file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iseigbadon/amonheights-2.0/storage"
)

// Store is the JSON-file-backed property store.
type Store struct {
	mu         sync.RWMutex
	path       string
	properties []*storage.Property
	logger     *slog.Logger

	// now is the time source; overridable in tests
	now func() time.Time
}

var _ storage.PropertyStore = (*Store)(nil)

// New opens the store at path, loading existing listings if the file exists.
// A missing file is an empty store; the file appears on first write.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read properties file: %w", err)
		}
		return s, nil
	}

	if err := json.Unmarshal(data, &s.properties); err != nil {
		return nil, fmt.Errorf("failed to parse properties file %s: %w", path, err)
	}

	logger.Info("Loaded properties", "path", path, "count", len(s.properties))
	return s, nil
}

// List returns listings in insertion order, filtered by visibility.
func (s *Store) List(_ context.Context, includeHidden bool) ([]*storage.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Property, 0, len(s.properties))
	for _, p := range s.properties {
		if !includeHidden && !p.Visible {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Get retrieves one listing by id.
func (s *Store) Get(_ context.Context, id int) (*storage.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.properties {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Create stores a new listing. The id is one above the current maximum and
// the creation time is stamped by the store.
func (s *Store) Create(_ context.Context, p *storage.Property) (*storage.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxID := 0
	for _, existing := range s.properties {
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}

	cp := *p
	cp.ID = maxID + 1
	cp.CreatedAt = s.now()
	if cp.FullDescription == "" {
		cp.FullDescription = cp.Description
	}
	if cp.Amenities == nil {
		cp.Amenities = []string{}
	}

	s.properties = append(s.properties, &cp)
	if err := s.persistLocked(); err != nil {
		s.properties = s.properties[:len(s.properties)-1]
		return nil, err
	}

	out := cp
	return &out, nil
}

// Update merges the patch into an existing listing. Fields the patch omits
// keep their stored values.
func (s *Store) Update(_ context.Context, id int, patch *storage.PropertyPatch) (*storage.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.properties {
		if existing.ID != id {
			continue
		}

		cp := *existing
		patch.Apply(&cp)
		if cp.Amenities == nil {
			cp.Amenities = []string{}
		}

		prev := s.properties[i]
		s.properties[i] = &cp
		if err := s.persistLocked(); err != nil {
			s.properties[i] = prev
			return nil, err
		}

		out := cp
		return &out, nil
	}
	return nil, storage.ErrNotFound
}

// Delete removes a listing.
func (s *Store) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.properties {
		if existing.ID != id {
			continue
		}

		prev := s.properties
		s.properties = append(s.properties[:i:i], s.properties[i+1:]...)
		if err := s.persistLocked(); err != nil {
			s.properties = prev
			return err
		}
		return nil
	}
	return storage.ErrNotFound
}

// persistLocked writes the data set atomically. Must be called with the
// write lock held.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.properties, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".properties-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write properties: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace properties file: %w", err)
	}
	return nil
}

// SetTimeSource overrides the store's time source. Intended for tests.
func (s *Store) SetTimeSource(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
