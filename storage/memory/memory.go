// Package memory provides an in-memory property store for tests and
// ephemeral deployments. It mirrors the file store's semantics without
// persistence.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iseigbadon/amonheights-2.0/storage"
)

// Store is the map-backed property store.
type Store struct {
	mu         sync.RWMutex
	properties []*storage.Property

	// now is the time source; overridable in tests
	now func() time.Time
}

var _ storage.PropertyStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{now: time.Now}
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

// Create stores a new listing with the next id.
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
		s.properties[i] = &cp

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
		s.properties = append(s.properties[:i:i], s.properties[i+1:]...)
		return nil
	}
	return storage.ErrNotFound
}

// SetTimeSource overrides the store's time source. Intended for tests.
func (s *Store) SetTimeSource(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
