package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation. Sessions are process
// local and lost on restart, which is the accepted model for this service.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl             time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger

	// now is the time source; overridable in tests
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store with the given session TTL and a
// one-minute cleanup interval. ttl <= 0 falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration, logger *slog.Logger) *MemoryStore {
	return NewMemoryStoreWithInterval(ttl, time.Minute, logger)
}

// NewMemoryStoreWithInterval creates a memory store with a custom cleanup
// interval. Expiry correctness does not depend on the sweep; Get enforces it
// lazily. The sweep only reclaims memory of sessions nobody touches again.
func NewMemoryStoreWithInterval(ttl, cleanupInterval time.Duration, logger *slog.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &MemoryStore{
		sessions:        make(map[string]*Session),
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          logger,
		now:             time.Now,
	}

	go s.cleanupLoop()

	return s
}

// Create issues a new session with a fresh random token.
func (s *MemoryStore) Create(_ context.Context, actor, origin string) (*Session, error) {
	sess := &Session{
		Token:     NewToken(),
		Actor:     actor,
		Origin:    origin,
		LoginTime: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	return sess, nil
}

// Get resolves a token, purging and reporting sessions past the TTL.
func (s *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}

	if now.Sub(sess.LoginTime) > s.ttl {
		delete(s.sessions, token)
		s.logger.Debug("Session expired on access", "actor", sess.Actor)
		return nil, ErrExpired
	}

	return sess, nil
}

// Delete destroys a session if it exists.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// Count returns the number of live (possibly expired but unswept) sessions.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// cleanupLoop periodically reclaims expired sessions
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if now.Sub(sess.LoginTime) > s.ttl {
			delete(s.sessions, token)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Session cleanup completed", "removed", removed, "remaining", len(s.sessions))
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// SetTimeSource overrides the store's time source. Intended for tests that
// simulate expiry by advancing a fake clock.
func (s *MemoryStore) SetTimeSource(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
