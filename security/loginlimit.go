package security

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxFailedAttempts is the number of failed logins allowed before lockout
	DefaultMaxFailedAttempts = 5

	// DefaultLockoutDuration is how long an identity stays locked out
	DefaultLockoutDuration = 15 * time.Minute

	// DefaultLoginCleanupInterval is how often the cleanup goroutine runs
	DefaultLoginCleanupInterval = 15 * time.Minute

	// DefaultMaxLoginEntries is the maximum number of identities tracked simultaneously
	DefaultMaxLoginEntries = 10000

	// defaultIdleRecordMaxAge is how long an untouched record survives cleanup.
	// Must exceed the lockout duration so an active lockout is never swept away.
	defaultIdleRecordMaxAge = time.Hour
)

// loginRecord tracks failed login attempts for one identity
type loginRecord struct {
	identity    string
	attempts    int
	lockedUntil time.Time
	lastAccess  time.Time
}

// LoginLimiter tracks failed login attempts per client identity and imposes a
// temporary lockout once the failure threshold is reached. Records are bounded
// with LRU eviction and periodic cleanup of idle identities so an attacker
// cannot grow the map without limit.
type LoginLimiter struct {
	records         map[string]*list.Element // identity -> list element
	lruList         *list.List               // LRU list of *loginRecord
	mu              sync.Mutex
	maxAttempts     int
	lockout         time.Duration
	maxEntries      int
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// now is the time source; overridable in tests
	now func() time.Time

	// Statistics
	totalLockouts  int64
	totalEvictions int64
	totalCleanups  int64
}

// NewLoginLimiter creates a login limiter with the default threshold (5 failures)
// and lockout duration (15 minutes).
func NewLoginLimiter(logger *slog.Logger) *LoginLimiter {
	return NewLoginLimiterWithConfig(DefaultMaxFailedAttempts, DefaultLockoutDuration, DefaultMaxLoginEntries, logger)
}

// NewLoginLimiterWithConfig creates a login limiter with a custom failure
// threshold, lockout duration and tracked-identity bound. maxEntries <= 0
// falls back to the default bound.
func NewLoginLimiterWithConfig(maxAttempts int, lockout time.Duration, maxEntries int, logger *slog.Logger) *LoginLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxFailedAttempts
		logger.Warn("Invalid maxAttempts, using default", "maxAttempts", maxAttempts)
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
		logger.Warn("Invalid lockout duration, using default", "lockout", lockout)
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLoginEntries
	}

	l := &LoginLimiter{
		records:         make(map[string]*list.Element),
		lruList:         list.New(),
		maxAttempts:     maxAttempts,
		lockout:         lockout,
		maxEntries:      maxEntries,
		logger:          logger,
		cleanupInterval: DefaultLoginCleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	go l.cleanupLoop()

	return l
}

// Check reports whether a login attempt from the given identity may proceed.
// It must run before credential verification: a locked-out identity is refused
// even if it would present correct credentials. An expired lockout resets the
// record to zero attempts before evaluation (lazy expiry, no background sweep
// needed for correctness).
func (l *LoginLimiter) Check(identity string) (allowed bool, reason string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	elem, exists := l.records[identity]
	if !exists {
		// Unknown identity: implicitly zero attempts, no lockout
		return true, ""
	}

	l.lruList.MoveToFront(elem)
	rec := elem.Value.(*loginRecord)
	rec.lastAccess = now

	if rec.lockedUntil.IsZero() {
		return true, ""
	}

	if now.Before(rec.lockedUntil) {
		remaining := rec.lockedUntil.Sub(now).Round(time.Second)
		return false, fmt.Sprintf("Too many failed login attempts. Try again in %s.", remaining)
	}

	// Lockout elapsed: reset before evaluation continues
	rec.attempts = 0
	rec.lockedUntil = time.Time{}
	return true, ""
}

// RecordAttempt records the outcome of a login attempt for the given identity.
// A success clears the record unconditionally. A failure increments the
// counter; reaching the threshold sets the lockout and returns locked=true.
func (l *LoginLimiter) RecordAttempt(identity string, success bool) (locked bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		if elem, exists := l.records[identity]; exists {
			l.lruList.Remove(elem)
			delete(l.records, identity)
		}
		return false
	}

	rec := l.getOrCreateLocked(identity, now)
	rec.attempts++
	rec.lastAccess = now

	if rec.attempts >= l.maxAttempts {
		rec.lockedUntil = now.Add(l.lockout)
		l.totalLockouts++
		l.logger.Warn("Login identity locked out",
			"identity", identity,
			"attempts", rec.attempts,
			"locked_until", rec.lockedUntil,
			"total_lockouts", l.totalLockouts)
		return true
	}

	return false
}

// getOrCreateLocked returns the record for identity, creating it (with LRU
// eviction at capacity) if needed. Must be called with the mutex held.
func (l *LoginLimiter) getOrCreateLocked(identity string, now time.Time) *loginRecord {
	if elem, exists := l.records[identity]; exists {
		l.lruList.MoveToFront(elem)
		return elem.Value.(*loginRecord)
	}

	if l.maxEntries > 0 && len(l.records) >= l.maxEntries {
		l.evictLRULocked()
	}

	rec := &loginRecord{
		identity:   identity,
		lastAccess: now,
	}
	l.records[identity] = l.lruList.PushFront(rec)
	return rec
}

// evictLRULocked removes the least recently used record. Must be called with
// the mutex held.
func (l *LoginLimiter) evictLRULocked() {
	elem := l.lruList.Back()
	if elem == nil {
		return
	}

	rec := elem.Value.(*loginRecord)
	delete(l.records, rec.identity)
	l.lruList.Remove(elem)
	l.totalEvictions++

	l.logger.Debug("Login limiter LRU eviction",
		"identity", rec.identity,
		"total_evictions", l.totalEvictions,
		"current_entries", len(l.records))
}

// cleanupLoop periodically removes idle records to prevent memory growth
func (l *LoginLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(defaultIdleRecordMaxAge)
		case <-l.stopCleanup:
			return
		}
	}
}

// Cleanup removes records that have not been touched for maxIdleTime and whose
// lockout (if any) has elapsed.
func (l *LoginLimiter) Cleanup(maxIdleTime time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	var next *list.Element
	for elem := l.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		rec := elem.Value.(*loginRecord)

		if now.Sub(rec.lastAccess) > maxIdleTime && !now.Before(rec.lockedUntil) {
			delete(l.records, rec.identity)
			l.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		l.totalCleanups++
		l.logger.Debug("Login limiter cleanup completed",
			"removed", removed,
			"remaining", len(l.records),
			"total_cleanups", l.totalCleanups)
	}
}

// Stop gracefully stops the cleanup goroutine
func (l *LoginLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
	})
}

// LoginLimiterStats holds login limiter statistics for monitoring
type LoginLimiterStats struct {
	CurrentEntries int   // Current number of tracked identities
	MaxEntries     int   // Maximum allowed entries
	TotalLockouts  int64 // Total number of lockouts imposed
	TotalEvictions int64 // Total number of LRU evictions
	TotalCleanups  int64 // Total number of cleanup operations
}

// GetStats returns current limiter statistics for monitoring and alerting.
func (l *LoginLimiter) GetStats() LoginLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LoginLimiterStats{
		CurrentEntries: len(l.records),
		MaxEntries:     l.maxEntries,
		TotalLockouts:  l.totalLockouts,
		TotalEvictions: l.totalEvictions,
		TotalCleanups:  l.totalCleanups,
	}
}

// SetTimeSource overrides the limiter's time source. Intended for tests that
// need to simulate lockout expiry without sleeping.
func (l *LoginLimiter) SetTimeSource(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
