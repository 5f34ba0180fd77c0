// Package session manages admin sessions: opaque server-issued tokens mapped
// to process-local session state, with expiry enforced centrally by the
// store so every caller observes the same policy.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is how long a session stays valid after login.
const DefaultTTL = time.Hour

var (
	// ErrNotFound is returned when no session exists for a token.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned exactly once per expired session: the lookup
	// that detects expiry purges the session, so the next lookup observes
	// ErrNotFound.
	ErrExpired = errors.New("session expired")
)

// Session is the state behind one issued token. Created on successful login,
// destroyed on logout or expiry detection, never updated in between.
type Session struct {
	Token     string
	Actor     string // authenticated username
	Origin    string // client identity at login time
	LoginTime time.Time
}

// Store is the process-wide session mapping. Implementations must enforce
// expiry inside Get and must be safe for concurrent use.
type Store interface {
	// Create issues a new authenticated session for actor.
	Create(ctx context.Context, actor, origin string) (*Session, error)

	// Get resolves a token. Expired sessions are purged as a side effect and
	// reported as ErrExpired; unknown tokens as ErrNotFound.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete destroys a session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
}

// NewToken returns an opaque session token: 32 bytes of entropy encoded as
// base64url. Panics only if the system RNG fails.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
