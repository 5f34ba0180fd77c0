// Package amonheights implements the Amon Heights listing service: a public
// storefront API plus an admin dashboard API for listing management, guarded
// by a rate-limited, session-based, audit-logged authentication layer.
package amonheights

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/iseigbadon/amonheights-2.0/instrumentation"
)

// Config holds the service configuration.
// Structured using composition: one sub-config per concern.
type Config struct {
	// Admin is the single configured admin credential
	Admin AdminConfig

	// Session controls session lifetime and the signed cookie
	Session SessionConfig

	// RateLimit controls login lockout and API request throttling
	RateLimit RateLimitConfig

	// Security holds mode flags and the audit log destination
	Security SecurityConfig

	// Storage points at the data file and content directories
	Storage StorageConfig

	// Instrumentation configures OpenTelemetry metrics and tracing
	Instrumentation instrumentation.Config

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// AdminConfig holds the single admin credential. There is no multi-user
// model; exactly one (username, password hash) pair exists.
type AdminConfig struct {
	// Username is the admin login name
	Username string

	// PasswordHash is a pre-computed bcrypt hash. Takes precedence over
	// Password when both are set.
	PasswordHash string

	// Password is a plaintext password hashed once at startup. Intended for
	// development; production should configure PasswordHash.
	Password string
}

// SessionConfig controls session issuance and the cookie carrying the token
type SessionConfig struct {
	// Secret signs the session cookie. Required; at least 32 bytes.
	Secret []byte

	// TTL is how long a session stays valid after login. Default: 1 hour.
	TTL time.Duration

	// CookieName overrides the session cookie name
	CookieName string
}

// RateLimitConfig holds both rate limiting concerns: the failed-login
// lockout and the general API request throttle.
type RateLimitConfig struct {
	// MaxFailedAttempts is the failure threshold before lockout. Default: 5.
	MaxFailedAttempts int

	// LockoutDuration is how long a locked identity stays barred. Default: 15m.
	LockoutDuration time.Duration

	// MaxTrackedIdentities bounds the lockout map; least recently seen
	// identities are evicted beyond it. Default: 10,000.
	MaxTrackedIdentities int

	// RequestRate is API requests per second allowed per IP. Zero disables
	// the request throttle (lockout still applies).
	RequestRate int

	// RequestBurst is the burst size for the request throttle
	RequestBurst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of the
	// server, used to pick the client hop in X-Forwarded-For. Default: 1.
	TrustedProxyCount int
}

// SecurityConfig holds mode flags and audit settings
type SecurityConfig struct {
	// Production suppresses internal error detail in responses and enables
	// HSTS and the Secure cookie flag
	Production bool

	// EnableAuditLog enables the security audit trail
	EnableAuditLog bool

	// AuditLogPath is the JSON-lines audit file. Empty with auditing enabled
	// keeps entries in the structured log only.
	AuditLogPath string

	// AllowedOrigins lists CORS origins for the API. Empty disables CORS
	// handling (same-origin only).
	AllowedOrigins []string
}

// StorageConfig points at the flat data file and content directories
type StorageConfig struct {
	// PropertiesFile is the JSON data file holding all listings
	PropertiesFile string

	// UploadsDir receives uploaded property images
	UploadsDir string

	// PublicDir is the storefront static root served at /
	PublicDir string

	// AdminDir holds the admin login and dashboard pages
	AdminDir string

	// MaxUploadBytes caps image uploads. Default: 10 MiB.
	MaxUploadBytes int64
}

// Validate checks required fields and applies defaults in place.
func (c *Config) Validate() error {
	if c.Admin.Username == "" {
		return fmt.Errorf("admin username is required")
	}
	if c.Admin.PasswordHash == "" && c.Admin.Password == "" {
		return fmt.Errorf("admin password or password hash is required")
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}

	if c.Session.TTL <= 0 {
		c.Session.TTL = time.Hour
	}
	if c.RateLimit.MaxFailedAttempts <= 0 {
		c.RateLimit.MaxFailedAttempts = 5
	}
	if c.RateLimit.LockoutDuration <= 0 {
		c.RateLimit.LockoutDuration = 15 * time.Minute
	}
	if c.RateLimit.TrustedProxyCount <= 0 {
		c.RateLimit.TrustedProxyCount = 1
	}
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = 10 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}
