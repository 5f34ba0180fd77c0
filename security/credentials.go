package security

import (
	"crypto/subtle"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the cost used for the pre-seeded admin hash.
const bcryptCost = 10

// CredentialVerifier validates the single configured admin credential.
// The stored secret is a bcrypt hash established at process start and
// immutable thereafter, so no locking is needed.
type CredentialVerifier struct {
	username     string
	passwordHash []byte
	logger       *slog.Logger
}

// NewCredentialVerifier creates a verifier for the given username and bcrypt
// password hash.
func NewCredentialVerifier(username, passwordHash string, logger *slog.Logger) *CredentialVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialVerifier{
		username:     username,
		passwordHash: []byte(passwordHash),
		logger:       logger,
	}
}

// HashPassword derives a bcrypt hash for a plaintext admin password supplied
// via configuration instead of a pre-computed hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether the username/password pair matches the configured
// credential. It fails closed: empty inputs are rejected before any hashing
// work, and a missing hash (startup race) rejects rather than panics. The
// password comparison goes through bcrypt, which is constant-structure; the
// username is not a secret but is compared in constant time anyway.
func (v *CredentialVerifier) Verify(username, password string) bool {
	if username == "" || password == "" {
		return false
	}

	if len(v.passwordHash) == 0 {
		v.logger.Error("Credential verification attempted before hash was configured")
		return false
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1

	// Always run the bcrypt comparison so a wrong username costs the same as
	// a wrong password.
	err := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password))

	return usernameOK && err == nil
}
