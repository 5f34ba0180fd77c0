package amonheights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iseigbadon/amonheights-2.0/instrumentation"
	"github.com/iseigbadon/amonheights-2.0/internal/util"
	"github.com/iseigbadon/amonheights-2.0/security"
	"github.com/iseigbadon/amonheights-2.0/session"
	"github.com/iseigbadon/amonheights-2.0/storage"
)

// Login attempt outcomes for metrics
const (
	outcomeSuccess            = "success"
	outcomeInvalidInput       = "invalid_input"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeRateLimited        = "rate_limited"
)

// Server implements the service logic. It coordinates the login pipeline
// (rate limiter, credential verifier, session store, audit log) and the
// gated property operations; the Handler layers HTTP on top.
type Server struct {
	config       *Config
	verifier     *security.CredentialVerifier
	loginLimiter *security.LoginLimiter
	rateLimiter  *security.RateLimiter
	auditor      *security.Auditor
	auditSink    *security.FileSink
	sessions     session.Store
	properties   storage.PropertyStore
	inst         *instrumentation.Instrumentation
	logger       *slog.Logger
}

// NewServer creates a server over the given property store. The session
// store, limiters, verifier and auditor are assembled from the config.
func NewServer(cfg *Config, properties storage.PropertyStore) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logger

	passwordHash := cfg.Admin.PasswordHash
	if passwordHash == "" {
		var err error
		passwordHash, err = security.HashPassword(cfg.Admin.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash admin password: %w", err)
		}
		logger.Warn("Admin password hashed at startup; configure ADMIN_PASSWORD_HASH for production")
	}

	s := &Server{
		config:     cfg,
		verifier:   security.NewCredentialVerifier(cfg.Admin.Username, passwordHash, logger),
		properties: properties,
		logger:     logger,
	}

	s.loginLimiter = security.NewLoginLimiterWithConfig(
		cfg.RateLimit.MaxFailedAttempts,
		cfg.RateLimit.LockoutDuration,
		cfg.RateLimit.MaxTrackedIdentities,
		logger,
	)

	if cfg.RateLimit.RequestRate > 0 {
		s.rateLimiter = security.NewRateLimiter(cfg.RateLimit.RequestRate, cfg.RateLimit.RequestBurst, logger)
	}

	var sink security.Sink
	if cfg.Security.EnableAuditLog && cfg.Security.AuditLogPath != "" {
		fileSink, err := security.NewFileSink(cfg.Security.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		s.auditSink = fileSink
		sink = fileSink
	}
	s.auditor = security.NewAuditor(logger, sink, cfg.Security.EnableAuditLog)

	s.sessions = session.NewMemoryStore(cfg.Session.TTL, logger)

	inst, err := instrumentation.New(cfg.Instrumentation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	s.inst = inst

	return s, nil
}

// Login runs the full login pipeline for one attempt from origin.
// Order matters: the lockout gate runs before credential verification, so a
// locked identity is refused even with correct credentials. Exactly one
// audit entry is produced per attempt regardless of outcome.
func (s *Server) Login(ctx context.Context, username, password, origin string) (*session.Session, error) {
	requestID := security.GetRequestID(ctx)
	metrics := s.inst.Metrics()

	allowed, reason := s.loginLimiter.Check(origin)
	if !allowed {
		s.auditor.LogRateLimited(origin, requestID, "login_lockout")
		metrics.RecordLoginAttempt(ctx, outcomeRateLimited)
		metrics.RecordRateLimited(ctx, "login_lockout")
		return nil, ErrRateLimited(reason)
	}

	actor := username
	if actor == "" {
		actor = security.ActorUnknown
	}

	if username == "" || password == "" {
		locked := s.loginLimiter.RecordAttempt(origin, false)
		s.auditor.LogLoginFailure(actor, origin, requestID, "missing credentials", locked)
		metrics.RecordLoginAttempt(ctx, outcomeInvalidInput)
		if locked {
			metrics.RecordLockout(ctx)
		}
		return nil, ErrInvalidRequest("Username and password required")
	}

	if !s.verifier.Verify(username, password) {
		locked := s.loginLimiter.RecordAttempt(origin, false)
		s.auditor.LogLoginFailure(actor, origin, requestID, "invalid credentials", locked)
		metrics.RecordLoginAttempt(ctx, outcomeInvalidCredentials)
		if locked {
			metrics.RecordLockout(ctx)
		}
		return nil, ErrInvalidCredentials()
	}

	s.loginLimiter.RecordAttempt(origin, true)

	sess, err := s.sessions.Create(ctx, username, origin)
	if err != nil {
		s.logger.Error("Session creation failed", "error", err)
		return nil, ErrServerError("Failed to create session")
	}

	s.auditor.LogLoginSuccess(username, origin, requestID)
	metrics.RecordLoginAttempt(ctx, outcomeSuccess)
	metrics.SessionsCreated.Add(ctx, 1)

	s.logger.Info("Admin login", "actor", username, "ip", origin)
	return sess, nil
}

// Logout destroys the session behind token.
func (s *Server) Logout(ctx context.Context, token, actor, origin string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		s.logger.Error("Session destroy failed", "error", err)
		return ErrServerError("Failed to destroy session")
	}
	s.logger.Debug("Session destroyed", "actor", actor, "token_prefix", util.SafeTruncate(token, 8))

	s.auditor.LogLogout(actor, origin, security.GetRequestID(ctx))
	s.inst.Metrics().SessionsDestroyed.Add(ctx, 1)
	return nil
}

// Authenticate resolves a session token. Expired sessions are destroyed by
// the store on detection, so a repeated call observes session.ErrNotFound.
func (s *Server) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrExpired) {
			s.inst.Metrics().SessionsDestroyed.Add(ctx, 1)
		}
		return nil, err
	}
	return sess, nil
}

// validateProperty checks the fields required to publish a listing.
func validateProperty(p *storage.Property) error {
	if p.Name == "" || p.Location == "" || p.Category == "" || p.Price == "" || p.Image == "" {
		return ErrInvalidRequest("Missing required fields")
	}
	return nil
}

// ListProperties returns listings, hidden ones included only for the admin view.
func (s *Server) ListProperties(ctx context.Context, includeHidden bool) ([]*storage.Property, error) {
	list, err := s.properties.List(ctx, includeHidden)
	if err != nil {
		s.inst.Metrics().RecordStorageOperation(ctx, "list", "error")
		s.logger.Error("Property list failed", "error", err)
		return nil, ErrServerError("Failed to load properties")
	}
	s.inst.Metrics().RecordStorageOperation(ctx, "list", "ok")
	return list, nil
}

// CreateProperty validates and stores a new listing.
func (s *Server) CreateProperty(ctx context.Context, p *storage.Property, actor, origin string) (*storage.Property, error) {
	if err := validateProperty(p); err != nil {
		return nil, err
	}

	created, err := s.properties.Create(ctx, p)
	if err != nil {
		s.inst.Metrics().RecordStorageOperation(ctx, "create", "error")
		s.logger.Error("Property create failed", "error", err)
		return nil, ErrServerError("Failed to save property")
	}

	s.inst.Metrics().RecordStorageOperation(ctx, "create", "ok")
	s.auditor.LogPropertyChange(security.EventPropertyCreated, actor, origin, security.GetRequestID(ctx), created.ID)
	return created, nil
}

// UpdateProperty merges the patch into an existing listing. Omitted fields
// keep their stored values, so a dashboard edit without a new upload does not
// wipe the listing's image.
func (s *Server) UpdateProperty(ctx context.Context, id int, patch *storage.PropertyPatch, actor, origin string) (*storage.Property, error) {
	updated, err := s.properties.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.inst.Metrics().RecordStorageOperation(ctx, "update", "not_found")
			return nil, ErrNotFound("Property not found")
		}
		s.inst.Metrics().RecordStorageOperation(ctx, "update", "error")
		s.logger.Error("Property update failed", "id", id, "error", err)
		return nil, ErrServerError("Failed to save property")
	}

	s.inst.Metrics().RecordStorageOperation(ctx, "update", "ok")
	s.auditor.LogPropertyChange(security.EventPropertyUpdated, actor, origin, security.GetRequestID(ctx), id)
	return updated, nil
}

// DeleteProperty removes a listing.
func (s *Server) DeleteProperty(ctx context.Context, id int, actor, origin string) error {
	if err := s.properties.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.inst.Metrics().RecordStorageOperation(ctx, "delete", "not_found")
			return ErrNotFound("Property not found")
		}
		s.inst.Metrics().RecordStorageOperation(ctx, "delete", "error")
		s.logger.Error("Property delete failed", "id", id, "error", err)
		return ErrServerError("Failed to delete property")
	}

	s.inst.Metrics().RecordStorageOperation(ctx, "delete", "ok")
	s.auditor.LogPropertyChange(security.EventPropertyDeleted, actor, origin, security.GetRequestID(ctx), id)
	return nil
}

// Instrumentation returns the server's instrumentation instance.
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.inst
}

// Close stops background goroutines and closes the audit sink.
func (s *Server) Close() error {
	s.loginLimiter.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if ms, ok := s.sessions.(*session.MemoryStore); ok {
		ms.Stop()
	}
	if s.auditSink != nil {
		return s.auditSink.Close()
	}
	return nil
}
