// Package security provides the security core of the admin surface: failed
// login lockout, request rate limiting, credential verification, audit
// logging, and secure header management.
package security

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one immutable audit record. Entries are ordered by append time and
// are never mutated or deleted by the running process.
type Entry struct {
	Time      time.Time      `json:"time"`
	Type      string         `json:"type"`
	Actor     string         `json:"actor"`
	Success   bool           `json:"success"`
	IP        string         `json:"ip,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink is an append-only destination for audit entries. Append must be safe
// for concurrent use; each call persists exactly one entry.
type Sink interface {
	Append(Entry) error
}

// Auditor records security-relevant events. Every event is written to the
// structured log and, when a sink is configured, appended to it. Sink
// failures degrade to the log and never block the primary operation.
type Auditor struct {
	mu      sync.Mutex
	logger  *slog.Logger
	sink    Sink
	enabled bool

	// now is the time source; overridable in tests
	now func() time.Time
}

// NewAuditor creates an auditor writing to the given sink. A nil sink logs
// only. When enabled is false all recording is a no-op.
func NewAuditor(logger *slog.Logger, sink Sink, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		sink:    sink,
		enabled: enabled,
		now:     time.Now,
	}
}

// Record appends one audit entry. Timestamping and the sink append happen
// under a single lock so entry timestamps never run backwards relative to
// append order, even with concurrent writers.
func (a *Auditor) Record(eventType, actor string, success bool, ip, requestID string, details map[string]any) {
	if a == nil || !a.enabled {
		return
	}

	a.mu.Lock()
	entry := Entry{
		Time:      a.now(),
		Type:      eventType,
		Actor:     actor,
		Success:   success,
		IP:        ip,
		RequestID: requestID,
		Details:   details,
	}

	var sinkErr error
	if a.sink != nil {
		sinkErr = a.sink.Append(entry)
	}
	a.mu.Unlock()

	a.logger.Info("security_audit",
		"event_type", entry.Type,
		"actor", entry.Actor,
		"success", entry.Success,
		"ip", entry.IP,
		"request_id", entry.RequestID,
		"details", entry.Details,
		"timestamp", entry.Time,
	)

	if sinkErr != nil {
		// Degraded, not fatal: the event still reached the structured log.
		a.logger.Error("Audit sink append failed", "event_type", entry.Type, "error", sinkErr)
	}
}

// LogLoginSuccess records a successful admin login.
func (a *Auditor) LogLoginSuccess(actor, ip, requestID string) {
	a.Record(EventLoginSuccess, actor, true, ip, requestID, nil)
}

// LogLoginFailure records a failed login attempt. locked marks the failure
// that tripped the lockout threshold.
func (a *Auditor) LogLoginFailure(actor, ip, requestID, reason string, locked bool) {
	details := map[string]any{"reason": reason}
	if locked {
		details["locked"] = true
	}
	a.Record(EventLoginFailure, actor, false, ip, requestID, details)
}

// LogRateLimited records a request refused by lockout or rate limiting.
func (a *Auditor) LogRateLimited(ip, requestID, scope string) {
	a.Record(EventRateLimited, ActorUnknown, false, ip, requestID, map[string]any{"scope": scope})
}

// LogLogout records an explicit session logout.
func (a *Auditor) LogLogout(actor, ip, requestID string) {
	a.Record(EventLogout, actor, true, ip, requestID, nil)
}

// LogUnauthorizedAccess records a denied access to a protected route.
func (a *Auditor) LogUnauthorizedAccess(ip, requestID, path, reason string) {
	a.Record(EventUnauthorizedAccess, ActorUnknown, false, ip, requestID, map[string]any{
		"path":   path,
		"reason": reason,
	})
}

// LogPropertyChange records a create, update or delete of a listing.
func (a *Auditor) LogPropertyChange(eventType, actor, ip, requestID string, propertyID int) {
	a.Record(eventType, actor, true, ip, requestID, map[string]any{"property_id": propertyID})
}

// LogImageUploaded records a stored property image upload.
func (a *Auditor) LogImageUploaded(actor, ip, requestID, filename string) {
	a.Record(EventImageUploaded, actor, true, ip, requestID, map[string]any{"filename": filename})
}

// SetTimeSource overrides the auditor's time source. Intended for tests.
func (a *Auditor) SetTimeSource(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}
