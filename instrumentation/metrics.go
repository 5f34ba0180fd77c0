package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys for this service's telemetry. Never attach credential or
// session token values; only outcomes and metadata.
const (
	AttrOutcome         = "auth.outcome"       // success, invalid_credentials, invalid_input, rate_limited
	AttrAuditEventType  = "audit.event_type"   // audit entry type
	AttrStorageOp       = "storage.operation"  // list, get, create, update, delete
	AttrStorageResult   = "storage.result"     // ok, not_found, error
	AttrHTTPEndpoint    = "http.endpoint"      // matched route template
	AttrHTTPMethod      = "http.method"        // request method
	AttrHTTPStatusClass = "http.status_class"  // 2xx, 4xx, 5xx
	AttrRateLimitScope  = "ratelimit.scope"    // login_lockout or api
)

// Metrics holds all metric instruments for the service
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Auth layer
	LoginAttempts      metric.Int64Counter
	Lockouts           metric.Int64Counter
	RateLimited        metric.Int64Counter
	UnauthorizedAccess metric.Int64Counter
	SessionsCreated    metric.Int64Counter
	SessionsDestroyed  metric.Int64Counter

	// Audit layer
	AuditEventsTotal metric.Int64Counter

	// Storage layer
	StorageOperationsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	authMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"amonheights.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"amonheights.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.LoginAttempts, err = authMeter.Int64Counter(
		"amonheights.auth.login_attempts.total",
		metric.WithDescription("Login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.login_attempts counter: %w", err)
	}

	m.Lockouts, err = authMeter.Int64Counter(
		"amonheights.auth.lockouts.total",
		metric.WithDescription("Login lockouts imposed"),
		metric.WithUnit("{lockout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.lockouts counter: %w", err)
	}

	m.RateLimited, err = authMeter.Int64Counter(
		"amonheights.auth.rate_limited.total",
		metric.WithDescription("Requests refused by lockout or rate limiting"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.rate_limited counter: %w", err)
	}

	m.UnauthorizedAccess, err = authMeter.Int64Counter(
		"amonheights.auth.unauthorized_access.total",
		metric.WithDescription("Denied accesses to protected routes"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.unauthorized_access counter: %w", err)
	}

	m.SessionsCreated, err = authMeter.Int64Counter(
		"amonheights.auth.sessions_created.total",
		metric.WithDescription("Sessions created on successful login"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.sessions_created counter: %w", err)
	}

	m.SessionsDestroyed, err = authMeter.Int64Counter(
		"amonheights.auth.sessions_destroyed.total",
		metric.WithDescription("Sessions destroyed by logout or expiry"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.sessions_destroyed counter: %w", err)
	}

	m.AuditEventsTotal, err = authMeter.Int64Counter(
		"amonheights.audit.events.total",
		metric.WithDescription("Audit entries recorded by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events counter: %w", err)
	}

	m.StorageOperationsTotal, err = storageMeter.Int64Counter(
		"amonheights.storage.operations.total",
		metric.WithDescription("Property store operations by result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations counter: %w", err)
	}

	return m, nil
}

// RecordLoginAttempt records one login attempt with its outcome.
func (m *Metrics) RecordLoginAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

// RecordLockout records one lockout being imposed.
func (m *Metrics) RecordLockout(ctx context.Context) {
	if m == nil {
		return
	}
	m.Lockouts.Add(ctx, 1)
}

// RecordRateLimited records one refused request for the given scope.
func (m *Metrics) RecordRateLimited(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRateLimitScope, scope)))
}

// RecordUnauthorizedAccess records one denied protected-route access.
func (m *Metrics) RecordUnauthorizedAccess(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.UnauthorizedAccess.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrHTTPEndpoint, endpoint)))
}

// RecordAuditEvent records one audit entry by type.
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAuditEventType, eventType)))
}

// RecordHTTPRequest records one completed request with its duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint, statusClass string, durationMS float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.String(AttrHTTPStatusClass, statusClass),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMS, attrs)
}

// RecordStorageOperation records one property store operation.
func (m *Metrics) RecordStorageOperation(ctx context.Context, op, result string) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStorageOp, op),
		attribute.String(AttrStorageResult, result),
	))
}
