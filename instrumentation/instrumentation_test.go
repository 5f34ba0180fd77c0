package instrumentation

import (
	"context"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("ServiceName = %q, want %q", inst.config.ServiceName, DefaultServiceName)
	}
	if inst.Metrics() == nil {
		t.Fatal("Metrics() returned nil")
	}
	if inst.MeterProvider() == nil {
		t.Error("MeterProvider() returned nil")
	}
	if inst.TracerProvider() == nil {
		t.Error("TracerProvider() returned nil")
	}
}

func TestNew_Enabled(t *testing.T) {
	inst, err := New(Config{ServiceName: "test", Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.MeterProvider() == nil {
		t.Error("MeterProvider() returned nil")
	}
	if inst.TracerProvider() == nil {
		t.Error("TracerProvider() returned nil")
	}

	ctx := context.Background()
	inst.Metrics().RecordLoginAttempt(ctx, "success")
	inst.Metrics().RecordHTTPRequest(ctx, "GET", "/", "2xx", 1)
}

func TestMetrics_RecordingIsSafe(t *testing.T) {
	inst, err := New(Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	m := inst.Metrics()

	// No-op providers: calls must not panic or error
	m.RecordLoginAttempt(ctx, "success")
	m.RecordLockout(ctx)
	m.RecordRateLimited(ctx, "api")
	m.RecordUnauthorizedAccess(ctx, "/api/admin/properties")
	m.RecordAuditEvent(ctx, "login_success")
	m.RecordHTTPRequest(ctx, "GET", "/api/properties", "2xx", 1.5)
	m.RecordStorageOperation(ctx, "list", "ok")
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordLoginAttempt(ctx, "success")
	m.RecordLockout(ctx)
	m.RecordHTTPRequest(ctx, "GET", "/", "2xx", 1)
}

func TestInstrumentation_Shutdown(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	// Second shutdown is a no-op
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
