package amonheights

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iseigbadon/amonheights-2.0/internal/testutil"
	"github.com/iseigbadon/amonheights-2.0/security"
	"github.com/iseigbadon/amonheights-2.0/session"
	"github.com/iseigbadon/amonheights-2.0/storage"
	storagememory "github.com/iseigbadon/amonheights-2.0/storage/memory"
)

const (
	testUsername = "admin"
	testPassword = "s3cret-password"
)

type testEnv struct {
	server    *Server
	handler   http.Handler
	auditPath string
	uploadDir string
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	uploadDir := filepath.Join(dir, "uploads")

	cfg := &Config{
		Admin: AdminConfig{
			Username: testUsername,
			Password: testPassword,
		},
		Session: SessionConfig{
			Secret: []byte("0123456789abcdef0123456789abcdef"),
		},
		Security: SecurityConfig{
			EnableAuditLog: true,
			AuditLogPath:   auditPath,
		},
		Storage: StorageConfig{
			UploadsDir: uploadDir,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg, storagememory.New())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	return &testEnv{
		server:    srv,
		handler:   NewHandler(srv, nil).Router(),
		auditPath: auditPath,
		uploadDir: uploadDir,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	r := httptest.NewRequest(method, path, &buf)
	r.RemoteAddr = "203.0.113.7:54321"
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code, "login should succeed: %s", w.Body.String())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func (e *testEnv) auditEntries(t *testing.T) []security.Entry {
	t.Helper()

	f, err := os.Open(e.auditPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	defer f.Close()

	var entries []security.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry security.Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func auditByType(entries []security.Entry, eventType string) []security.Entry {
	var out []security.Entry
	for _, e := range entries {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code)

	var body loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEmpty(t, cookies[0].Value)

	entries := auditByType(env.auditEntries(t), security.EventLoginSuccess)
	require.Len(t, entries, 1)
	assert.Equal(t, testUsername, entries[0].Actor)
	assert.Equal(t, "203.0.113.7", entries[0].IP)
	assert.NotEmpty(t, entries[0].RequestID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decodeError(t, w).Code)
	assert.Empty(t, w.Result().Cookies())

	// Wrong username yields the same response as wrong password
	w = env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: "root", Password: testPassword})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decodeError(t, w).Code)

	failures := auditByType(env.auditEntries(t), security.EventLoginFailure)
	require.Len(t, failures, 2)
	for _, e := range failures {
		assert.False(t, e.Success)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"empty body", nil},
		{"malformed json", "not json"},
		{"missing password", loginRequest{Username: testUsername}},
		{"missing username", loginRequest{Password: testPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/admin/login", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", decodeError(t, w).Code)
		})
	}

	// Every malformed attempt still counted against the limiter and audit
	failures := auditByType(env.auditEntries(t), security.EventLoginFailure)
	assert.Len(t, failures, len(tests))
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 5; i++ {
		w := env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code, "failure %d", i+1)
	}

	// Correct credentials are refused during lockout
	w := env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: testPassword})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeError(t, w).Code)

	entries := env.auditEntries(t)
	failures := auditByType(entries, security.EventLoginFailure)
	require.Len(t, failures, 5)

	// The fifth failure carries the lockout marker; earlier ones do not
	_, locked := failures[4].Details["locked"]
	assert.True(t, locked, "fifth failure should be marked as the lockout trigger")
	for i := 0; i < 4; i++ {
		_, early := failures[i].Details["locked"]
		assert.False(t, early, "failure %d should not be marked locked", i+1)
	}

	// The refused attempt produced exactly one rate_limited entry, no failure entry
	assert.Len(t, auditByType(entries, security.EventRateLimited), 1)
	assert.Empty(t, auditByType(entries, security.EventLoginSuccess))
}

func TestLogin_LockoutExpires(t *testing.T) {
	env := newTestEnv(t, nil)

	clock := testutil.NewMockTime(time.Now())
	env.server.loginLimiter.SetTimeSource(clock.Now)

	for i := 0; i < 5; i++ {
		env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: "wrong"})
	}

	w := env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: testPassword})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	clock.Advance(16 * time.Minute)

	w = env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code, "login should succeed after lockout expiry")
}

func TestLogin_SuccessResetsFailureCounter(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 4; i++ {
		env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: "wrong"})
	}
	env.login(t)

	// Four more failures fit under the threshold again
	for i := 0; i < 4; i++ {
		w := env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code, "failure %d after reset", i+1)
	}
}

func TestAuthGate_NoSession(t *testing.T) {
	env := newTestEnv(t, nil)

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/admin/properties"},
		{http.MethodPost, "/api/admin/properties"},
		{http.MethodPut, "/api/admin/properties/1"},
		{http.MethodDelete, "/api/admin/properties/1"},
		{http.MethodPost, "/api/admin/upload"},
		{http.MethodPost, "/api/admin/logout"},
	}

	for _, route := range protected {
		w := env.do(t, route.method, route.path, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
		assert.Equal(t, "unauthorized", decodeError(t, w).Code)
	}

	denies := auditByType(env.auditEntries(t), security.EventUnauthorizedAccess)
	require.Len(t, denies, len(protected))
	for i, e := range denies {
		assert.Equal(t, protected[i].path, e.Details["path"])
	}
}

func TestAuthGate_TamperedCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	cookie.Value = cookie.Value[:len(cookie.Value)-4] + "AAAA"

	w := env.do(t, http.MethodGet, "/api/admin/properties", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Code)
}

func TestAuthGate_SessionExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	store := env.server.sessions.(*session.MemoryStore)
	store.SetTimeSource(func() time.Time { return time.Now().Add(61 * time.Minute) })

	w := env.do(t, http.MethodGet, "/api/admin/properties", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_expired", decodeError(t, w).Code)

	// The expired session was destroyed, so the retry is a plain 401
	w = env.do(t, http.MethodGet, "/api/admin/properties", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	w := env.do(t, http.MethodPost, "/api/admin/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	// The session is gone server-side regardless of the client cookie
	w = env.do(t, http.MethodGet, "/api/admin/properties", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	logouts := auditByType(env.auditEntries(t), security.EventLogout)
	require.Len(t, logouts, 1)
	assert.Equal(t, testUsername, logouts[0].Actor)
}

func TestCheck(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/admin/check", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body checkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Authenticated)

	cookie := env.login(t)
	w = env.do(t, http.MethodGet, "/api/admin/check", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Authenticated)

	// Past the session TTL the same check flips back to unauthenticated
	store := env.server.sessions.(*session.MemoryStore)
	store.SetTimeSource(func() time.Time { return time.Now().Add(61 * time.Minute) })

	w = env.do(t, http.MethodGet, "/api/admin/check", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Authenticated)
}

func TestPropertyCRUD(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	create := storage.Property{
		Name:        "Sunset Villa",
		Location:    "Lekki Phase 1",
		Category:    "duplex",
		Price:       "₦250,000,000",
		Description: "Short blurb",
		Image:       "/uploads/image_1.jpg",
		Visible:     true,
	}

	w := env.do(t, http.MethodPost, "/api/admin/properties", create, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created propertyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.Property)
	assert.Equal(t, 1, created.Property.ID)
	assert.False(t, created.Property.CreatedAt.IsZero())

	update := create
	update.Name = "Sunset Villa Renovated"
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/properties/%d", created.Property.ID), update, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated propertyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Sunset Villa Renovated", updated.Property.Name)
	assert.Equal(t, created.Property.ID, updated.Property.ID)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/properties/%d", created.Property.ID), nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	// Exactly one audit entry per privileged mutation, attributed to the actor
	entries := env.auditEntries(t)
	for _, eventType := range []string{
		security.EventPropertyCreated,
		security.EventPropertyUpdated,
		security.EventPropertyDeleted,
	} {
		typed := auditByType(entries, eventType)
		require.Len(t, typed, 1, eventType)
		assert.Equal(t, testUsername, typed[0].Actor)
		assert.EqualValues(t, created.Property.ID, typed[0].Details["property_id"])
	}
}

// The dashboard edit form only includes "image" when the admin uploaded a
// replacement, and may omit other fields too. A partial PUT body must merge
// into the stored listing instead of zeroing whatever it leaves out.
func TestPropertyUpdate_PartialBodyKeepsOmittedFields(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	create := storage.Property{
		Name:        "Sunset Villa",
		Location:    "Lekki Phase 1",
		Category:    "duplex",
		Price:       "₦250,000,000",
		Description: "Short blurb",
		Image:       "/uploads/original.jpg",
		Amenities:   []string{"pool"},
		Visible:     true,
	}
	w := env.do(t, http.MethodPost, "/api/admin/properties", create, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created propertyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Property.ID

	// Edit-without-reupload body, shaped like the dashboard's: no "image" key
	edit := map[string]any{
		"name":        "Sunset Villa Renovated",
		"location":    "Lekki Phase 1",
		"category":    "duplex",
		"price":       "₦260,000,000",
		"description": "Short blurb",
		"amenities":   []string{"pool", "gym"},
		"visible":     false,
	}
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/properties/%d", id), edit, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated propertyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "/uploads/original.jpg", updated.Property.Image, "stored image must survive an edit without a new upload")
	assert.Equal(t, "Sunset Villa Renovated", updated.Property.Name)
	assert.False(t, updated.Property.Visible)

	// A body omitting "visible" must not un-hide the listing
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/properties/%d", id),
		map[string]any{"price": "₦270,000,000"}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.False(t, updated.Property.Visible, "hidden listing must stay hidden when the body omits visible")
	assert.Equal(t, "/uploads/original.jpg", updated.Property.Image)
	assert.Equal(t, "₦270,000,000", updated.Property.Price)
}

func TestPropertyCreate_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	w := env.do(t, http.MethodPost, "/api/admin/properties", storage.Property{Name: "No location"}, cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Code)

	// Nothing stored, nothing audited
	list := env.do(t, http.MethodGet, "/api/admin/properties", nil, cookie)
	var all []*storage.Property
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &all))
	assert.Empty(t, all)
	assert.Empty(t, auditByType(env.auditEntries(t), security.EventPropertyCreated))
}

func TestPropertyUpdate_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	w := env.do(t, http.MethodPut, "/api/admin/properties/999", storage.Property{Name: "Ghost"}, cookie)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Code)

	w = env.do(t, http.MethodDelete, "/api/admin/properties/999", nil, cookie)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicProperties_HiddenFiltered(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	visible := storage.Property{
		Name: "Visible", Location: "Lekki", Category: "duplex",
		Price: "₦1", Image: "/uploads/a.jpg", Visible: true,
	}
	hidden := visible
	hidden.Name = "Hidden"
	hidden.Visible = false

	env.do(t, http.MethodPost, "/api/admin/properties", visible, cookie)
	env.do(t, http.MethodPost, "/api/admin/properties", hidden, cookie)

	// The storefront never sees hidden listings and needs no session
	w := env.do(t, http.MethodGet, "/api/properties", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var public []*storage.Property
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &public))
	require.Len(t, public, 1)
	assert.Equal(t, "Visible", public[0].Name)

	// The admin view includes both
	w = env.do(t, http.MethodGet, "/api/admin/properties", nil, cookie)
	var all []*storage.Property
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	w := env.doUpload(t, png, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Contains(t, body.URL, "/uploads/image_")
	assert.Contains(t, body.URL, ".png")

	stored := filepath.Join(env.uploadDir, filepath.Base(body.URL))
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("uploaded file not stored: %v", err)
	}

	uploads := auditByType(env.auditEntries(t), security.EventImageUploaded)
	require.Len(t, uploads, 1)
	assert.Equal(t, testUsername, uploads[0].Actor)
}

func TestUpload_RejectsNonImage(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	w := env.doUpload(t, []byte("#!/bin/sh\nrm -rf /\n"), cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Code)
	assert.Empty(t, auditByType(env.auditEntries(t), security.EventImageUploaded))
}

func (e *testEnv) doUpload(t *testing.T, content []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/admin/upload", &buf)
	r.RemoteAddr = "203.0.113.7:54321"
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.AddCookie(cookie)

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func TestAPIRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.RequestRate = 1
		cfg.RateLimit.RequestBurst = 2
	})

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/api/properties", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := env.do(t, http.MethodGet, "/api/properties", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeError(t, w).Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	limited := auditByType(env.auditEntries(t), security.EventRateLimited)
	require.Len(t, limited, 1)
	assert.Equal(t, "api", limited[0].Details["scope"])
}

func TestAuditTrail_OrderedAndAppendOnly(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodPost, "/api/admin/login", loginRequest{Username: testUsername, Password: "wrong"})
	cookie := env.login(t)
	env.do(t, http.MethodPost, "/api/admin/logout", nil, cookie)

	entries := env.auditEntries(t)
	require.Len(t, entries, 3)
	assert.Equal(t, security.EventLoginFailure, entries[0].Type)
	assert.Equal(t, security.EventLoginSuccess, entries[1].Type)
	assert.Equal(t, security.EventLogout, entries[2].Type)

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Time.Before(entries[i-1].Time),
			"entry %d timestamp precedes entry %d", i, i-1)
	}
}

func TestResponseHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/properties", nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(security.RequestIDHeader))
}
