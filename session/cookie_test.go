package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testSecret() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestCodec_RoundTrip(t *testing.T) {
	c := NewCodec(testSecret(), "", false, time.Hour)

	w := httptest.NewRecorder()
	if err := c.Set(w, "token-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("len(cookies) = %d, want 1", len(cookies))
	}

	cookie := cookies[0]
	if cookie.Name != DefaultCookieName {
		t.Errorf("Name = %q, want %q", cookie.Name, DefaultCookieName)
	}
	if !cookie.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Error("cookie must be SameSite=Strict")
	}
	if cookie.Value == "token-123" {
		t.Error("cookie value must not carry the raw token")
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookie)

	token, err := c.Read(r)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if token != "token-123" {
		t.Errorf("Read() = %q, want token-123", token)
	}
}

func TestCodec_SecureFlagInProduction(t *testing.T) {
	c := NewCodec(testSecret(), "", true, time.Hour)

	w := httptest.NewRecorder()
	if err := c.Set(w, "token-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if !w.Result().Cookies()[0].Secure {
		t.Error("cookie must be Secure in production")
	}
}

func TestCodec_Read_RejectsTampering(t *testing.T) {
	c := NewCodec(testSecret(), "", false, time.Hour)

	w := httptest.NewRecorder()
	if err := c.Set(w, "token-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	cookie := w.Result().Cookies()[0]

	flipped := "A" + cookie.Value[1:]
	if flipped == cookie.Value {
		flipped = "B" + cookie.Value[1:]
	}

	tests := []struct {
		name  string
		value string
	}{
		{"flipped byte", flipped},
		{"truncated", cookie.Value[:len(cookie.Value)/2]},
		{"raw token", "token-123"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.value})

			if _, err := c.Read(r); err == nil {
				t.Error("Read() should reject a tampered cookie")
			}
		})
	}
}

func TestCodec_Read_RejectsForeignKey(t *testing.T) {
	c1 := NewCodec(testSecret(), "", false, time.Hour)
	c2 := NewCodec([]byte("fedcba9876543210fedcba9876543210"), "", false, time.Hour)

	w := httptest.NewRecorder()
	if err := c1.Set(w, "token-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(w.Result().Cookies()[0])

	if _, err := c2.Read(r); err == nil {
		t.Error("Read() should reject a cookie signed with a different secret")
	}
}

func TestCodec_Read_NoCookie(t *testing.T) {
	c := NewCodec(testSecret(), "", false, time.Hour)

	r := httptest.NewRequest("GET", "/", nil)
	if _, err := c.Read(r); err == nil {
		t.Error("Read() should fail when no cookie is present")
	}
}

func TestCodec_Clear(t *testing.T) {
	c := NewCodec(testSecret(), "", false, time.Hour)

	w := httptest.NewRecorder()
	c.Clear(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("len(cookies) = %d, want 1", len(cookies))
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", cookies[0].MaxAge)
	}
	if cookies[0].Value != "" {
		t.Errorf("Value = %q, want empty", cookies[0].Value)
	}
}

func TestCodec_CustomName(t *testing.T) {
	c := NewCodec(testSecret(), "custom_session", false, time.Hour)

	w := httptest.NewRecorder()
	if err := c.Set(w, "token-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if name := w.Result().Cookies()[0].Name; name != "custom_session" {
		t.Errorf("Name = %q, want custom_session", name)
	}
	if !strings.HasPrefix(w.Header().Get("Set-Cookie"), "custom_session=") {
		t.Error("Set-Cookie header should use the custom name")
	}
}
