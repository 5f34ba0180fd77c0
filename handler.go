package amonheights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/iseigbadon/amonheights-2.0/security"
	"github.com/iseigbadon/amonheights-2.0/session"
	"github.com/iseigbadon/amonheights-2.0/storage"
)

// sessionContextKey is the context key for the authenticated session
type sessionContextKey struct{}

// allowedImageTypes maps sniffed upload content types to stored extensions
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Handler provides the HTTP layer over Server: routing, the auth gate
// middleware, request throttling, and response encoding.
type Handler struct {
	server  *Server
	cookies *session.Codec
	logger  *slog.Logger
}

// NewHandler creates an HTTP handler for the given server.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := server.config
	return &Handler{
		server:  server,
		cookies: session.NewCodec(cfg.Session.Secret, cfg.Session.CookieName, cfg.Security.Production, cfg.Session.TTL),
		logger:  logger,
	}
}

// Router assembles the full route tree: public storefront API, admin API
// behind the auth gate, admin pages, uploads and static assets.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(security.RequestIDMiddleware)
	r.Use(h.metricsMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.throttleMiddleware)
	api.Use(h.securityHeadersMiddleware)
	api.HandleFunc("/properties", h.ServePublicProperties).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/login", h.ServeLogin).Methods(http.MethodPost)
	admin.HandleFunc("/check", h.ServeCheck).Methods(http.MethodGet)

	protected := admin.NewRoute().Subrouter()
	protected.Use(h.RequireAuth)
	protected.HandleFunc("/logout", h.ServeLogout).Methods(http.MethodPost)
	protected.HandleFunc("/properties", h.ServeAdminProperties).Methods(http.MethodGet)
	protected.HandleFunc("/properties", h.ServeCreateProperty).Methods(http.MethodPost)
	protected.HandleFunc("/properties/{id:[0-9]+}", h.ServeUpdateProperty).Methods(http.MethodPut)
	protected.HandleFunc("/properties/{id:[0-9]+}", h.ServeDeleteProperty).Methods(http.MethodDelete)
	protected.HandleFunc("/upload", h.ServeUpload).Methods(http.MethodPost)

	cfg := h.server.config
	if cfg.Storage.AdminDir != "" {
		r.HandleFunc("/admin", h.ServeAdminLoginPage).Methods(http.MethodGet)
		r.HandleFunc("/admin/dashboard", h.ServeDashboardPage).Methods(http.MethodGet)
	}
	if cfg.Storage.UploadsDir != "" {
		r.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Storage.UploadsDir))))
	}
	if cfg.Storage.PublicDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.Storage.PublicDir)))
	}

	if len(cfg.Security.AllowedOrigins) > 0 {
		return cors.New(cors.Options{
			AllowedOrigins:   cfg.Security.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", security.RequestIDHeader},
			AllowCredentials: true,
		}).Handler(r)
	}
	return r
}

// RequireAuth is the gate in front of every privileged operation. It resolves
// the session cookie against the store; any deny is audited with the
// requested path before the 401 goes out. Expired sessions were already
// destroyed by the store when detected, so retrying yields the same 401.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := h.cookies.Read(r)
		if err != nil {
			h.denyUnauthorized(w, r, "not authenticated", ErrUnauthorized())
			return
		}

		sess, err := h.server.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrExpired) {
				h.cookies.Clear(w)
				h.denyUnauthorized(w, r, "session expired", ErrSessionExpired())
				return
			}
			h.denyUnauthorized(w, r, "not authenticated", ErrUnauthorized())
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// denyUnauthorized audits and rejects an unauthenticated protected request.
func (h *Handler) denyUnauthorized(w http.ResponseWriter, r *http.Request, reason string, apiErr *APIError) {
	ip := h.clientIP(r)
	h.server.auditor.LogUnauthorizedAccess(ip, security.GetRequestID(r.Context()), r.URL.Path, reason)
	h.server.inst.Metrics().RecordUnauthorizedAccess(r.Context(), r.URL.Path)
	h.writeError(w, apiErr)
}

// sessionFromContext returns the authenticated session placed by RequireAuth.
func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess
}

// ServeLogin handles POST /api/admin/login. Malformed bodies still count as
// failed attempts against the rate limiter.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	ip := h.clientIP(r)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = loginRequest{}
	}

	sess, err := h.server.Login(r.Context(), req.Username, req.Password, ip)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}

	if err := h.cookies.Set(w, sess.Token); err != nil {
		h.logger.Error("Failed to encode session cookie", "error", err)
		h.writeError(w, ErrServerError("Failed to create session"))
		return
	}

	h.writeJSON(w, http.StatusOK, loginResponse{Success: true, Message: "Login successful"})
}

// ServeLogout handles POST /api/admin/logout.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	if err := h.server.Logout(r.Context(), sess.Token, sess.Actor, h.clientIP(r)); err != nil {
		h.writeAPIError(w, err)
		return
	}

	h.cookies.Clear(w)
	h.writeJSON(w, http.StatusOK, messageResponse{Success: true})
}

// ServeCheck handles GET /api/admin/check. Unlike the gated routes it
// answers 401 with {"authenticated": false} rather than an error body, but a
// deny is still audited.
func (h *Handler) ServeCheck(w http.ResponseWriter, r *http.Request) {
	reason := "not authenticated"

	if token, err := h.cookies.Read(r); err == nil {
		_, err := h.server.Authenticate(r.Context(), token)
		if err == nil {
			h.writeJSON(w, http.StatusOK, checkResponse{Authenticated: true})
			return
		}
		if errors.Is(err, session.ErrExpired) {
			h.cookies.Clear(w)
			reason = "session expired"
		}
	}

	ip := h.clientIP(r)
	h.server.auditor.LogUnauthorizedAccess(ip, security.GetRequestID(r.Context()), r.URL.Path, reason)
	h.server.inst.Metrics().RecordUnauthorizedAccess(r.Context(), r.URL.Path)
	h.writeJSON(w, http.StatusUnauthorized, checkResponse{Authenticated: false})
}

// ServePublicProperties handles GET /api/properties: visible listings only.
func (h *Handler) ServePublicProperties(w http.ResponseWriter, r *http.Request) {
	list, err := h.server.ListProperties(r.Context(), false)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// ServeAdminProperties handles GET /api/admin/properties: all listings,
// hidden included.
func (h *Handler) ServeAdminProperties(w http.ResponseWriter, r *http.Request) {
	list, err := h.server.ListProperties(r.Context(), true)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// ServeCreateProperty handles POST /api/admin/properties.
func (h *Handler) ServeCreateProperty(w http.ResponseWriter, r *http.Request) {
	var p storage.Property
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, ErrInvalidRequest("Invalid request body"))
		return
	}

	sess := sessionFromContext(r.Context())
	created, err := h.server.CreateProperty(r.Context(), &p, sess.Actor, h.clientIP(r))
	if err != nil {
		h.writeAPIError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, propertyResponse{Success: true, Property: created})
}

// ServeUpdateProperty handles PUT /api/admin/properties/{id}.
func (h *Handler) ServeUpdateProperty(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, ErrInvalidRequest("Invalid property id"))
		return
	}

	var patch storage.PropertyPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, ErrInvalidRequest("Invalid request body"))
		return
	}

	sess := sessionFromContext(r.Context())
	updated, err := h.server.UpdateProperty(r.Context(), id, &patch, sess.Actor, h.clientIP(r))
	if err != nil {
		h.writeAPIError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, propertyResponse{Success: true, Property: updated})
}

// ServeDeleteProperty handles DELETE /api/admin/properties/{id}.
func (h *Handler) ServeDeleteProperty(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, ErrInvalidRequest("Invalid property id"))
		return
	}

	sess := sessionFromContext(r.Context())
	if err := h.server.DeleteProperty(r.Context(), id, sess.Actor, h.clientIP(r)); err != nil {
		h.writeAPIError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Property deleted"})
}

// ServeUpload handles POST /api/admin/upload. The file type is decided by
// sniffing content, never by the client-supplied name, and the stored name
// is server-generated.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	cfg := h.server.config
	r.Body = http.MaxBytesReader(w, r.Body, cfg.Storage.MaxUploadBytes)

	file, _, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, ErrInvalidRequest(fmt.Sprintf("File too large. Maximum %dMB.", cfg.Storage.MaxUploadBytes>>20)))
			return
		}
		h.writeError(w, ErrInvalidRequest("No file uploaded"))
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.writeError(w, ErrServerError("Failed to read upload"))
		return
	}

	ext, ok := allowedImageTypes[http.DetectContentType(head[:n])]
	if !ok {
		h.writeError(w, ErrInvalidRequest("Invalid file type. Only JPEG, PNG, WebP and GIF allowed."))
		return
	}

	name := fmt.Sprintf("image_%d_%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	if err := h.saveUpload(head[:n], file, filepath.Join(cfg.Storage.UploadsDir, name)); err != nil {
		h.logger.Error("Failed to store upload", "error", err)
		h.writeError(w, ErrServerError("Failed to store upload"))
		return
	}

	sess := sessionFromContext(r.Context())
	h.server.auditor.LogImageUploaded(sess.Actor, h.clientIP(r), security.GetRequestID(r.Context()), name)

	h.writeJSON(w, http.StatusOK, uploadResponse{Success: true, URL: "/uploads/" + name})
}

// saveUpload writes the sniffed head plus the remaining stream to path.
func (h *Handler) saveUpload(head []byte, rest io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := out.Write(head); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if _, err := io.Copy(out, rest); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

// ServeAdminLoginPage serves the login page, or redirects an authenticated
// admin straight to the dashboard.
func (h *Handler) ServeAdminLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.hasValidSession(r) {
		http.Redirect(w, r, "/admin/dashboard", http.StatusFound)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.server.config.Storage.AdminDir, "login.html"))
}

// ServeDashboardPage serves the dashboard, or bounces an unauthenticated
// visitor back to the login page.
func (h *Handler) ServeDashboardPage(w http.ResponseWriter, r *http.Request) {
	if !h.hasValidSession(r) {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.server.config.Storage.AdminDir, "dashboard.html"))
}

// hasValidSession reports whether the request carries a live session.
func (h *Handler) hasValidSession(r *http.Request) bool {
	token, err := h.cookies.Read(r)
	if err != nil {
		return false
	}
	_, err = h.server.Authenticate(r.Context(), token)
	return err == nil
}

// clientIP extracts the requester identity used for rate limiting and audit.
func (h *Handler) clientIP(r *http.Request) string {
	cfg := h.server.config
	return security.GetClientIP(r, cfg.RateLimit.TrustProxy, cfg.RateLimit.TrustedProxyCount)
}

// throttleMiddleware applies the per-IP request rate limit to the API.
func (h *Handler) throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.server.rateLimiter != nil {
			ip := h.clientIP(r)
			if !h.server.rateLimiter.Allow(ip) {
				h.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
				h.server.auditor.LogRateLimited(ip, security.GetRequestID(r.Context()), "api")
				h.server.inst.Metrics().RecordRateLimited(r.Context(), "api")
				w.Header().Set("Retry-After", "60")
				h.writeError(w, ErrRateLimited("Rate limit exceeded. Please try again later."))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware applies defensive headers to API responses.
func (h *Handler) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetAPISecurityHeaders(w, h.server.config.Security.Production)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and durations per route.
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
				endpoint = tpl
			}
		}
		h.server.inst.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint,
			statusClass(rec.status), float64(time.Since(start).Microseconds())/1000.0)
	})
}

// statusClass buckets a status code for metrics
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// writeAPIError resolves any error to its APIError shape and writes it.
func (h *Handler) writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrServerError(err.Error())
	}
	h.writeError(w, apiErr)
}

// writeError writes the structured JSON error body. In production mode
// internal detail is replaced with a generic message; development keeps it.
func (h *Handler) writeError(w http.ResponseWriter, apiErr *APIError) {
	message := apiErr.Message
	if apiErr.Status == http.StatusInternalServerError && h.server.config.Security.Production {
		message = "Server error"
	}

	h.writeJSON(w, apiErr.Status, errorResponse{Error: message, Code: apiErr.Code})
}

// writeJSON writes a JSON response body with the given status.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
