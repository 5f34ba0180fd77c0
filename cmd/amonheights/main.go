// Command amonheights runs the Amon Heights listing site: the public
// storefront API, the admin API behind the session gate, and static assets.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	amonheights "github.com/iseigbadon/amonheights-2.0"
	"github.com/iseigbadon/amonheights-2.0/session"
	"github.com/iseigbadon/amonheights-2.0/storage/file"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	production := strings.EqualFold(os.Getenv("APP_ENV"), "production")
	logger := setupLogger(production)

	cfg, err := configFromEnv(production, logger)
	if err != nil {
		return err
	}

	properties, err := file.New(cfg.Storage.PropertiesFile, logger)
	if err != nil {
		return fmt.Errorf("failed to open property store: %w", err)
	}

	server, err := amonheights.NewServer(cfg, properties)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer server.Close()

	handler := amonheights.NewHandler(server, logger)

	addr := ":" + getEnvOrDefault("PORT", "3000")
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			"addr", addr,
			"production", production,
			"audit_logging", cfg.Security.EnableAuditLog,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func configFromEnv(production bool, logger *slog.Logger) (*amonheights.Config, error) {
	secret, err := sessionSecret(production)
	if err != nil {
		return nil, err
	}

	cfg := &amonheights.Config{
		Admin: amonheights.AdminConfig{
			Username:     getEnvOrDefault("ADMIN_USERNAME", "admin"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			Password:     os.Getenv("ADMIN_PASSWORD"),
		},
		Session: amonheights.SessionConfig{
			Secret:     secret,
			TTL:        session.DefaultTTL,
			CookieName: getEnvOrDefault("SESSION_COOKIE", session.DefaultCookieName),
		},
		RateLimit: amonheights.RateLimitConfig{
			RequestRate:       getIntEnv("RATE_LIMIT_RPS", 10),
			RequestBurst:      getIntEnv("RATE_LIMIT_BURST", 20),
			TrustProxy:        getBoolEnv("TRUST_PROXY", production),
			TrustedProxyCount: getIntEnv("TRUSTED_PROXY_COUNT", 1),
		},
		Security: amonheights.SecurityConfig{
			Production:     production,
			EnableAuditLog: getBoolEnv("ENABLE_AUDIT_LOG", true),
			AuditLogPath:   getEnvOrDefault("AUDIT_LOG_PATH", "data/audit.log"),
			AllowedOrigins: splitEnv("ALLOWED_ORIGINS"),
		},
		Storage: amonheights.StorageConfig{
			PropertiesFile: getEnvOrDefault("DATA_FILE", "data/properties.json"),
			UploadsDir:     getEnvOrDefault("UPLOADS_DIR", "public/uploads"),
			PublicDir:      getEnvOrDefault("PUBLIC_DIR", "public"),
			AdminDir:       getEnvOrDefault("ADMIN_DIR", "admin"),
		},
		Logger: logger,
	}
	cfg.Instrumentation.ServiceName = "amonheights"
	cfg.Instrumentation.Enabled = getBoolEnv("ENABLE_INSTRUMENTATION", false)

	if cfg.Admin.PasswordHash == "" && cfg.Admin.Password == "" {
		return nil, errors.New("ADMIN_PASSWORD_HASH or ADMIN_PASSWORD must be set")
	}

	return cfg, nil
}

// sessionSecret reads SESSION_SECRET (hex or raw). In development a random
// secret is generated when unset, which invalidates sessions on restart.
func sessionSecret(production bool) ([]byte, error) {
	raw := os.Getenv("SESSION_SECRET")
	if raw == "" {
		if production {
			return nil, errors.New("SESSION_SECRET must be set in production")
		}
		return []byte(session.NewToken() + session.NewToken()), nil
	}

	if decoded, err := hex.DecodeString(raw); err == nil && len(decoded) >= 32 {
		return decoded, nil
	}
	if len(raw) < 32 {
		return nil, errors.New("SESSION_SECRET must be at least 32 bytes")
	}
	return []byte(raw), nil
}

func setupLogger(production bool) *slog.Logger {
	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
