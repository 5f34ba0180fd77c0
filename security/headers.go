package security

import "net/http"

// SetAPISecurityHeaders sets defensive headers on JSON API responses.
// Responses from the admin API carry session state and must never be cached
// or framed.
func SetAPISecurityHeaders(w http.ResponseWriter, production bool) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")

	if production {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}
