package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the requester's network origin from the request.
// X-Forwarded-For and X-Real-IP are only honored when trustProxy is set,
// since both are trivially spoofable on direct connections.
// trustedProxyCount controls which hop of X-Forwarded-For is the client in
// multi-proxy setups (rightmost entries are the proxies we control).
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := extractIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := r.Header.Get("X-Real-IP"); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return extractIPFromRemoteAddr(r.RemoteAddr)
}

// extractIPFromXFF parses "client, proxy1, proxy2, ..." and returns the
// client hop implied by trustedProxyCount.
func extractIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	clientIP := strings.TrimSpace(ips[clientIPIndex(len(ips), trustedProxyCount)])
	if net.ParseIP(clientIP) != nil {
		return clientIP
	}
	return ""
}

// clientIPIndex returns the index of the client hop. trustedProxyCount of
// zero assumes a single trusted proxy; short lists fall back to the
// leftmost entry.
func clientIPIndex(numIPs, trustedProxyCount int) int {
	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}

	idx := numIPs - proxyCount - 1
	if idx < 0 {
		return 0
	}
	return idx
}

// extractIPFromRemoteAddr strips the port from a direct connection address.
func extractIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
