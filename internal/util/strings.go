// Package util provides small shared helpers that don't belong to a
// domain-specific package.
package util

// SafeTruncate truncates s to maxLen characters without panicking. Used when
// logging tokens or filenames where only a prefix should appear.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
