package identity

import "strings"

// NormalizeHandle performs case-insensitive canonicalization of a provider handle.
// Note: for now we only trim + lower-case, matching how the provider compares logins.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

