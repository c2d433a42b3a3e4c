package session

import (
	"net/url"
	"strings"
)

const maxRedirectLen = 2048

// SanitizeRedirect accepts only local absolute paths ("/sites/42?tab=builds").
// Scheme-relative ("//evil"), backslash tricks, absolute URLs and control
// characters are rejected. The returned value drops any fragment.
func SanitizeRedirect(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRedirectLen {
		return "", false
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "", false
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return "", false
		}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	if !strings.HasPrefix(u.Path, "/") {
		return "", false
	}

	out := u.EscapedPath()
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out, true
}
