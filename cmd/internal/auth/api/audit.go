package authapi

import (
	"net"
	"net/http"
	"strings"
)

// Audit records are structured log lines on the handler logger under the
// "auth.audit.*" event names. Tokens and cookie values are never included.

func (h *Handler) auditSigninStarted(r *http.Request, redirect string) {
	h.audit(r, "auth.audit.signin_started", "redirect", redirect)
}

func (h *Handler) auditSigninSucceeded(r *http.Request, identityID string) {
	h.audit(r, "auth.audit.signin_succeeded", "identity_id", identityID)
}

func (h *Handler) auditSigninFailed(r *http.Request) {
	h.audit(r, "auth.audit.signin_failed")
}

func (h *Handler) auditLogout(r *http.Request, identityID string) {
	h.audit(r, "auth.audit.logout", "identity_id", identityID)
}

func (h *Handler) audit(r *http.Request, action string, args ...any) {
	if h == nil || h.log == nil || r == nil {
		return
	}

	var ip string
	if v := clientIP(r, h.cfg.TrustProxy); v != nil {
		ip = v.String()
	}

	attrs := append([]any{
		"ip", ip,
		"ua", trimUA(r.UserAgent()),
	}, args...)
	h.log.InfoContext(r.Context(), action, attrs...)
}

func trimUA(ua string) string {
	ua = strings.TrimSpace(ua)
	if len(ua) > 256 {
		return ua[:256]
	}
	return ua
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
