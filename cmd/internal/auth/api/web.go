package authapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sitegate/cmd/security/token"
)

// Cookies reads and writes the signed session cookie.
//
// The cookie value is "<session id>.<hmac>"; a value whose signature does not
// verify is treated as absent.
type Cookies struct {
	cfg Config
	key []byte
	ttl time.Duration
}

// NewCookies builds a cookie codec. key signs the session ID; ttl becomes Max-Age.
func NewCookies(cfg Config, key []byte, ttl time.Duration) (*Cookies, error) {
	if len(key) == 0 {
		return nil, errors.New("authapi: empty cookie signing key")
	}
	if strings.TrimSpace(cfg.CookieName) == "" {
		return nil, errors.New("authapi: empty cookie name")
	}
	return &Cookies{cfg: cfg, key: append([]byte(nil), key...), ttl: ttl}, nil
}

// SessionID returns the verified session ID carried by r.
func (c *Cookies) SessionID(r *http.Request) (string, bool) {
	if c == nil || r == nil {
		return "", false
	}
	ck, err := r.Cookie(c.cfg.CookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(ck.Value)
	if v == "" {
		return "", false
	}
	id, err := token.Verify(v, c.key)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Set writes the signed cookie for sessionID.
func (c *Cookies) Set(w http.ResponseWriter, sessionID string) {
	if c == nil || w == nil || sessionID == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    token.Sign(sessionID, c.key),
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		MaxAge:   int(c.ttl / time.Second),
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.CookieSameSite,
	})
}

// Clear expires the cookie.
func (c *Cookies) Clear(w http.ResponseWriter) {
	if c == nil || w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    "",
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.CookieSameSite,
	})
}
