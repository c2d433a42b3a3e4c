package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"sitegate/cmd/identity"
	"sitegate/cmd/internal/auth/provider"
	"sitegate/cmd/internal/auth/session"
)

type stubProvider struct {
	mu        sync.Mutex
	verifyErr error
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(_ context.Context, code string) (provider.Grant, error) {
	if code != "code-alice" {
		return provider.Grant{}, provider.ErrExchangeFailed
	}
	return provider.Grant{
		AccessToken: "gho_alice",
		Profile:     identity.Profile{Handle: "Alice", ProviderUserID: "1001"},
	}, nil
}

func (p *stubProvider) Verify(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verifyErr
}

type testServer struct {
	ts     *httptest.Server
	client *http.Client
}

func newTestServer(t *testing.T, prov provider.Provider) testServer {
	t.Helper()

	idents := identity.NewInMemoryStore()
	sessCfg := session.DefaultConfig()
	svc := session.NewService(sessCfg, session.NewInMemoryStore(nil), prov, identity.NewReconciler(idents, nil), idents, nil)

	cookies, err := NewCookies(DefaultConfig(), testCookieKey, sessCfg.TTL)
	if err != nil {
		t.Fatalf("NewCookies: %v", err)
	}
	h, err := NewHandler(nil, DefaultConfig(), svc, cookies)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	ts := httptest.NewServer(h.Middleware(mux))
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return testServer{ts: ts, client: client}
}

func (s testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	res, err := s.client.Get(s.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func (s testServer) state(t *testing.T) sessionStateResponse {
	t.Helper()
	res := s.get(t, "/auth/session")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("/auth/session status=%d", res.StatusCode)
	}
	var out sessionStateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func startSignin(t *testing.T, s testServer, redirect string) string {
	t.Helper()

	res := s.get(t, "/auth/github?redirect="+url.QueryEscape(redirect))
	if res.StatusCode != http.StatusFound {
		t.Fatalf("signin status=%d", res.StatusCode)
	}
	loc, err := url.Parse(res.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Host != "github.test" {
		t.Fatalf("unexpected provider redirect: %s", loc)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatalf("missing state in %s", loc)
	}
	return state
}

func TestAuthFlow_SuccessRedirectsToRequestedPath(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	if st := s.state(t); st.Authenticated {
		t.Fatalf("expected anonymous before sign-in")
	}

	state := startSignin(t, s, "/sites/42")

	res := s.get(t, "/auth/github/callback?code=code-alice&state="+url.QueryEscape(state))
	if res.StatusCode != http.StatusFound {
		t.Fatalf("callback status=%d", res.StatusCode)
	}
	if loc := res.Header.Get("Location"); loc != "/sites/42" {
		t.Fatalf("callback redirect=%q want=/sites/42", loc)
	}

	var sessionCookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == "sitegate.sid" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || !sessionCookie.HttpOnly {
		t.Fatalf("expected httpOnly session cookie on success, got %+v", res.Cookies())
	}

	st := s.state(t)
	if !st.Authenticated || st.Handle != "Alice" || st.AuthenticatedAt == nil {
		t.Fatalf("expected authenticated session, got %+v", st)
	}
	if len(st.Flash) != 0 {
		t.Fatalf("unexpected flash on success: %+v", st.Flash)
	}

	res = s.get(t, "/logout")
	if res.StatusCode != http.StatusFound || res.Header.Get("Location") != "/" {
		t.Fatalf("logout status=%d location=%q", res.StatusCode, res.Header.Get("Location"))
	}
	if st := s.state(t); st.Authenticated {
		t.Fatalf("expected anonymous after logout, got %+v", st)
	}
}

func TestAuthFlow_RejectedTokenFlashesAndRedirectsToDefault(t *testing.T) {
	s := newTestServer(t, &stubProvider{verifyErr: provider.ErrExternalValidationFailed})

	state := startSignin(t, s, "/sites/42")

	res := s.get(t, "/auth/github/callback?code=code-alice&state="+url.QueryEscape(state))
	if res.StatusCode != http.StatusFound {
		t.Fatalf("callback status=%d", res.StatusCode)
	}
	if loc := res.Header.Get("Location"); loc != "/" {
		t.Fatalf("callback redirect=%q want=/", loc)
	}

	st := s.state(t)
	if st.Authenticated {
		t.Fatalf("expected anonymous after failed sign-in")
	}
	errs := st.Flash[session.FlashError]
	if len(errs) != 1 || errs[0].Title != "Unauthorized" || errs[0].Message != session.DefaultAccessDeniedMessage {
		t.Fatalf("unexpected flash: %+v", st.Flash)
	}

	if st := s.state(t); len(st.Flash) != 0 {
		t.Fatalf("flash must be shown once, got %+v", st.Flash)
	}
}

func TestAuthFlow_CallbackFailures(t *testing.T) {
	tests := []struct {
		name  string
		query func(state string) string
	}{
		{name: "forged state", query: func(string) string { return "code=code-alice&state=forged" }},
		{name: "provider error", query: func(state string) string { return "error=access_denied&state=" + url.QueryEscape(state) }},
		{name: "bad code", query: func(state string) string { return "code=nope&state=" + url.QueryEscape(state) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &stubProvider{})
			state := startSignin(t, s, "/sites/42")

			res := s.get(t, "/auth/github/callback?"+tc.query(state))
			if res.StatusCode != http.StatusFound || res.Header.Get("Location") != "/" {
				t.Fatalf("status=%d location=%q", res.StatusCode, res.Header.Get("Location"))
			}
			st := s.state(t)
			if st.Authenticated || len(st.Flash[session.FlashError]) != 1 {
				t.Fatalf("unexpected state: %+v", st)
			}
		})
	}
}

func TestAuthFlow_CallbackWithoutSession(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	res := s.get(t, "/auth/github/callback?code=code-alice&state=anything")
	if res.StatusCode != http.StatusFound || res.Header.Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", res.StatusCode, res.Header.Get("Location"))
	}
	if st := s.state(t); st.Authenticated || len(st.Flash[session.FlashError]) != 1 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestAuthFlow_NonLocalRedirectFallsBackToLanding(t *testing.T) {
	s := newTestServer(t, &stubProvider{})
	state := startSignin(t, s, "https://evil.example/")

	res := s.get(t, "/auth/github/callback?code=code-alice&state="+url.QueryEscape(state))
	if loc := res.Header.Get("Location"); loc != "/" {
		t.Fatalf("redirect=%q want=/", loc)
	}
}

func TestAuthRoutes_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	for _, path := range []string{"/auth/github", "/auth/github/callback", "/auth/session"} {
		res, err := s.client.Post(s.ts.URL+path, "text/plain", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		_ = res.Body.Close()
		if res.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("POST %s status=%d", path, res.StatusCode)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if ip := clientIP(req, false); ip.String() != "10.0.0.1" {
		t.Fatalf("untrusted proxy ip=%v", ip)
	}
	if ip := clientIP(req, true); ip.String() != "203.0.113.9" {
		t.Fatalf("trusted proxy ip=%v", ip)
	}
}
