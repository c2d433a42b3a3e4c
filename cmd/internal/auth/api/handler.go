package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"sitegate/cmd/internal/auth/session"
)

// Handler wires the browser sign-in endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	cookies  *Cookies
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, cookies *Cookies) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if cookies == nil {
		return nil, errors.New("authapi: nil cookie codec")
	}
	if cfg.RedirectParam == "" {
		cfg.RedirectParam = DefaultConfig().RedirectParam
	}
	return &Handler{log: log, cfg: cfg, sessions: sessions, cookies: cookies}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/github", h.handleSignin)
	mux.HandleFunc("/auth/github/callback", h.handleCallback)
	mux.HandleFunc("/logout", h.handleLogout)
	mux.HandleFunc("/auth/session", h.handleSessionState)
}

// Cookies returns the cookie codec shared with other transports (WebSocket).
func (h *Handler) Cookies() *Cookies {
	if h == nil {
		return nil
	}
	return h.cookies
}

// ---- handlers ----

func (h *Handler) handleSignin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	id, _ := h.cookies.SessionID(r)

	rec, err := h.sessions.Begin(ctx, id)
	if err != nil {
		h.log.Error("auth.signin.begin.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "session_unavailable", "please retry later")
		return
	}

	rec, authURL, err := h.sessions.StartHandshake(ctx, rec, r.URL.Query().Get(h.cfg.RedirectParam))
	if err != nil {
		h.log.Error("auth.signin.handshake.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "session_unavailable", "please retry later")
		return
	}

	h.cookies.Set(w, rec.ID)
	h.auditSigninStarted(r, rec.PendingRedirectPath)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	id, _ := h.cookies.SessionID(r)

	// A callback without a live session still settles through HandleCallback:
	// the fresh record has no handshake state, so it fails with a flash.
	rec, ok := h.sessions.Load(ctx, id)
	if !ok {
		var err error
		rec, err = h.sessions.Begin(ctx, "")
		if err != nil {
			h.log.Error("auth.callback.begin.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "session_unavailable", "please retry later")
			return
		}
	}

	q := r.URL.Query()
	out, err := h.sessions.HandleCallback(ctx, rec, session.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if err != nil {
		h.log.Error("auth.callback.persist.fail", "err", err)
	}

	if out.Authenticated {
		h.auditSigninSucceeded(r, out.Record.IdentityID)
	} else {
		h.auditSigninFailed(r)
	}

	h.cookies.Set(w, out.Record.ID)
	http.Redirect(w, r, out.Redirect, http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if id, ok := h.cookies.SessionID(r); ok {
		rec, found := h.sessions.Load(ctx, id)
		if !found {
			rec = session.Record{ID: id}
		}
		if _, err := h.sessions.Logout(ctx, rec); err != nil {
			h.log.Error("auth.logout.fail", "err", err)
		} else {
			h.auditLogout(r, rec.IdentityID)
		}
	}

	h.cookies.Clear(w)
	http.Redirect(w, r, h.sessions.Config().DefaultPath, http.StatusFound)
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	id, _ := h.cookies.SessionID(r)

	p, ok := PrincipalFromContext(ctx)
	if !ok {
		var err error
		p, err = h.sessions.Deserialize(ctx, id)
		if err != nil {
			h.log.Warn("auth.session.deserialize.fail", "err", err)
			p = session.Principal{}
		}
	}

	var flash map[string][]session.Flash
	if rec, found := h.sessions.Load(ctx, id); found {
		var err error
		flash, _, err = h.sessions.ConsumeFlash(ctx, rec)
		if err != nil {
			h.log.Warn("auth.session.flash.fail", "err", err)
		}
	}

	writeJSON(w, http.StatusOK, toSessionStateResponse(p, flash))
}

// ---- middleware ----

type principalKey struct{}

// Middleware resolves the session cookie to a Principal and attaches it to the
// request context. Unresolvable sessions become anonymous; the request always proceeds.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p session.Principal
		if id, ok := h.cookies.SessionID(r); ok {
			var err error
			p, err = h.sessions.Deserialize(r.Context(), id)
			if err != nil {
				h.log.Warn("auth.middleware.deserialize.fail", "err", err)
				p = session.Principal{}
			}
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p session.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the Principal attached by Middleware.
func PrincipalFromContext(ctx context.Context) (session.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(session.Principal)
	return p, ok
}
