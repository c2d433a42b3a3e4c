package authapi

import (
	"time"

	"sitegate/cmd/internal/auth/session"
)

type flashResponse struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type sessionStateResponse struct {
	Authenticated   bool                       `json:"authenticated"`
	Handle          string                     `json:"handle,omitempty"`
	AuthenticatedAt *time.Time                 `json:"authenticated_at,omitempty"`
	Flash           map[string][]flashResponse `json:"flash,omitempty"`
}

func toSessionStateResponse(p session.Principal, flash map[string][]session.Flash) sessionStateResponse {
	out := sessionStateResponse{
		Authenticated:   !p.Anonymous(),
		Handle:          p.Handle,
		AuthenticatedAt: p.AuthenticatedAt,
	}
	if len(flash) > 0 {
		out.Flash = make(map[string][]flashResponse, len(flash))
		for kind, entries := range flash {
			for _, f := range entries {
				out.Flash[kind] = append(out.Flash[kind], flashResponse{Title: f.Title, Message: f.Message})
			}
		}
	}
	return out
}
