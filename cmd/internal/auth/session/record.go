package session

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	// StateAnonymous is a session with no identity attached.
	StateAnonymous State = "anonymous"
	// StateAuthenticated is a session bound to a reconciled identity.
	StateAuthenticated State = "authenticated"
	// StateDestroyed marks a record removed by Logout. It is never persisted.
	StateDestroyed State = "destroyed"
)

// FlashError is the flash bucket used for sign-in failures.
const FlashError = "error"

// Flash is a one-shot message shown on the next response and then cleared.
type Flash struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Record is the persisted session.
//
// IdentityID and AuthenticatedAt are set iff State is StateAuthenticated.
// PendingRedirectPath and HandshakeState only live between StartHandshake and
// the callback.
type Record struct {
	ID              string     `json:"id"`
	State           State      `json:"state"`
	IdentityID      string     `json:"identity_id,omitempty"`
	AuthenticatedAt *time.Time `json:"authenticated_at,omitempty"`

	PendingRedirectPath string `json:"pending_redirect_path,omitempty"`
	HandshakeState      string `json:"handshake_state,omitempty"`

	Flash map[string][]Flash `json:"flash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Authenticated reports whether the record is bound to an identity.
func (r Record) Authenticated() bool {
	return r.State == StateAuthenticated && r.IdentityID != ""
}

// Validate checks the state invariants before a record is persisted.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	switch r.State {
	case StateAnonymous:
		if r.IdentityID != "" || r.AuthenticatedAt != nil {
			return fmt.Errorf("%w: anonymous session carries an identity", ErrInvalidRecord)
		}
	case StateAuthenticated:
		if r.IdentityID == "" || r.AuthenticatedAt == nil {
			return fmt.Errorf("%w: authenticated session without identity", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: state %q", ErrInvalidRecord, r.State)
	}
	return nil
}

func (r *Record) addFlash(kind string, f Flash) {
	if r.Flash == nil {
		r.Flash = make(map[string][]Flash, 1)
	}
	r.Flash[kind] = append(r.Flash[kind], f)
}

func (r Record) clone() Record {
	out := r
	if r.AuthenticatedAt != nil {
		t := *r.AuthenticatedAt
		out.AuthenticatedAt = &t
	}
	if r.Flash != nil {
		out.Flash = make(map[string][]Flash, len(r.Flash))
		for k, v := range r.Flash {
			out.Flash[k] = append([]Flash(nil), v...)
		}
	}
	return out
}

// Principal is what a session resolves to on a request: either anonymous or a
// concrete identity.
type Principal struct {
	SessionID       string
	IdentityID      string
	Handle          string
	AuthenticatedAt *time.Time
}

// Anonymous reports whether no identity is attached.
func (p Principal) Anonymous() bool { return p.IdentityID == "" }
