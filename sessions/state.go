package sessions

import (
	"time"

	"github.com/jrsteele09/go-jobboard-client/users"
)

// Kind is the tag of the authentication state
type Kind int

const (
	Idle            Kind = iota // never authenticated in this run
	Bootstrapping               // checking stored credentials
	Authenticated               // session established
	Unauthenticated             // no session
	Refreshing                  // session established, credentials being refreshed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Bootstrapping:
		return "bootstrapping"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Session is the authenticated context. It is replaced, never mutated, so a
// Session obtained from a State stays consistent.
type Session struct {
	User      users.User
	ExpiresAt time.Time // zero when the access token does not carry an expiry
	Durable   bool      // false when the credentials could not be persisted
}

// State is an immutable snapshot of the authentication state
type State struct {
	Kind    Kind
	Session *Session // set for Authenticated and Refreshing
	Pending int      // callers queued on the refresh, Refreshing only
	Notice  string   // user-facing explanation of the last sign-out
}

func (s State) IsAuthenticated() bool {
	return s.Session != nil && (s.Kind == Authenticated || s.Kind == Refreshing)
}

// IsLoading reports whether the state is not yet known. Route admission waits
// rather than redirects while loading.
func (s State) IsLoading() bool {
	return s.Kind == Idle || s.Kind == Bootstrapping
}

// Role returns the role of the signed in user, or "" when there is none
func (s State) Role() users.Role {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Session.User.Role
}

// AuthView is the read-mostly view handed to rendering code
type AuthView struct {
	User            *users.User
	IsAuthenticated bool
	IsLoading       bool
}

func (s State) View() AuthView {
	view := AuthView{
		IsAuthenticated: s.IsAuthenticated(),
		IsLoading:       s.IsLoading(),
	}
	if view.IsAuthenticated {
		user := s.Session.User
		view.User = &user
	}
	return view
}

var transitions = map[Kind]map[Kind]struct{}{
	Idle: {
		Bootstrapping:   {},
		Authenticated:   {},
		Unauthenticated: {},
	},
	Bootstrapping: {
		Authenticated:   {},
		Unauthenticated: {},
	},
	Authenticated: {
		Authenticated:   {},
		Refreshing:      {},
		Unauthenticated: {},
	},
	Refreshing: {
		Refreshing:      {},
		Authenticated:   {},
		Unauthenticated: {},
	},
	Unauthenticated: {
		Unauthenticated: {},
		Bootstrapping:   {},
		Authenticated:   {},
	},
}

func canTransition(from, to Kind) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}
