// Package guard decides whether a navigation may proceed given the current
// authentication state. Decisions are pure functions of a sessions.State.
package guard

import (
	"net/url"

	"github.com/jrsteele09/go-jobboard-client/sessions"
	"github.com/jrsteele09/go-jobboard-client/users"
)

const (
	LoginPath        = "/auth"
	AccessDeniedPath = "/access-denied"
)

type Kind int

const (
	Admit               Kind = iota
	Block                    // state not yet known, render a loading indicator
	Redirect                 // to the login page
	RedirectWithContext      // to the access denied page, explaining the denial
)

func (k Kind) String() string {
	switch k {
	case Admit:
		return "admit"
	case Block:
		return "block"
	case Redirect:
		return "redirect"
	case RedirectWithContext:
		return "redirect_with_context"
	default:
		return "unknown"
	}
}

type Decision struct {
	Kind         Kind
	From         string // path the user asked for
	Notice       string
	RequiredRole users.Role
	CurrentRole  users.Role
}

// Location is where a redirect decision sends the user, or "" for Admit and Block
func (d Decision) Location() string {
	switch d.Kind {
	case Redirect:
		q := url.Values{}
		if d.From != "" {
			q.Set("next", d.From)
		}
		if d.Notice != "" {
			q.Set("notice", d.Notice)
		}
		if len(q) == 0 {
			return LoginPath
		}
		return LoginPath + "?" + q.Encode()
	case RedirectWithContext:
		q := url.Values{}
		q.Set("from", d.From)
		q.Set("requiredRole", d.RequiredRole.String())
		q.Set("currentRole", d.CurrentRole.String())
		return AccessDeniedPath + "?" + q.Encode()
	default:
		return ""
	}
}

// AdmitAuthenticated admits any signed in user
func AdmitAuthenticated(s sessions.State, path string) Decision {
	switch {
	case s.IsLoading():
		return Decision{Kind: Block, From: path}
	case s.IsAuthenticated():
		return Decision{Kind: Admit, From: path}
	default:
		return Decision{Kind: Redirect, From: path, Notice: s.Notice}
	}
}

// AdmitRole admits only users holding required. Signed in users with another
// role are sent to the access denied page with enough context to explain why.
func AdmitRole(s sessions.State, path string, required users.Role) Decision {
	d := AdmitAuthenticated(s, path)
	if d.Kind != Admit {
		return d
	}

	current := s.Role()
	if current == required {
		return d
	}
	return Decision{
		Kind:         RedirectWithContext,
		From:         path,
		RequiredRole: required,
		CurrentRole:  current,
	}
}

// NavLink is an advisory navigation link
type NavLink struct {
	Label string
	Href  string
}

// EmployerLink picks the "For Employers" navigation entry. Anonymous visitors
// and students get the same marketing link even though route admission treats
// them differently; only employers are taken to their dashboard.
func EmployerLink(s sessions.State) NavLink {
	if s.Role() == users.RoleEmployer {
		return NavLink{Label: "Dashboard", Href: "/employer/dashboard"}
	}
	return NavLink{Label: "For Employers", Href: "/employers"}
}
