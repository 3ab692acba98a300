package guard_test

import (
	"net/url"
	"testing"

	"github.com/jrsteele09/go-jobboard-client/guard"
	"github.com/jrsteele09/go-jobboard-client/sessions"
	"github.com/jrsteele09/go-jobboard-client/users"
	"github.com/stretchr/testify/require"
)

func authenticated(role users.Role) sessions.State {
	return sessions.State{Kind: sessions.Authenticated, Session: &sessions.Session{User: users.User{ID: "1", Role: role}}}
}

func TestAdmitAuthenticated(t *testing.T) {
	tests := []struct {
		name  string
		state sessions.State
		want  guard.Kind
	}{
		{"idle blocks", sessions.State{Kind: sessions.Idle}, guard.Block},
		{"bootstrapping blocks", sessions.State{Kind: sessions.Bootstrapping}, guard.Block},
		{"unauthenticated redirects", sessions.State{Kind: sessions.Unauthenticated}, guard.Redirect},
		{"authenticated admits", authenticated(users.RoleStudent), guard.Admit},
		{"refreshing admits", sessions.State{Kind: sessions.Refreshing, Session: &sessions.Session{User: users.User{Role: users.RoleEmployer}}}, guard.Admit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, guard.AdmitAuthenticated(tt.state, "/profile").Kind)
		})
	}
}

func TestAdmitRole(t *testing.T) {
	t.Run("matching role admits", func(t *testing.T) {
		require.Equal(t, guard.Admit, guard.AdmitRole(authenticated(users.RoleStudent), "/saved", users.RoleStudent).Kind)
	})

	t.Run("bootstrapping blocks rather than redirects", func(t *testing.T) {
		d := guard.AdmitRole(sessions.State{Kind: sessions.Bootstrapping}, "/saved", users.RoleStudent)
		require.Equal(t, guard.Block, d.Kind)
		require.Empty(t, d.Location())
	})

	t.Run("role mismatch carries context", func(t *testing.T) {
		d := guard.AdmitRole(authenticated(users.RoleStudent), "/employer/jobs/new?draft=1", users.RoleEmployer)
		require.Equal(t, guard.RedirectWithContext, d.Kind)
		require.Equal(t, users.RoleStudent, d.CurrentRole)
		require.Equal(t, users.RoleEmployer, d.RequiredRole)

		loc, err := url.Parse(d.Location())
		require.NoError(t, err)
		require.Equal(t, guard.AccessDeniedPath, loc.Path)
		require.Equal(t, "/employer/jobs/new?draft=1", loc.Query().Get("from"))
		require.Equal(t, "employer", loc.Query().Get("requiredRole"))
		require.Equal(t, "student", loc.Query().Get("currentRole"))
	})

	t.Run("anonymous goes to login with notice", func(t *testing.T) {
		s := sessions.State{Kind: sessions.Unauthenticated, Notice: "Your session has expired. Please sign in again."}
		d := guard.AdmitRole(s, "/saved", users.RoleStudent)
		require.Equal(t, guard.Redirect, d.Kind)

		loc, err := url.Parse(d.Location())
		require.NoError(t, err)
		require.Equal(t, guard.LoginPath, loc.Path)
		require.Equal(t, "/saved", loc.Query().Get("next"))
		require.Equal(t, s.Notice, loc.Query().Get("notice"))
	})
}

func TestEmployerLink(t *testing.T) {
	anonymous := guard.EmployerLink(sessions.State{Kind: sessions.Unauthenticated})
	studentLink := guard.EmployerLink(authenticated(users.RoleStudent))
	employerLink := guard.EmployerLink(authenticated(users.RoleEmployer))

	require.Equal(t, anonymous, studentLink)
	require.Equal(t, "/employers", anonymous.Href)
	require.Equal(t, "/employer/dashboard", employerLink.Href)
}
