package sessions_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-jobboard-client/auth/authfake"
	"github.com/jrsteele09/go-jobboard-client/internal/config"
	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
	"github.com/jrsteele09/go-jobboard-client/sessions"
	"github.com/jrsteele09/go-jobboard-client/token"
	tokenfakerepo "github.com/jrsteele09/go-jobboard-client/token/repofake"
	"github.com/jrsteele09/go-jobboard-client/users"
	"github.com/stretchr/testify/require"
)

const (
	studentEmail  = "ada@example.com"
	employerEmail = "hr@acme.example.com"
	password      = "correct horse"
)

var (
	student  = users.User{ID: "1", Email: studentEmail, Role: users.RoleStudent, DisplayName: "Ada"}
	employer = users.User{ID: "2", Email: employerEmail, Role: users.RoleEmployer, DisplayName: "Acme HR"}
)

func newBackend() *authfake.FakeClient {
	backend := authfake.NewFakeClient()
	backend.AddUser(student, password)
	backend.AddUser(employer, password)
	return backend
}

func newMachine(t *testing.T, backend *authfake.FakeClient, store *tokenfakerepo.FakeStore) *sessions.Machine {
	t.Helper()
	m, err := sessions.NewMachine(backend, store, config.Refresh{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
	require.NoError(t, err)
	return m
}

// collect drains a subscription until the machine reaches one of the final kinds
func collect(t *testing.T, ch <-chan sessions.State, final ...sessions.Kind) []sessions.Kind {
	t.Helper()
	var kinds []sessions.Kind
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			kinds = append(kinds, s.Kind)
			for _, k := range final {
				if s.Kind == k {
					return kinds
				}
			}
		case <-timeout:
			t.Fatalf("machine never settled, saw %v", kinds)
		}
	}
}

func TestNewMachine_InitialState(t *testing.T) {
	m := newMachine(t, newBackend(), tokenfakerepo.NewFakeStore())

	s := m.Snapshot()
	require.Equal(t, sessions.Idle, s.Kind)
	require.True(t, m.Auth().IsLoading)
	require.False(t, m.Auth().IsAuthenticated)

	_, err := sessions.NewMachine(nil, tokenfakerepo.NewFakeStore(), config.Refresh{})
	require.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	t.Run("no stored credentials", func(t *testing.T) {
		backend := newBackend()
		m := newMachine(t, backend, tokenfakerepo.NewFakeStore())

		require.NoError(t, m.Bootstrap(context.Background()))
		require.Equal(t, sessions.Unauthenticated, m.Snapshot().Kind)
		require.Zero(t, backend.MeCalls())
	})

	t.Run("valid stored credentials never pass through unauthenticated", func(t *testing.T) {
		backend := newBackend()
		m := newMachine(t, backend, tokenfakerepo.NewFakeStoreWith(backend.IssueFor(studentEmail)))

		states, cancel := m.Subscribe()
		defer cancel()

		require.NoError(t, m.Bootstrap(context.Background()))
		kinds := collect(t, states, sessions.Authenticated, sessions.Unauthenticated)
		require.Equal(t, []sessions.Kind{sessions.Idle, sessions.Bootstrapping, sessions.Authenticated}, kinds)

		view := m.Auth()
		require.True(t, view.IsAuthenticated)
		require.Equal(t, student.ID, view.User.ID)
		require.True(t, m.Snapshot().Session.Durable)
	})

	t.Run("expired access token is refreshed", func(t *testing.T) {
		backend := newBackend()
		store := tokenfakerepo.NewFakeStoreWith(backend.IssueFor(studentEmail))
		backend.ExpireAccessTokens()
		m := newMachine(t, backend, store)

		require.NoError(t, m.Bootstrap(context.Background()))
		require.Equal(t, sessions.Authenticated, m.Snapshot().Kind)
		require.Equal(t, 1, backend.RefreshCalls())
		require.Equal(t, 2, backend.MeCalls())
	})

	t.Run("rejected refresh signs out with a notice", func(t *testing.T) {
		backend := newBackend()
		store := tokenfakerepo.NewFakeStoreWith(backend.IssueFor(studentEmail))
		backend.ExpireAccessTokens()
		backend.RevokeRefreshTokens()
		m := newMachine(t, backend, store)

		err := m.Bootstrap(context.Background())
		require.ErrorIs(t, err, autherrors.ErrRefreshRejected)

		s := m.Snapshot()
		require.Equal(t, sessions.Unauthenticated, s.Kind)
		require.Equal(t, "Your session has expired. Please sign in again.", s.Notice)
		require.False(t, store.Current().Valid())
	})

	t.Run("unreachable backend keeps credentials", func(t *testing.T) {
		backend := newBackend()
		pair := backend.IssueFor(studentEmail)
		store := tokenfakerepo.NewFakeStoreWith(pair)
		backend.FailFetchCurrentUser(autherrors.ErrTransientTransport)
		m := newMachine(t, backend, store)

		err := m.Bootstrap(context.Background())
		require.ErrorIs(t, err, autherrors.ErrTransientTransport)

		s := m.Snapshot()
		require.Equal(t, sessions.Unauthenticated, s.Kind)
		require.NotEmpty(t, s.Notice)
		require.Equal(t, pair, store.Current())

		backend.FailFetchCurrentUser(nil)
		require.NoError(t, m.Bootstrap(context.Background()))
		require.Equal(t, sessions.Authenticated, m.Snapshot().Kind)
	})
}

func TestLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		backend := newBackend()
		store := tokenfakerepo.NewFakeStore()
		m := newMachine(t, backend, store)
		require.NoError(t, m.Bootstrap(context.Background()))

		require.NoError(t, m.Login(context.Background(), employerEmail, password))

		s := m.Snapshot()
		require.Equal(t, sessions.Authenticated, s.Kind)
		require.Equal(t, users.RoleEmployer, s.Role())
		require.Empty(t, s.Notice)
		require.True(t, store.Current().Valid())
	})

	t.Run("bad credentials leave state unchanged", func(t *testing.T) {
		m := newMachine(t, newBackend(), tokenfakerepo.NewFakeStore())
		require.NoError(t, m.Bootstrap(context.Background()))

		err := m.Login(context.Background(), studentEmail, "nope")
		require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)
		require.Equal(t, sessions.Unauthenticated, m.Snapshot().Kind)
	})

	t.Run("already authenticated", func(t *testing.T) {
		m := newMachine(t, newBackend(), tokenfakerepo.NewFakeStore())
		require.NoError(t, m.Login(context.Background(), studentEmail, password))

		err := m.Login(context.Background(), employerEmail, password)
		require.ErrorIs(t, err, autherrors.ErrAlreadyAuthenticated)
		require.Equal(t, users.RoleStudent, m.Snapshot().Role())
	})

	t.Run("credentials not persisted", func(t *testing.T) {
		backend := newBackend()
		store := tokenfakerepo.NewFakeStore()
		store.FailSaves(errors.New("read-only filesystem"))
		m := newMachine(t, backend, store)

		err := m.Login(context.Background(), studentEmail, password)
		require.Error(t, err)

		s := m.Snapshot()
		require.Equal(t, sessions.Authenticated, s.Kind)
		require.False(t, s.Session.Durable)

		// the in-memory credentials still authorize requests
		require.NoError(t, m.Do(context.Background(), backend.CheckAccess))
	})
}

func TestLogout(t *testing.T) {
	t.Run("clears the session and revokes", func(t *testing.T) {
		backend := newBackend()
		store := tokenfakerepo.NewFakeStore()
		m := newMachine(t, backend, store)
		require.NoError(t, m.Login(context.Background(), studentEmail, password))

		require.NoError(t, m.Logout(context.Background()))

		require.Equal(t, sessions.Unauthenticated, m.Snapshot().Kind)
		require.False(t, store.Current().Valid())
		require.Equal(t, 1, backend.LogoutCalls())
		require.ErrorIs(t, m.Do(context.Background(), backend.CheckAccess), autherrors.ErrNotAuthenticated)
	})

	t.Run("backend failure does not block sign out", func(t *testing.T) {
		backend := newBackend()
		backend.FailLogout(autherrors.ErrTransientTransport)
		store := tokenfakerepo.NewFakeStore()
		m := newMachine(t, backend, store)
		require.NoError(t, m.Login(context.Background(), studentEmail, password))

		require.NoError(t, m.Logout(context.Background()))
		require.Equal(t, sessions.Unauthenticated, m.Snapshot().Kind)
		require.False(t, store.Current().Valid())
	})
}

func TestRefetchUser(t *testing.T) {
	t.Run("updates profile", func(t *testing.T) {
		backend := newBackend()
		m := newMachine(t, backend, tokenfakerepo.NewFakeStore())
		require.NoError(t, m.Login(context.Background(), studentEmail, password))

		renamed := student
		renamed.DisplayName = "Ada L."
		backend.AddUser(renamed, password)

		require.NoError(t, m.RefetchUser(context.Background()))
		require.Equal(t, "Ada L.", m.Auth().User.DisplayName)
	})

	t.Run("role change ends the session", func(t *testing.T) {
		backend := newBackend()
		store := tokenfakerepo.NewFakeStore()
		m := newMachine(t, backend, store)
		require.NoError(t, m.Login(context.Background(), studentEmail, password))

		backend.SetRole(studentEmail, users.RoleEmployer)

		err := m.RefetchUser(context.Background())
		require.ErrorIs(t, err, autherrors.ErrRoleChanged)

		s := m.Snapshot()
		require.Equal(t, sessions.Unauthenticated, s.Kind)
		require.NotEmpty(t, s.Notice)
		require.False(t, store.Current().Valid())
	})

	t.Run("requires a session", func(t *testing.T) {
		m := newMachine(t, newBackend(), tokenfakerepo.NewFakeStore())
		require.ErrorIs(t, m.RefetchUser(context.Background()), autherrors.ErrNotAuthenticated)
	})
}

func TestDo_RefreshingState(t *testing.T) {
	backend := newBackend()
	m := newMachine(t, backend, tokenfakerepo.NewFakeStore())
	require.NoError(t, m.Login(context.Background(), studentEmail, password))

	backend.ExpireAccessTokens()
	release := backend.HoldRefresh()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Do(context.Background(), backend.CheckAccess)
		}(i)
	}

	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.Kind == sessions.Refreshing && s.Pending == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, m.Auth().IsAuthenticated, "a refresh is invisible to route admission")

	release()
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, sessions.Authenticated, m.Snapshot().Kind)
	require.Equal(t, 1, backend.RefreshCalls())
}

func TestDo_RefreshRejectedSignsOut(t *testing.T) {
	backend := newBackend()
	store := tokenfakerepo.NewFakeStore()
	m := newMachine(t, backend, store)
	require.NoError(t, m.Login(context.Background(), studentEmail, password))

	backend.ExpireAccessTokens()
	backend.RevokeRefreshTokens()

	err := m.Do(context.Background(), backend.CheckAccess)
	require.ErrorIs(t, err, autherrors.ErrUnauthorized)
	require.ErrorIs(t, err, autherrors.ErrRefreshRejected)

	s := m.Snapshot()
	require.Equal(t, sessions.Unauthenticated, s.Kind)
	require.Equal(t, "Your session has expired. Please sign in again.", s.Notice)
	require.False(t, store.Current().Valid())
	require.Equal(t, 1, backend.RefreshCalls())
}

func TestDo_RefusedAfterRefreshSignsOut(t *testing.T) {
	backend := newBackend()
	store := tokenfakerepo.NewFakeStore()
	m := newMachine(t, backend, store)
	require.NoError(t, m.Login(context.Background(), studentEmail, password))

	calls := 0
	err := m.Do(context.Background(), func(context.Context, token.Pair) error {
		calls++
		return autherrors.ErrUnauthorized
	})
	require.ErrorIs(t, err, autherrors.ErrTokenRefused)
	require.ErrorIs(t, err, autherrors.ErrUnauthorized)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, backend.RefreshCalls())

	s := m.Snapshot()
	require.Equal(t, sessions.Unauthenticated, s.Kind)
	require.Equal(t, "Your session has expired. Please sign in again.", s.Notice)
	require.False(t, store.Current().Valid())
	require.ErrorIs(t, m.Do(context.Background(), backend.CheckAccess), autherrors.ErrNotAuthenticated)
}

func TestLogout_RefreshInFlightLeavesNextSessionAlone(t *testing.T) {
	backend := newBackend()
	store := tokenfakerepo.NewFakeStore()
	m := newMachine(t, backend, store)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, studentEmail, password))

	backend.ExpireAccessTokens()
	release := backend.HoldRefresh()
	defer release()

	done := make(chan error, 1)
	go func() { done <- m.Do(ctx, backend.CheckAccess) }()
	require.Eventually(t, func() bool {
		return m.Snapshot().Kind == sessions.Refreshing
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Logout(ctx))
	require.NoError(t, m.Login(ctx, employerEmail, password))
	employerCredentials := store.Current()
	require.True(t, employerCredentials.Valid())

	release()
	select {
	case err := <-done:
		require.ErrorIs(t, err, autherrors.ErrNotAuthenticated)
	case <-time.After(2 * time.Second):
		t.Fatal("student request never settled")
	}

	s := m.Snapshot()
	require.Equal(t, sessions.Authenticated, s.Kind)
	require.Equal(t, employer.ID, s.Session.User.ID)
	require.Empty(t, s.Notice)
	require.Equal(t, employerCredentials, store.Current())
	require.NoError(t, m.Do(ctx, backend.CheckAccess))
}

func TestSubscribe_Cancel(t *testing.T) {
	m := newMachine(t, newBackend(), tokenfakerepo.NewFakeStore())

	states, cancel := m.Subscribe()
	require.Equal(t, sessions.Idle, (<-states).Kind)

	cancel()
	cancel()
	_, open := <-states
	require.False(t, open)

	require.NoError(t, m.Bootstrap(context.Background()))
}
