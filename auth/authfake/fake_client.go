package authfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-jobboard-client/auth"
	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
	"github.com/jrsteele09/go-jobboard-client/token"
	"github.com/jrsteele09/go-jobboard-client/users"
)

var _ auth.Client = (*FakeClient)(nil)

type account struct {
	password string
	user     users.User
	loginErr error
}

// FakeClient is an in-memory backend. Refresh tokens rotate on every use, so
// presenting an already used refresh token is rejected the way a real
// backend would.
type FakeClient struct {
	lock sync.Mutex

	accounts      map[string]*account
	accessTokens  map[string]string // access token -> email
	refreshTokens map[string]string // live refresh token -> email
	seq           int

	refreshErrs []error
	refreshGate chan struct{}
	started     chan struct{}

	refreshCalls int
	loginCalls   int
	meCalls      int
	logoutCalls  int
	resetEmails  []string
	logoutErr    error
	meErr        error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		accounts:      make(map[string]*account),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		started:       make(chan struct{}, 64),
	}
}

// AddUser registers an account that can log in with password
func (f *FakeClient) AddUser(user users.User, password string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accounts[user.Email] = &account{password: password, user: user}
}

// FailLogin makes logins for email fail with err (e.g. ErrAccountLocked)
func (f *FakeClient) FailLogin(email string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if a, ok := f.accounts[email]; ok {
		a.loginErr = err
	}
}

// SetRole changes the role the backend reports for email
func (f *FakeClient) SetRole(email string, role users.Role) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if a, ok := f.accounts[email]; ok {
		a.user.Role = role
	}
}

// IssueFor mints a credential pair for email without a login call
func (f *FakeClient) IssueFor(email string) token.Pair {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.issue(email)
}

// ExpireAccessTokens invalidates every access token issued so far
func (f *FakeClient) ExpireAccessTokens() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accessTokens = make(map[string]string)
}

// RevokeRefreshTokens invalidates every live refresh token
func (f *FakeClient) RevokeRefreshTokens() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshTokens = make(map[string]string)
}

// QueueRefreshErrors makes the next refresh calls fail with errs, in order
func (f *FakeClient) QueueRefreshErrors(errs ...error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshErrs = append(f.refreshErrs, errs...)
}

// HoldRefresh makes refresh calls block until the returned release func is called
func (f *FakeClient) HoldRefresh() (release func()) {
	f.lock.Lock()
	defer f.lock.Unlock()
	gate := make(chan struct{})
	f.refreshGate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// RefreshStarted receives a value each time a refresh call reaches the backend
func (f *FakeClient) RefreshStarted() <-chan struct{} {
	return f.started
}

func (f *FakeClient) FailFetchCurrentUser(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.meErr = err
}

func (f *FakeClient) FailLogout(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.logoutErr = err
}

// CheckAccess stands in for any protected backend call
func (f *FakeClient) CheckAccess(_ context.Context, creds token.Pair) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if _, ok := f.accessTokens[creds.AccessToken]; !ok {
		return autherrors.ErrUnauthorized
	}
	return nil
}

func (f *FakeClient) Login(_ context.Context, email, password string) (auth.LoginResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.loginCalls++
	a, ok := f.accounts[email]
	if !ok || a.password != password {
		return auth.LoginResult{}, autherrors.ErrInvalidCredentials
	}
	if a.loginErr != nil {
		return auth.LoginResult{}, a.loginErr
	}
	return auth.LoginResult{Credentials: f.issue(email), User: a.user}, nil
}

func (f *FakeClient) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	f.lock.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	f.lock.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return token.Pair{}, autherrors.Wrapf(autherrors.ErrTransientTransport, "refresh: %v", ctx.Err())
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if len(f.refreshErrs) > 0 {
		err := f.refreshErrs[0]
		f.refreshErrs = f.refreshErrs[1:]
		return token.Pair{}, err
	}

	email, ok := f.refreshTokens[refreshToken]
	if !ok {
		return token.Pair{}, fmt.Errorf("%w: refresh token reused or revoked", autherrors.ErrRefreshRejected)
	}
	delete(f.refreshTokens, refreshToken)
	return f.issue(email), nil
}

func (f *FakeClient) FetchCurrentUser(_ context.Context, creds token.Pair) (users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.meCalls++
	if f.meErr != nil {
		return users.User{}, f.meErr
	}
	email, ok := f.accessTokens[creds.AccessToken]
	if !ok {
		return users.User{}, autherrors.ErrUnauthorized
	}
	return f.accounts[email].user, nil
}

func (f *FakeClient) Logout(_ context.Context, refreshToken string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.logoutCalls++
	delete(f.refreshTokens, refreshToken)
	return f.logoutErr
}

func (f *FakeClient) RequestPasswordReset(_ context.Context, email string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.resetEmails = append(f.resetEmails, email)
	_, known := f.accounts[email]
	return known, nil
}

func (f *FakeClient) ResetPassword(_ context.Context, resetToken, newPassword string) (bool, error) {
	if resetToken == "" {
		return false, &autherrors.APIError{Status: 400, Message: "Invalid or expired reset token"}
	}
	if len(newPassword) < 8 {
		return false, &autherrors.ValidationError{Fields: []autherrors.FieldError{{Field: "new_password", Message: "must be at least 8 characters"}}}
	}
	return true, nil
}

func (f *FakeClient) RefreshCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refreshCalls
}

func (f *FakeClient) LoginCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.loginCalls
}

func (f *FakeClient) LogoutCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.logoutCalls
}

func (f *FakeClient) MeCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.meCalls
}

func (f *FakeClient) ResetEmails() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.resetEmails...)
}

func (f *FakeClient) issue(email string) token.Pair {
	f.seq++
	pair := token.Pair{
		AccessToken:  fmt.Sprintf("access-%d", f.seq),
		RefreshToken: fmt.Sprintf("refresh-%d", f.seq),
		TokenType:    "bearer",
	}
	f.accessTokens[pair.AccessToken] = email
	f.refreshTokens[pair.RefreshToken] = email
	return pair
}
