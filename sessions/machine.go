package sessions

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-jobboard-client/auth"
	"github.com/jrsteele09/go-jobboard-client/internal/config"
	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
	"github.com/jrsteele09/go-jobboard-client/metrics"
	"github.com/jrsteele09/go-jobboard-client/token"
	"github.com/jrsteele09/go-jobboard-client/token/refresh"
	"github.com/jrsteele09/go-jobboard-client/users"
)

// Client is the part of the backend the machine drives
type Client interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
	FetchCurrentUser(ctx context.Context, creds token.Pair) (users.User, error)
	Logout(ctx context.Context, refreshToken string) error
}

const subscriberBuffer = 16

// Machine is the single source of truth for who the current user is. Every
// mutation happens under one lock and is published as a complete State.
type Machine struct {
	client      Client
	store       token.Store
	coordinator *refresh.Coordinator
	metrics     *metrics.Metrics

	lock        sync.Mutex
	state       State
	epoch       uint64 // bumped by login and logout so stale bootstraps and refetches are dropped
	subscribers map[int]chan State
	nextSub     int
}

type Option func(*machineOptions)

type machineOptions struct {
	metrics        *metrics.Metrics
	refreshOptions []refresh.Option
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *machineOptions) { o.metrics = m }
}

// WithRefreshOptions passes options through to the refresh coordinator
func WithRefreshOptions(options ...refresh.Option) Option {
	return func(o *machineOptions) { o.refreshOptions = append(o.refreshOptions, options...) }
}

func NewMachine(client Client, store token.Store, cfg config.RefreshConfig, options ...Option) (*Machine, error) {
	if client == nil {
		return nil, errors.New("[NewMachine] client is required")
	}

	var opts machineOptions
	for _, opt := range options {
		opt(&opts)
	}

	m := &Machine{
		client:      client,
		store:       store,
		metrics:     opts.metrics,
		state:       State{Kind: Idle},
		subscribers: make(map[int]chan State),
	}

	refreshOptions := append([]refresh.Option{
		refresh.WithListener(refreshListener{m}),
		refresh.WithMetrics(opts.metrics),
	}, opts.refreshOptions...)

	coordinator, err := refresh.NewCoordinator(client, store, cfg, refreshOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewMachine]")
	}
	m.coordinator = coordinator
	return m, nil
}

// Snapshot returns the current state
func (m *Machine) Snapshot() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.snapshotLocked()
}

// Auth returns the view rendering code consumes
func (m *Machine) Auth() AuthView {
	return m.Snapshot().View()
}

func (m *Machine) snapshotLocked() State {
	s := m.state
	if s.Kind == Refreshing {
		s.Pending = m.coordinator.Pending()
	}
	return s
}

// Subscribe streams every published state, starting with the current one.
// Slow subscribers lose intermediate states but always see the latest.
func (m *Machine) Subscribe() (<-chan State, func()) {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan State, subscriberBuffer)
	ch <- m.snapshotLocked()
	m.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.lock.Lock()
			defer m.lock.Unlock()
			delete(m.subscribers, id)
			close(ch)
		})
	}
}

// Bootstrap validates stored credentials. The machine is Bootstrapping until
// it settles on Authenticated or Unauthenticated.
func (m *Machine) Bootstrap(ctx context.Context) error {
	m.lock.Lock()
	switch m.state.Kind {
	case Bootstrapping, Authenticated, Refreshing:
		m.lock.Unlock()
		return nil
	}
	if err := m.transitionLocked(Bootstrapping, nil, ""); err != nil {
		m.lock.Unlock()
		return err
	}
	epoch := m.epoch
	m.lock.Unlock()

	if _, ok := m.store.Load(ctx); !ok {
		m.settleBootstrap(epoch, Unauthenticated, nil, "")
		return nil
	}

	user, err := m.fetchUser(ctx)
	if err != nil {
		return m.bootstrapFailed(ctx, epoch, err)
	}

	m.settleBootstrap(epoch, Authenticated, m.newSession(ctx, user), "")
	return nil
}

func (m *Machine) bootstrapFailed(ctx context.Context, epoch uint64, err error) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.epoch != epoch || m.state.Kind != Bootstrapping {
		// a failed refresh, login or logout already settled the state
		return err
	}

	notice := autherrors.UserMessage(err)
	if autherrors.Is(err, autherrors.ErrUnauthorized) {
		// the refreshed token was refused too
		m.coordinator.Forget()
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			log.Err(clearErr).Msg("Failed to clear credentials after bootstrap")
		}
		notice = autherrors.UserMessage(autherrors.ErrRefreshRejected)
	} else {
		log.Warn().Err(err).Msg("Bootstrap could not validate stored credentials, keeping them")
	}

	if tErr := m.transitionLocked(Unauthenticated, nil, notice); tErr != nil {
		return tErr
	}
	return err
}

func (m *Machine) settleBootstrap(epoch uint64, to Kind, session *Session, notice string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.epoch != epoch || m.state.Kind != Bootstrapping {
		return
	}
	_ = m.transitionLocked(to, session, notice)
}

// Login authenticates and establishes a session. If the credentials cannot be
// persisted the session is still established, Durable is false, and the save
// error is returned.
func (m *Machine) Login(ctx context.Context, email, password string) error {
	m.lock.Lock()
	switch m.state.Kind {
	case Authenticated, Refreshing:
		m.lock.Unlock()
		return autherrors.ErrAlreadyAuthenticated
	case Bootstrapping:
		m.lock.Unlock()
		return autherrors.Wrapf(autherrors.ErrInvalidTransition, "[Login] bootstrap in progress")
	}
	m.lock.Unlock()

	result, err := m.client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	// a refresh left over from an earlier session must not write over these credentials
	m.coordinator.Forget()
	saveErr := m.store.Save(ctx, result.Credentials)
	if saveErr != nil {
		log.Err(saveErr).Str("email", email).Msg("Signed in but credentials were not persisted")
		m.coordinator.Track(result.Credentials)
	}

	session := &Session{User: result.User, Durable: saveErr == nil}
	if exp, ok := token.ExpiryEstimate(result.Credentials.AccessToken); ok {
		session.ExpiresAt = exp
	}

	m.lock.Lock()
	m.epoch++
	err = m.transitionLocked(Authenticated, session, "")
	m.lock.Unlock()
	if err != nil {
		return err
	}

	log.Info().Str("user_id", result.User.ID).Str("role", result.User.Role.String()).Msg("Signed in")
	return autherrors.Wrapf(saveErr, "[Login] credentials not persisted")
}

// Logout tears the session down locally, then revokes the refresh token on
// the backend. Revocation is best effort.
func (m *Machine) Logout(ctx context.Context) error {
	pair, hadCredentials := m.coordinator.Current(ctx)

	m.coordinator.Forget()
	clearErr := m.store.Clear(ctx)

	m.lock.Lock()
	m.epoch++
	tErr := m.transitionLocked(Unauthenticated, nil, "")
	m.lock.Unlock()

	if hadCredentials {
		if err := m.client.Logout(ctx, pair.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("Backend logout failed, session was cleared locally")
		}
	}

	if clearErr != nil {
		return autherrors.Wrapf(clearErr, "[Logout] failed to clear credentials")
	}
	return tErr
}

// RefetchUser reloads the profile. A changed role ends the session.
func (m *Machine) RefetchUser(ctx context.Context) error {
	m.lock.Lock()
	if !m.state.IsAuthenticated() {
		m.lock.Unlock()
		return autherrors.ErrNotAuthenticated
	}
	epoch := m.epoch
	previous := m.state.Session.User
	m.lock.Unlock()

	user, err := m.fetchUser(ctx)
	if err != nil {
		if autherrors.Is(err, autherrors.ErrTokenRefused) {
			m.endRefusedSession(ctx, epoch)
		}
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.epoch != epoch || !m.state.IsAuthenticated() {
		return autherrors.ErrNotAuthenticated
	}

	if user.Role != previous.Role {
		log.Warn().Str("user_id", user.ID).Str("from", previous.Role.String()).Str("to", user.Role.String()).Msg("Role changed, ending session")
		m.coordinator.Forget()
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			log.Err(clearErr).Msg("Failed to clear credentials after role change")
		}
		m.epoch++
		if tErr := m.transitionLocked(Unauthenticated, nil, autherrors.UserMessage(autherrors.ErrRoleChanged)); tErr != nil {
			return tErr
		}
		return autherrors.Wrapf(autherrors.ErrRoleChanged, "[RefetchUser] %s -> %s", previous.Role, user.Role)
	}

	session := *m.state.Session
	session.User = user
	return m.transitionLocked(m.state.Kind, &session, "")
}

// Do runs an authorized backend call. Expired access tokens are refreshed
// once, shared with every other caller that needs a refresh at the same time.
// A call still unauthorized after the refresh ends the session.
func (m *Machine) Do(ctx context.Context, fn func(ctx context.Context, creds token.Pair) error) error {
	m.lock.Lock()
	if !m.state.IsAuthenticated() {
		m.lock.Unlock()
		return autherrors.ErrNotAuthenticated
	}
	epoch := m.epoch
	m.lock.Unlock()

	err := m.coordinator.Do(ctx, fn)
	if autherrors.Is(err, autherrors.ErrTokenRefused) {
		m.endRefusedSession(ctx, epoch)
	}
	return err
}

func (m *Machine) endRefusedSession(ctx context.Context, epoch uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.epoch != epoch || !m.state.IsAuthenticated() {
		return
	}
	log.Warn().Str("user_id", m.state.Session.User.ID).Msg("Refreshed access token was refused, ending session")
	m.coordinator.Forget()
	if err := m.store.Clear(ctx); err != nil {
		log.Err(err).Msg("Failed to clear credentials after refused token")
	}
	m.epoch++
	_ = m.transitionLocked(Unauthenticated, nil, autherrors.UserMessage(autherrors.ErrRefreshRejected))
}

func (m *Machine) fetchUser(ctx context.Context) (users.User, error) {
	var user users.User
	err := m.coordinator.Do(ctx, func(ctx context.Context, creds token.Pair) error {
		u, err := m.client.FetchCurrentUser(ctx, creds)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

func (m *Machine) newSession(ctx context.Context, user users.User) *Session {
	session := &Session{User: user, Durable: true}
	if pair, ok := m.coordinator.Current(ctx); ok {
		if exp, ok := token.ExpiryEstimate(pair.AccessToken); ok {
			session.ExpiresAt = exp
		}
	}
	return session
}

func (m *Machine) transitionLocked(to Kind, session *Session, notice string) error {
	from := m.state.Kind
	if !canTransition(from, to) {
		log.Error().Str("from", from.String()).Str("to", to.String()).Msg("Rejected session state transition")
		return autherrors.Wrapf(autherrors.ErrInvalidTransition, "%s -> %s", from, to)
	}

	m.state = State{Kind: to, Session: session, Notice: notice}
	if from != to {
		log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Session state changed")
		m.metrics.Transition(from.String(), to.String())
	}
	m.publishLocked()
	return nil
}

func (m *Machine) publishLocked() {
	s := m.snapshotLocked()
	for _, ch := range m.subscribers {
		select {
		case ch <- s:
			continue
		default:
		}
		// drop the oldest state to make room for the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// refreshListener moves the machine through Refreshing on behalf of the
// coordinator. Events from a refresh whose session has ended are ignored.
type refreshListener struct {
	m *Machine
}

func (l refreshListener) RefreshStarted(generation uint64) {
	m := l.m
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.coordinator.Generation() != generation {
		return
	}
	if m.state.Kind == Authenticated {
		_ = m.transitionLocked(Refreshing, m.state.Session, "")
	}
}

func (l refreshListener) Refreshed(generation uint64, pair token.Pair, durable bool) {
	m := l.m
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.coordinator.Generation() != generation {
		return
	}

	switch m.state.Kind {
	case Authenticated, Refreshing:
		session := *m.state.Session
		session.Durable = durable
		if exp, ok := token.ExpiryEstimate(pair.AccessToken); ok {
			session.ExpiresAt = exp
		}
		_ = m.transitionLocked(Authenticated, &session, "")
	case Bootstrapping:
		// bootstrap finishes once the user is fetched with the new token
	}
}

func (l refreshListener) RefreshFailed(generation uint64, err error) {
	m := l.m
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.coordinator.Generation() != generation {
		return
	}

	if m.state.Kind == Unauthenticated || m.state.Kind == Idle {
		return
	}

	notice := autherrors.UserMessage(autherrors.ErrRefreshRejected)
	if !autherrors.Is(err, autherrors.ErrRefreshRejected) {
		notice = autherrors.UserMessage(err)
	}
	_ = m.transitionLocked(Unauthenticated, nil, notice)
}
