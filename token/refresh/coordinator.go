package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-jobboard-client/internal/config"
	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
	"github.com/jrsteele09/go-jobboard-client/metrics"
	"github.com/jrsteele09/go-jobboard-client/token"
)

// Refresher swaps a refresh token for a new credential pair
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
}

// Listener observes the lifecycle of each refresh. Calls for one refresh are
// made in order from a single goroutine and never while the coordinator lock is held.
// generation identifies the session the refresh belongs to, see Generation.
type Listener interface {
	RefreshStarted(generation uint64)
	Refreshed(generation uint64, pair token.Pair, durable bool)
	RefreshFailed(generation uint64, err error)
}

// Continuation is resumed exactly once with either a fresh access token or an error
type Continuation struct {
	Resolve func(accessToken string)
	Reject  func(err error)
}

type waiter struct {
	k Continuation
}

type flight struct {
	generation uint64
	waiters    []*waiter
}

// Coordinator guarantees at most one refresh in flight. Callers that arrive
// while a refresh is running are queued on it and resumed in arrival order.
type Coordinator struct {
	refresher Refresher
	store     token.Store
	listener  Listener
	metrics   *metrics.Metrics

	maxAttempts    int
	backoff        time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration

	lock       sync.Mutex
	inflight   *flight
	generation uint64     // bumped by Forget, a flight from an older generation no longer owns the store
	tracked    token.Pair // pair held in memory when the store could not persist it
}

type Option func(*Coordinator)

func WithListener(l Listener) Option {
	return func(c *Coordinator) { c.listener = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithAttemptTimeout bounds each refresh attempt. A timed out attempt counts as transient.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.attemptTimeout = d }
}

func NewCoordinator(refresher Refresher, store token.Store, cfg config.RefreshConfig, options ...Option) (*Coordinator, error) {
	if refresher == nil {
		return nil, errors.New("[NewCoordinator] refresher is required")
	}
	if store == nil {
		return nil, errors.New("[NewCoordinator] token store is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewCoordinator] refresh config is required")
	}

	c := &Coordinator{
		refresher:   refresher,
		store:       store,
		listener:    nopListener{},
		maxAttempts: cfg.GetRefreshMaxAttempts(),
		backoff:     cfg.GetRefreshBackoff(),
		maxBackoff:  cfg.GetRefreshMaxBackoff(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c, nil
}

// Track holds pair in memory as the current credentials. Called after a login
// whose credentials could not be saved.
func (c *Coordinator) Track(pair token.Pair) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tracked = pair
}

// Forget ends the current session: tracked credentials are dropped and a
// refresh in flight is detached. A detached refresh never touches the store or
// the listener, and its callers are rejected. Called on logout and before login.
func (c *Coordinator) Forget() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tracked = token.Pair{}
	c.generation++
	c.inflight = nil
}

// Generation identifies the current session. It changes on every Forget.
func (c *Coordinator) Generation() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.generation
}

// Current returns the credentials the next request should use
func (c *Coordinator) Current(ctx context.Context) (token.Pair, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.currentLocked(ctx)
}

// Pending is the number of callers waiting on the in-flight refresh
func (c *Coordinator) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.inflight == nil {
		return 0
	}
	return len(c.inflight.waiters)
}

// InFlight reports whether a refresh is running
func (c *Coordinator) InFlight() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.inflight != nil
}

func (c *Coordinator) currentLocked(ctx context.Context) (token.Pair, bool) {
	if c.tracked.Valid() {
		return c.tracked, true
	}
	return c.store.Load(ctx)
}

// Submit asks for an access token to replace stale. k is resumed exactly once,
// possibly before Submit returns. The returned cancel removes k from the queue
// and reports whether it did so; it never stops the refresh itself.
func (c *Coordinator) Submit(ctx context.Context, stale string, k Continuation) (cancel func() bool) {
	w := &waiter{k: k}
	noop := func() bool { return false }

	c.lock.Lock()
	if f := c.inflight; f != nil {
		f.waiters = append(f.waiters, w)
		c.lock.Unlock()
		c.metrics.RefreshCoalesced()
		return func() bool { return c.remove(f, w) }
	}

	current, ok := c.currentLocked(ctx)
	if !ok {
		c.lock.Unlock()
		k.Reject(errSessionEnded)
		return noop
	}
	if current.AccessToken != stale {
		// a refresh already completed after the caller read its token
		c.lock.Unlock()
		k.Resolve(current.AccessToken)
		return noop
	}

	f := &flight{generation: c.generation, waiters: []*waiter{w}}
	c.inflight = f
	c.lock.Unlock()

	go c.run(context.WithoutCancel(ctx), f, current)
	return func() bool { return c.remove(f, w) }
}

var errSessionEnded = fmt.Errorf("%w: %w", autherrors.ErrUnauthorized, autherrors.ErrNotAuthenticated)

type result struct {
	accessToken string
	err         error
}

// GetValidToken blocks until a token newer than stale is available. If ctx
// ends first the caller leaves the queue and the refresh carries on.
func (c *Coordinator) GetValidToken(ctx context.Context, stale string) (string, error) {
	done := make(chan result, 1)
	cancel := c.Submit(ctx, stale, Continuation{
		Resolve: func(accessToken string) { done <- result{accessToken: accessToken} },
		Reject:  func(err error) { done <- result{err: err} },
	})

	select {
	case r := <-done:
		return r.accessToken, r.err
	case <-ctx.Done():
		if cancel() {
			return "", ctx.Err()
		}
		// already being resumed
		r := <-done
		return r.accessToken, r.err
	}
}

// Do runs fn with the current credentials. If fn reports ErrUnauthorized it
// waits for a refreshed token and runs fn exactly once more. A second
// ErrUnauthorized comes back wrapped in ErrTokenRefused.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context, creds token.Pair) error) error {
	c.lock.Lock()
	generation := c.generation
	current, ok := c.currentLocked(ctx)
	c.lock.Unlock()
	if !ok {
		return autherrors.ErrNotAuthenticated
	}

	err := fn(ctx, current)
	if !autherrors.Is(err, autherrors.ErrUnauthorized) {
		return err
	}

	accessToken, err := c.GetValidToken(ctx, current.AccessToken)
	if err != nil {
		return err
	}

	c.lock.Lock()
	ended := c.generation != generation
	fresh, ok := c.currentLocked(ctx)
	c.lock.Unlock()
	if ended {
		// the token may belong to whoever signed in since
		return errSessionEnded
	}
	if !ok || fresh.AccessToken != accessToken {
		fresh = token.Pair{AccessToken: accessToken, RefreshToken: current.RefreshToken, TokenType: current.TokenType}
	}
	err = fn(ctx, fresh)
	if autherrors.Is(err, autherrors.ErrUnauthorized) {
		return fmt.Errorf("%w: %w", autherrors.ErrTokenRefused, err)
	}
	return err
}

func (c *Coordinator) remove(f *flight, w *waiter) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	for i, x := range f.waiters {
		if x == w {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Coordinator) run(ctx context.Context, f *flight, current token.Pair) {
	c.listener.RefreshStarted(f.generation)
	c.metrics.RefreshStarted()

	pair, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		c.fail(ctx, f, err)
		return
	}
	c.succeed(ctx, f, pair)
}

func (c *Coordinator) refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	if refreshToken == "" {
		return token.Pair{}, autherrors.Wrapf(autherrors.ErrRefreshRejected, "no stored refresh token")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoff
	policy.MaxInterval = c.maxBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	var pair token.Pair
	operation := func() error {
		attempt++
		c.metrics.RefreshAttempt()

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		}
		defer cancel()

		p, err := c.refresher.Refresh(attemptCtx, refreshToken)
		switch {
		case err == nil:
			pair = p
			return nil
		case autherrors.Is(err, autherrors.ErrTransientTransport):
		case autherrors.Is(err, context.DeadlineExceeded):
			err = autherrors.Wrapf(autherrors.ErrTransientTransport, "refresh attempt timed out: %v", err)
		default:
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.maxAttempts).Msg("Refresh attempt failed")
		return err
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)))
	if err != nil {
		return token.Pair{}, err
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func (c *Coordinator) succeed(ctx context.Context, f *flight, pair token.Pair) {
	c.lock.Lock()
	owner := f.generation == c.generation
	durable := false
	if owner {
		if err := c.store.Save(ctx, pair); err != nil {
			log.Err(err).Msg("Refreshed credentials were not persisted, keeping them in memory")
			c.tracked = pair
		} else {
			durable = true
			c.tracked = token.Pair{}
		}
	}
	c.lock.Unlock()

	if !owner {
		c.discard(f)
		return
	}
	c.metrics.RefreshFinished(metrics.OutcomeSuccess)
	c.listener.Refreshed(f.generation, pair, durable)

	for _, w := range c.settle(f) {
		w.k.Resolve(pair.AccessToken)
	}
}

func (c *Coordinator) fail(ctx context.Context, f *flight, cause error) {
	c.lock.Lock()
	owner := f.generation == c.generation
	if owner {
		if err := c.store.Clear(ctx); err != nil {
			log.Err(err).Msg("Failed to clear credentials after refresh failure")
		}
		c.tracked = token.Pair{}
	}
	c.lock.Unlock()

	if !owner {
		c.discard(f)
		return
	}
	log.Err(cause).Msg("Refresh failed, credentials cleared")
	if autherrors.Is(cause, autherrors.ErrRefreshRejected) {
		c.metrics.RefreshFinished(metrics.OutcomeRejected)
	} else {
		c.metrics.RefreshFinished(metrics.OutcomeFailed)
	}
	c.listener.RefreshFailed(f.generation, cause)

	err := fmt.Errorf("%w: %w", autherrors.ErrUnauthorized, cause)
	for _, w := range c.settle(f) {
		w.k.Reject(err)
	}
}

// discard settles a refresh whose session ended while it ran
func (c *Coordinator) discard(f *flight) {
	log.Debug().Msg("Session ended during refresh, discarding the result")
	c.metrics.RefreshFinished(metrics.OutcomeDiscarded)
	for _, w := range c.settle(f) {
		w.k.Reject(errSessionEnded)
	}
}

// settle closes the in-flight slot and hands back its queue
func (c *Coordinator) settle(f *flight) []*waiter {
	c.lock.Lock()
	defer c.lock.Unlock()
	waiters := f.waiters
	f.waiters = nil
	if c.inflight == f {
		c.inflight = nil
	}
	return waiters
}

type nopListener struct{}

func (nopListener) RefreshStarted(uint64)              {}
func (nopListener) Refreshed(uint64, token.Pair, bool) {}
func (nopListener) RefreshFailed(uint64, error)        {}
