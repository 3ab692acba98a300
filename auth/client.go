package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-jobboard-client/internal/config"
	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
	"github.com/jrsteele09/go-jobboard-client/internal/utils"
	"github.com/jrsteele09/go-jobboard-client/token"
	"github.com/jrsteele09/go-jobboard-client/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Backend auth endpoints, relative to the API base URL
const (
	RouteLogin          = "/auth/login"
	RouteRefresh        = "/auth/refresh"
	RouteMe             = "/auth/me"
	RouteLogout         = "/auth/logout"
	RouteForgotPassword = "/auth/forgot-password"
	RouteResetPassword  = "/auth/reset-password"
)

const maxResponseBytes = 1 << 20

// ErrMalformedResponse is returned when a 2xx response cannot be decoded
var ErrMalformedResponse = errors.New("malformed backend response")

// LoginResult is what a successful login yields
type LoginResult struct {
	Credentials token.Pair
	User        users.User
}

// Client is the RPC boundary to the backend's auth endpoints. Each call is a
// single request/response with no retries.
type Client interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
	FetchCurrentUser(ctx context.Context, creds token.Pair) (users.User, error)
	Logout(ctx context.Context, refreshToken string) error
	RequestPasswordReset(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) (bool, error)
}

// HTTPClient implements Client against the job-board backend
type HTTPClient struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	loginTimeout   time.Duration
	refreshTimeout time.Duration
}

var _ Client = (*HTTPClient)(nil)

type HTTPClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewHTTPClient(cfg config.BackendConfig, options ...HTTPClientOption) (*HTTPClient, error) {
	if cfg == nil {
		return nil, errors.New("[NewHTTPClient] backend config is required")
	}
	if cfg.GetAPIBaseURL() == "" {
		return nil, errors.New("[NewHTTPClient] API base URL is required")
	}

	c := &HTTPClient{
		baseURL:        cfg.GetAPIBaseURL(),
		httpClient:     &http.Client{},
		requestTimeout: cfg.GetRequestTimeout(),
		loginTimeout:   cfg.GetLoginTimeout(),
		refreshTimeout: cfg.GetRefreshTimeout(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (LoginResult, error) {
	resp, err := c.send(ctx, call{
		method:  http.MethodPost,
		path:    RouteLogin,
		body:    loginRequest{Email: email, Password: password},
		timeout: c.loginTimeout,
	})
	if err != nil {
		return LoginResult{}, err
	}
	if !resp.ok() {
		return LoginResult{}, loginError(resp)
	}

	var body loginResponse
	if err := resp.decode(&body); err != nil {
		return LoginResult{}, err
	}
	pair := body.pair()
	if !pair.Valid() {
		return LoginResult{}, fmt.Errorf("[HTTPClient Login] %w: incomplete credentials", ErrMalformedResponse)
	}
	return LoginResult{Credentials: pair, User: body.User}, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	resp, err := c.send(ctx, call{
		method:  http.MethodPost,
		path:    RouteRefresh,
		body:    refreshRequest{RefreshToken: refreshToken},
		timeout: c.refreshTimeout,
	})
	if err != nil {
		return token.Pair{}, err
	}
	if !resp.ok() {
		return token.Pair{}, refreshError(resp)
	}

	var body tokenResponse
	if err := resp.decode(&body); err != nil {
		return token.Pair{}, err
	}
	pair := body.pair()
	if pair.RefreshToken == "" {
		// Backend did not rotate the refresh token
		pair.RefreshToken = refreshToken
	}
	if !pair.Valid() {
		return token.Pair{}, fmt.Errorf("[HTTPClient Refresh] %w: missing access token", ErrMalformedResponse)
	}
	return pair, nil
}

func (c *HTTPClient) FetchCurrentUser(ctx context.Context, creds token.Pair) (users.User, error) {
	resp, err := c.send(ctx, call{
		method:  http.MethodGet,
		path:    RouteMe,
		bearer:  creds.OAuth2(),
		timeout: c.requestTimeout,
	})
	if err != nil {
		return users.User{}, err
	}
	if !resp.ok() {
		return users.User{}, currentUserError(resp)
	}

	var user users.User
	if err := resp.decode(&user); err != nil {
		return users.User{}, err
	}
	return user, nil
}

func (c *HTTPClient) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.send(ctx, call{
		method:  http.MethodPost,
		path:    RouteLogout,
		body:    refreshRequest{RefreshToken: refreshToken},
		timeout: c.requestTimeout,
	})
	if err != nil {
		return err
	}
	// An already revoked token is as good as a successful logout
	if resp.ok() || resp.status == http.StatusUnauthorized {
		return nil
	}
	return commonError(resp)
}

func (c *HTTPClient) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	resp, err := c.send(ctx, call{
		method:  http.MethodPost,
		path:    RouteForgotPassword,
		body:    forgotPasswordRequest{Email: email},
		timeout: c.requestTimeout,
	})
	if err != nil {
		return false, err
	}
	if !resp.ok() {
		return false, commonError(resp)
	}

	var body forgotPasswordResponse
	if err := resp.decode(&body); err != nil {
		return false, err
	}
	return utils.Value(body.EmailSent), nil
}

func (c *HTTPClient) ResetPassword(ctx context.Context, resetToken, newPassword string) (bool, error) {
	resp, err := c.send(ctx, call{
		method:  http.MethodPost,
		path:    RouteResetPassword,
		body:    resetPasswordRequest{Token: resetToken, NewPassword: newPassword},
		timeout: c.requestTimeout,
	})
	if err != nil {
		return false, err
	}
	if !resp.ok() {
		return false, commonError(resp)
	}

	var body resetPasswordResponse
	if err := resp.decode(&body); err != nil {
		return false, err
	}
	return utils.Value(body.Success), nil
}

type call struct {
	method  string
	path    string
	body    any
	bearer  *oauth2.Token
	timeout time.Duration
}

type response struct {
	path   string
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r response) decode(target any) error {
	if err := json.Unmarshal(r.body, target); err != nil {
		return fmt.Errorf("%w from %s: %v", ErrMalformedResponse, r.path, err)
	}
	return nil
}

// send performs one request. Transport failures and timeouts come back as
// ErrTransientTransport; a cancellation by the caller comes back as the
// caller's context error.
func (c *HTTPClient) send(ctx context.Context, cl call) (response, error) {
	callCtx := ctx
	if cl.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cl.timeout)
		defer cancel()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return response{}, fmt.Errorf("[HTTPClient send] %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(callCtx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return response{}, fmt.Errorf("[HTTPClient send] %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.bearer != nil {
		cl.bearer.SetAuthHeader(req)
	}

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return response{}, ctx.Err()
		}
		log.Debug().Err(err).Str("path", cl.path).Str("request_id", requestID).Msg("Backend call failed")
		return response{}, autherrors.Wrapf(autherrors.ErrTransientTransport, "%s %s: %v", cl.method, cl.path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return response{}, autherrors.Wrapf(autherrors.ErrTransientTransport, "%s %s: reading body: %v", cl.method, cl.path, err)
	}

	log.Debug().
		Str("method", cl.method).
		Str("path", cl.path).
		Int("status", res.StatusCode).
		Str("request_id", requestID).
		Dur("elapsed", time.Since(start)).
		Msg("Backend call")

	return response{path: cl.path, status: res.StatusCode, body: data}, nil
}
