package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-jobboard-client/internal/config"
	"github.com/jrsteele09/go-jobboard-client/metrics"
	"github.com/jrsteele09/go-jobboard-client/sessions"
)

// Sessions is the authentication state the web front renders and guards on
type Sessions interface {
	Snapshot() sessions.State
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
}

// PasswordResetter starts and completes password resets. It never touches the session.
type PasswordResetter interface {
	RequestPasswordReset(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) (bool, error)
}

type Server struct {
	env      string
	appName  string
	router   chi.Router
	sessions Sessions
	password PasswordResetter
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

type Option func(*Server)

// WithMetrics records guard decisions in m and serves registry on /metrics
func WithMetrics(m *metrics.Metrics, registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = m
		s.registry = registry
	}
}

func New(cfg config.EnvConfig, sessions Sessions, password PasswordResetter, options ...Option) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("[Server New] sessions are required")
	}
	if password == nil {
		return nil, fmt.Errorf("[Server New] password resetter is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		appName:  cfg.GetAppName(),
		router:   chi.NewRouter(),
		sessions: sessions,
		password: password,
	}
	for _, opt := range options {
		opt(s)
	}

	if err := s.initRoutes(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to build routes: %w", err)
	}
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		log.Debug().Msg(formatRoute(method, route))
		return nil
	})
}
