package guard

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-jobboard-client/metrics"
	"github.com/jrsteele09/go-jobboard-client/sessions"
	"github.com/jrsteele09/go-jobboard-client/users"
)

// StateSource supplies the latest authentication state
type StateSource interface {
	Snapshot() sessions.State
}

type stateKey struct{}

// WithState stores the state a request was admitted under
func WithState(ctx context.Context, s sessions.State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// StateFrom returns the state stored by WithState
func StateFrom(ctx context.Context) (sessions.State, bool) {
	s, ok := ctx.Value(stateKey{}).(sessions.State)
	return s, ok
}

type Option func(*options)

type options struct {
	metrics *metrics.Metrics
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// ProtectedRoute admits signed in users
func ProtectedRoute(src StateSource, loading http.Handler, opts ...Option) func(http.Handler) http.Handler {
	return middleware(src, loading, opts, func(s sessions.State, path string) Decision {
		return AdmitAuthenticated(s, path)
	})
}

// RoleProtectedRoute admits signed in users holding role
func RoleProtectedRoute(src StateSource, role users.Role, loading http.Handler, opts ...Option) func(http.Handler) http.Handler {
	return middleware(src, loading, opts, func(s sessions.State, path string) Decision {
		return AdmitRole(s, path, role)
	})
}

func middleware(src StateSource, loading http.Handler, opts []Option, decide func(sessions.State, string) Decision) func(http.Handler) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if loading == nil {
		loading = http.HandlerFunc(DefaultLoading)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := src.Snapshot()
			d := decide(s, r.URL.RequestURI())
			o.metrics.GuardDecision(d.Kind.String())

			switch d.Kind {
			case Admit:
				next.ServeHTTP(w, r.WithContext(WithState(r.Context(), s)))
			case Block:
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Cache-Control", "no-store")
				loading.ServeHTTP(w, r)
			default:
				log.Debug().Str("path", d.From).Str("decision", d.Kind.String()).Str("location", d.Location()).Msg("Route not admitted")
				http.Redirect(w, r, d.Location(), http.StatusSeeOther)
			}
		})
	}
}

// DefaultLoading renders a neutral loading page that reloads itself
func DefaultLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!doctype html><html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head><body><p>Loading...</p></body></html>`))
}
