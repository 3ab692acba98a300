package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jrsteele09/go-jobboard-client/guard"
	"github.com/jrsteele09/go-jobboard-client/metrics"
	"github.com/jrsteele09/go-jobboard-client/users"
)

func (s *Server) initRoutes() error {
	pages, err := parsePages()
	if err != nil {
		return err
	}

	loading := s.LoadingHandler(pages)
	guardOpts := []guard.Option{guard.WithMetrics(s.metrics)}
	signedIn := guard.ProtectedRoute(s.sessions, loading, guardOpts...)
	students := guard.RoleProtectedRoute(s.sessions, users.RoleStudent, loading, guardOpts...)
	employers := guard.RoleProtectedRoute(s.sessions, users.RoleEmployer, loading, guardOpts...)

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(s.RecoverMiddleware)
	r.Use(s.LoggingMiddleware)
	r.Use(s.FrameSecurityMiddleware)

	r.Get(RouteHealth, s.HealthHandler())
	if s.registry != nil {
		r.Method(http.MethodGet, RouteMetrics, metrics.Handler(s.registry))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.NoStoreMiddleware)

		r.Get(RouteIndex, s.IndexHandler(pages))
		r.Get(RouteEmployers, s.EmployersHandler(pages))

		r.Get(RouteLogin, s.LoginPageHandler(pages))
		r.Post(RouteLogin, s.LoginSubmissionHandler(pages))
		r.Post(RouteLogout, s.LogoutHandler())
		r.Get(RouteAccessDenied, s.AccessDeniedHandler(pages))

		r.Get(RouteForgotPassword, s.ForgotPasswordGetHandler(pages))
		r.Post(RouteForgotPassword, s.ForgotPasswordPostHandler(pages))
		r.Get(RouteResetPassword, s.ResetPasswordGetHandler(pages))
		r.Post(RouteResetPassword, s.ResetPasswordPostHandler(pages))

		r.With(signedIn).Get(RouteProfile, s.ProfileHandler(pages))
		r.With(students).Get(RouteSavedJobs, s.SavedJobsHandler(pages))
		r.With(employers).Get(RouteEmployerDashboard, s.EmployerDashboardHandler(pages))
		r.With(employers).Get(RouteEmployerNewJob, s.NewJobHandler(pages))
	})

	r.NotFound(s.NotFoundHandler(pages))
	return nil
}
