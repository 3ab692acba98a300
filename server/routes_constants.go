package server

import "github.com/jrsteele09/go-jobboard-client/guard"

// Route path constants
const (
	RouteIndex     = "/"
	RouteEmployers = "/employers"

	// Auth
	RouteLogin          = guard.LoginPath
	RouteLogout         = "/logout"
	RouteAccessDenied   = guard.AccessDeniedPath
	RouteForgotPassword = "/forgot-password"
	RouteResetPassword  = "/reset-password"

	// Any signed in user
	RouteProfile = "/profile"

	// Students
	RouteSavedJobs = "/saved"

	// Employers
	RouteEmployerDashboard = "/employer/dashboard"
	RouteEmployerNewJob    = "/employer/jobs/new"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
