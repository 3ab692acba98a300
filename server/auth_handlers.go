package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
)

const signedOutNotice = "You have been signed out."

// LoginPageHandler renders the sign in form (GET /auth)
func (s *Server) LoginPageHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := safeNext(r.URL.Query().Get("next"))
		if s.sessions.Snapshot().IsAuthenticated() {
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		}

		data := s.pageData("Sign in")
		data.Next = next
		data.Notice = r.URL.Query().Get("notice")
		data.Email = r.URL.Query().Get("email")
		p.render(w, http.StatusOK, "login.html", data)
	}
}

// LoginSubmissionHandler processes the sign in form (POST /auth)
func (s *Server) LoginSubmissionHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := strings.TrimSpace(r.PostForm.Get("email"))
		password := r.PostForm.Get("password")
		next := safeNext(r.PostForm.Get("next"))

		data := s.pageData("Sign in")
		data.Email = email
		data.Next = next

		fields := map[string]string{}
		if email == "" {
			fields["email"] = "Email is required."
		}
		if password == "" {
			fields["password"] = "Password is required."
		}
		if len(fields) > 0 {
			data.Fields = fields
			p.render(w, http.StatusUnprocessableEntity, "login.html", data)
			return
		}

		err := s.sessions.Login(r.Context(), email, password)
		switch {
		case err == nil, autherrors.Is(err, autherrors.ErrAlreadyAuthenticated):
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		case s.sessions.Snapshot().IsAuthenticated():
			// signed in, but the credentials only live in memory
			log.Warn().Err(err).Msg("Signed in without persisted credentials")
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		}

		status := http.StatusUnauthorized
		var validation *autherrors.ValidationError
		switch {
		case autherrors.As(err, &validation):
			status = http.StatusUnprocessableEntity
			data.Fields = validation.Messages()
			data.Error = data.Fields[""]
		case autherrors.Is(err, autherrors.ErrTransientTransport):
			status = http.StatusServiceUnavailable
			data.Error = autherrors.UserMessage(err)
		default:
			data.Error = autherrors.UserMessage(err)
		}
		log.Info().Err(err).Str("email", email).Msg("Sign in failed")
		p.render(w, status, "login.html", data)
	}
}

// LogoutHandler signs out (POST /logout). Sign out always completes locally.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Logout(r.Context()); err != nil {
			log.Err(err).Msg("Logout did not complete cleanly")
		}
		q := url.Values{}
		q.Set("notice", signedOutNotice)
		http.Redirect(w, r, RouteLogin+"?"+q.Encode(), http.StatusSeeOther)
	}
}

// AccessDeniedHandler explains a role mismatch (GET /access-denied)
func (s *Server) AccessDeniedHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data := s.pageData("Access denied")
		data.Denied = &DeniedData{
			From:         q.Get("from"),
			RequiredRole: q.Get("requiredRole"),
			CurrentRole:  q.Get("currentRole"),
		}
		p.render(w, http.StatusForbidden, "access_denied.html", data)
	}
}

// safeNext keeps post-login redirects on this site
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return RouteIndex
	}
	if u, err := url.Parse(next); err != nil || u.Path == RouteLogin {
		return RouteIndex
	}
	return next
}
