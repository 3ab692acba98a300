package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-jobboard-client/guard"
)

func (s *Server) IndexHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.render(w, http.StatusOK, "index.html", s.pageData(s.appName))
	}
}

func (s *Server) EmployersHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.render(w, http.StatusOK, "employers.html", s.pageData("For employers"))
	}
}

// LoadingHandler is shown by guarded routes until the session is known
func (s *Server) LoadingHandler(p pages) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.render(w, http.StatusOK, "loading.html", s.pageData("Loading"))
	})
}

func (s *Server) NotFoundHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.render(w, http.StatusNotFound, "not_found.html", s.pageData("Page not found"))
	}
}

func (s *Server) ProfileHandler(p pages) http.HandlerFunc {
	return s.guardedPage(p, "Your profile")
}

func (s *Server) SavedJobsHandler(p pages) http.HandlerFunc {
	return s.guardedPage(p, "Saved jobs")
}

func (s *Server) EmployerDashboardHandler(p pages) http.HandlerFunc {
	return s.guardedPage(p, "Employer dashboard")
}

func (s *Server) NewJobHandler(p pages) http.HandlerFunc {
	return s.guardedPage(p, "Post a job")
}

// guardedPage renders the page under the state the guard admitted the request with
func (s *Server) guardedPage(p pages, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageData(title)
		if state, ok := guard.StateFrom(r.Context()); ok {
			data.Auth = state.View()
			data.EmployerLink = guard.EmployerLink(state)
		}
		p.render(w, http.StatusOK, "page.html", data)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:  "ok",
			Session: s.sessions.Snapshot().Kind.String(),
		})
	}
}
