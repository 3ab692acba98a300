package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-jobboard-client/guard"
	"github.com/jrsteele09/go-jobboard-client/sessions"
)

const contentTypeHTML = "text/html; charset=utf-8"

//go:embed templates/*
var templateFiles embed.FS

var pageNames = []string{
	"index.html",
	"employers.html",
	"login.html",
	"access_denied.html",
	"forgot_password.html",
	"reset_password.html",
	"loading.html",
	"page.html",
	"not_found.html",
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// pages holds each page parsed together with the shared layout
type pages map[string]*template.Template

func parsePages() (pages, error) {
	out := make(pages, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).ParseFS(TemplateFilesFS(), "layout.html", name)
		if err != nil {
			return nil, err
		}
		out[name] = tmpl
	}
	return out, nil
}

// PageData is what every page template receives
type PageData struct {
	AppName      string
	Title        string
	Auth         sessions.AuthView
	EmployerLink guard.NavLink
	Notice       string
	Error        string
	Message      string
	Fields       map[string]string
	Email        string
	Next         string
	Token        string
	Denied       *DeniedData
}

// DeniedData explains why a role protected page was refused
type DeniedData struct {
	From         string
	RequiredRole string
	CurrentRole  string
}

func (s *Server) pageData(title string) PageData {
	state := s.sessions.Snapshot()
	return PageData{
		AppName:      s.appName,
		Title:        title,
		Auth:         state.View(),
		EmployerLink: guard.EmployerLink(state),
	}
}

func (p pages) render(w http.ResponseWriter, status int, name string, data PageData) {
	tmpl, ok := p[name]
	if !ok {
		log.Error().Str("template", name).Msg("Unknown template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
