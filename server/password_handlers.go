package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
)

const (
	resetRequestedMessage = "If an account exists for that email, a reset link is on its way."
	resetCompleteNotice   = "Your password has been reset. Please sign in."
	minPasswordLength     = 8
)

func (s *Server) ForgotPasswordGetHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageData("Forgot password")
		data.Email = r.URL.Query().Get("email")
		p.render(w, http.StatusOK, "forgot_password.html", data)
	}
}

func (s *Server) ForgotPasswordPostHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		data := s.pageData("Forgot password")
		data.Email = strings.TrimSpace(r.PostForm.Get("email"))
		if data.Email == "" {
			data.Fields = map[string]string{"email": "Email is required."}
			p.render(w, http.StatusUnprocessableEntity, "forgot_password.html", data)
			return
		}

		sent, err := s.password.RequestPasswordReset(r.Context(), data.Email)
		if err != nil {
			status := renderFormError(&data, err)
			p.render(w, status, "forgot_password.html", data)
			return
		}

		log.Debug().Bool("email_sent", sent).Msg("Password reset requested")
		data.Message = resetRequestedMessage
		p.render(w, http.StatusOK, "forgot_password.html", data)
	}
}

func (s *Server) ResetPasswordGetHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageData("Reset password")
		data.Token = r.URL.Query().Get("token")
		if data.Token == "" {
			data.Error = "This reset link is invalid. Please request a new one."
			p.render(w, http.StatusBadRequest, "reset_password.html", data)
			return
		}
		p.render(w, http.StatusOK, "reset_password.html", data)
	}
}

func (s *Server) ResetPasswordPostHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		data := s.pageData("Reset password")
		data.Token = r.PostForm.Get("token")
		newPassword := r.PostForm.Get("new_password")
		confirm := r.PostForm.Get("confirm_password")

		fields := map[string]string{}
		if len(newPassword) < minPasswordLength {
			fields["new_password"] = "Password must be at least 8 characters."
		}
		if newPassword != confirm {
			fields["confirm_password"] = "Passwords do not match."
		}
		if len(fields) > 0 {
			data.Fields = fields
			p.render(w, http.StatusUnprocessableEntity, "reset_password.html", data)
			return
		}

		ok, err := s.password.ResetPassword(r.Context(), data.Token, newPassword)
		if err != nil {
			status := renderFormError(&data, err)
			p.render(w, status, "reset_password.html", data)
			return
		}
		if !ok {
			data.Error = "Your password could not be reset. Please request a new link."
			p.render(w, http.StatusBadRequest, "reset_password.html", data)
			return
		}

		q := url.Values{}
		q.Set("notice", resetCompleteNotice)
		http.Redirect(w, r, RouteLogin+"?"+q.Encode(), http.StatusSeeOther)
	}
}

// renderFormError puts err on the form and returns the status to render with
func renderFormError(data *PageData, err error) int {
	var validation *autherrors.ValidationError
	var apiErr *autherrors.APIError
	switch {
	case autherrors.As(err, &validation):
		data.Fields = validation.Messages()
		data.Error = data.Fields[""]
		return http.StatusUnprocessableEntity
	case autherrors.Is(err, autherrors.ErrTransientTransport):
		data.Error = autherrors.UserMessage(err)
		return http.StatusServiceUnavailable
	case autherrors.As(err, &apiErr):
		data.Error = autherrors.UserMessage(err)
		return http.StatusBadRequest
	default:
		log.Err(err).Msg("Unexpected password reset failure")
		data.Error = autherrors.UserMessage(err)
		return http.StatusBadGateway
	}
}
