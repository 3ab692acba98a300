package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy for the session controller
var (
	// Login-time errors, terminal and shown to the user
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("account is not verified")
	ErrAccountLocked      = errors.New("account is locked")

	// Token errors
	ErrUnauthorized    = errors.New("unauthorized")                   // access token invalid or expired, refresh eligible
	ErrRefreshRejected = errors.New("refresh rejected")               // refresh token expired or revoked, forces logout
	ErrTokenRefused    = errors.New("refreshed access token refused") // still unauthorized after a refresh, forces logout

	// Transport errors, eligible for bounded retry
	ErrTransientTransport = errors.New("transient transport error")

	// Structured field-level errors from the backend
	ErrValidation = errors.New("validation failed")

	// Session state errors
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrRoleChanged          = errors.New("role changed")
	ErrInvalidTransition    = errors.New("invalid session state transition")
)

// FieldError is one field/message pair reported by the backend
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level errors so each can be rendered against its form field
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Messages returns the messages keyed by field name. Messages without a field are keyed by "".
func (v *ValidationError) Messages() map[string]string {
	out := make(map[string]string, len(v.Fields))
	for _, f := range v.Fields {
		if existing, ok := out[f.Field]; ok {
			out[f.Field] = existing + "; " + f.Message
			continue
		}
		out[f.Field] = f.Message
	}
	return out
}

// APIError is a terminal user-facing backend error that does not fit a more specific kind
type APIError struct {
	Status  int
	Message string
}

func (a *APIError) Error() string {
	return fmt.Sprintf("backend error (%d): %s", a.Status, a.Message)
}

// UserMessage maps an error to the text shown to the end user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		if msg, ok := validation.Messages()[""]; ok {
			return msg
		}
		return "Please correct the highlighted fields."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect email or password."
	case errors.Is(err, ErrNotVerified):
		return "Please verify your email address before signing in."
	case errors.Is(err, ErrAccountLocked):
		return "Your account is locked. Please contact support."
	case errors.Is(err, ErrRefreshRejected), errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrRoleChanged):
		return "Your account role has changed. Please sign in again."
	case errors.Is(err, ErrTransientTransport):
		return "We could not reach the server. Please try again."
	case errors.Is(err, ErrAlreadyAuthenticated):
		return "You are already signed in."
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in to continue."
	default:
		return "Something went wrong. Please try again."
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
