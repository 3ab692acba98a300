package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
	"github.com/jrsteele09/go-jobboard-client/internal/utils"
)

// errorPayload covers the error shapes the backend produces:
// {"detail": "text"}, {"message": "text"} and
// {"detail": [{"loc": ["body", "email"], "msg": "text"}]}
type errorPayload struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseErrorBody extracts a user-facing message and any field errors
func parseErrorBody(status int, body []byte) (string, []autherrors.FieldError) {
	fallback := http.StatusText(status)

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback, nil
	}

	if len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil && text != "" {
			return text, nil
		}

		var items []validationItem
		if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
			fields := make([]autherrors.FieldError, 0, len(items))
			for _, item := range items {
				fields = append(fields, autherrors.FieldError{Field: fieldName(item.Loc), Message: item.Msg})
			}
			return fields[0].Message, fields
		}

		var nested errorPayload
		if err := json.Unmarshal(payload.Detail, &nested); err == nil && nested.Message != "" {
			return nested.Message, nil
		}
	}

	if payload.Message != "" {
		return payload.Message, nil
	}
	return fallback, nil
}

// fieldName picks the last string element of a location path, skipping the
// "body"/"query" prefixes
func fieldName(loc []any) string {
	names := utils.ToStringSlice(loc)
	for i := len(names) - 1; i >= 0; i-- {
		switch names[i] {
		case "body", "query", "path", "header":
			continue
		}
		return names[i]
	}
	return ""
}

func isTransientStatus(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests
}

// commonError maps the statuses every endpoint shares
func commonError(resp response) error {
	message, fields := parseErrorBody(resp.status, resp.body)

	switch {
	case isTransientStatus(resp.status):
		return autherrors.Wrapf(autherrors.ErrTransientTransport, "%s returned %d", resp.path, resp.status)
	case resp.status == http.StatusUnprocessableEntity:
		if len(fields) == 0 {
			fields = []autherrors.FieldError{{Message: message}}
		}
		return &autherrors.ValidationError{Fields: fields}
	case resp.status == http.StatusUnauthorized:
		return autherrors.Wrapf(autherrors.ErrUnauthorized, "%s", resp.path)
	default:
		return &autherrors.APIError{Status: resp.status, Message: message}
	}
}

func loginError(resp response) error {
	message, _ := parseErrorBody(resp.status, resp.body)
	lower := strings.ToLower(message)

	switch resp.status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", autherrors.ErrInvalidCredentials, message)
	case http.StatusLocked:
		return fmt.Errorf("%w: %s", autherrors.ErrAccountLocked, message)
	case http.StatusForbidden, http.StatusBadRequest:
		switch {
		case strings.Contains(lower, "verif"):
			return fmt.Errorf("%w: %s", autherrors.ErrNotVerified, message)
		case strings.Contains(lower, "lock"):
			return fmt.Errorf("%w: %s", autherrors.ErrAccountLocked, message)
		case strings.Contains(lower, "incorrect") || strings.Contains(lower, "invalid credentials"):
			return fmt.Errorf("%w: %s", autherrors.ErrInvalidCredentials, message)
		}
	}
	return commonError(resp)
}

// refreshError treats every non-transient failure as an authoritative rejection
func refreshError(resp response) error {
	if isTransientStatus(resp.status) {
		return commonError(resp)
	}
	message, _ := parseErrorBody(resp.status, resp.body)
	return fmt.Errorf("%w: %s", autherrors.ErrRefreshRejected, message)
}

func currentUserError(resp response) error {
	if resp.status == http.StatusUnauthorized {
		return autherrors.Wrapf(autherrors.ErrUnauthorized, "%s", resp.path)
	}
	return commonError(resp)
}
