package users

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role is the closed set of account roles on the job board
type Role string

const (
	RoleStudent  Role = "student"  // Job seeker, can save jobs and apply
	RoleEmployer Role = "employer" // Can post and manage jobs
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleEmployer:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

func (r *Role) UnmarshalText(text []byte) error {
	role, ok := ParseRole(string(text))
	if !ok {
		return fmt.Errorf("unknown role %q", string(text))
	}
	*r = role
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

// User is the account record returned by the backend. It is always refetched,
// never trusted from storage.
type User struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Role        Role           `json:"role"`
	DisplayName string         `json:"display_name,omitempty"`
	Verified    bool           `json:"is_verified"`
	Profile     map[string]any `json:"-"` // Remaining profile fields, passed through untouched
}

var knownFields = map[string]struct{}{
	"id": {}, "email": {}, "role": {}, "display_name": {}, "full_name": {}, "is_verified": {},
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded User
	if v, ok := raw["id"]; ok {
		id, err := decodeID(v)
		if err != nil {
			return fmt.Errorf("user id: %w", err)
		}
		decoded.ID = id
	}
	if err := decodeField(raw, "email", &decoded.Email); err != nil {
		return err
	}
	if err := decodeField(raw, "role", &decoded.Role); err != nil {
		return err
	}
	if err := decodeField(raw, "display_name", &decoded.DisplayName); err != nil {
		return err
	}
	if decoded.DisplayName == "" {
		if err := decodeField(raw, "full_name", &decoded.DisplayName); err != nil {
			return err
		}
	}
	if err := decodeField(raw, "is_verified", &decoded.Verified); err != nil {
		return err
	}

	for k, v := range raw {
		if _, known := knownFields[k]; known {
			continue
		}
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("user field %s: %w", k, err)
		}
		if decoded.Profile == nil {
			decoded.Profile = make(map[string]any)
		}
		decoded.Profile[k] = value
	}

	if !decoded.Role.IsValid() {
		return fmt.Errorf("unknown role %q", decoded.Role)
	}

	*u = decoded
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Profile)+5)
	for k, v := range u.Profile {
		out[k] = v
	}
	out["id"] = u.ID
	out["email"] = u.Email
	out["role"] = u.Role
	out["is_verified"] = u.Verified
	if u.DisplayName != "" {
		out["display_name"] = u.DisplayName
	}
	return json.Marshal(out)
}

// Name returns the best label for the user
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

func (u User) HasRole(role Role) bool {
	return u.Role == role
}

func decodeField(raw map[string]json.RawMessage, key string, target any) error {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, target); err != nil {
		return fmt.Errorf("user field %s: %w", key, err)
	}
	return nil
}

func decodeID(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", err
	}
	return n.String(), nil
}
