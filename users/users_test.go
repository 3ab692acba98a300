package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-jobboard-client/users"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Run("student", func(t *testing.T) {
		role, ok := users.ParseRole("student")
		require.True(t, ok)
		require.Equal(t, users.RoleStudent, role)
	})

	t.Run("case and whitespace", func(t *testing.T) {
		role, ok := users.ParseRole(" Employer ")
		require.True(t, ok)
		require.Equal(t, users.RoleEmployer, role)
	})

	t.Run("unknown", func(t *testing.T) {
		_, ok := users.ParseRole("admin")
		require.False(t, ok)
	})
}

func TestUser_UnmarshalJSON(t *testing.T) {
	t.Run("full record with profile fields", func(t *testing.T) {
		var u users.User
		err := json.Unmarshal([]byte(`{
			"id": 42,
			"email": "ada@example.com",
			"role": "student",
			"full_name": "Ada Lovelace",
			"is_verified": true,
			"university": "UCL",
			"graduation_year": 2026
		}`), &u)
		require.NoError(t, err)

		require.Equal(t, "42", u.ID)
		require.Equal(t, "ada@example.com", u.Email)
		require.Equal(t, users.RoleStudent, u.Role)
		require.Equal(t, "Ada Lovelace", u.DisplayName)
		require.True(t, u.Verified)
		require.Equal(t, "UCL", u.Profile["university"])
		require.InDelta(t, 2026, u.Profile["graduation_year"], 0)
	})

	t.Run("string id and display name", func(t *testing.T) {
		var u users.User
		err := json.Unmarshal([]byte(`{"id":"b7e1","email":"hr@acme.io","role":"employer","display_name":"Acme HR"}`), &u)
		require.NoError(t, err)
		require.Equal(t, "b7e1", u.ID)
		require.Equal(t, "Acme HR", u.Name())
		require.True(t, u.HasRole(users.RoleEmployer))
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		var u users.User
		err := json.Unmarshal([]byte(`{"id":"1","email":"x@y.z","role":"admin"}`), &u)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown role")
	})

	t.Run("missing role rejected", func(t *testing.T) {
		var u users.User
		err := json.Unmarshal([]byte(`{"id":"1","email":"x@y.z"}`), &u)
		require.Error(t, err)
	})
}

func TestUser_MarshalJSONKeepsProfile(t *testing.T) {
	u := users.User{
		ID:      "7",
		Email:   "s@example.com",
		Role:    users.RoleStudent,
		Profile: map[string]any{"university": "MIT"},
	}

	data, err := json.Marshal(u)
	require.NoError(t, err)

	var back users.User
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, u.ID, back.ID)
	require.Equal(t, u.Role, back.Role)
	require.Equal(t, "MIT", back.Profile["university"])
}
