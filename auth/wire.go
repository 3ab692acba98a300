package auth

import (
	"github.com/jrsteele09/go-jobboard-client/token"
	"github.com/jrsteele09/go-jobboard-client/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// tokenResponse is the credential part of the login and refresh responses
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (t tokenResponse) pair() token.Pair {
	return token.Pair{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, TokenType: t.TokenType}
}

type loginResponse struct {
	tokenResponse
	User users.User `json:"user"`
}

type forgotPasswordResponse struct {
	EmailSent *bool `json:"email_sent"`
}

type resetPasswordResponse struct {
	Success *bool `json:"success"`
}
