package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const defaultTokenType = "Bearer"

// Pair is the credential pair issued by the backend. Both tokens are present
// or the pair is treated as absent.
type Pair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Valid reports whether both tokens are present
func (p Pair) Valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Type returns the token type, defaulting to Bearer
func (p Pair) Type() string {
	if strings.TrimSpace(p.TokenType) == "" {
		return defaultTokenType
	}
	return p.TokenType
}

// OAuth2 converts the pair to an oauth2.Token, with Expiry set from the access
// token's exp claim when it can be read.
func (p Pair) OAuth2() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.Type(),
	}
	if exp, ok := ExpiryEstimate(p.AccessToken); ok {
		t.Expiry = exp
	}
	return t
}

// ExpiryEstimate reads the exp claim of a JWT access token without verifying
// its signature. The client never trusts it for authorization, only for
// scheduling and display. Opaque tokens report false.
func ExpiryEstimate(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// record is the persisted layout of a credential pair
type record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func toRecord(p Pair) record {
	return record{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: p.TokenType}
}

func (r record) pair() Pair {
	return Pair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken, TokenType: r.TokenType}
}
