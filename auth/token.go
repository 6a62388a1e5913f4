package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryLeeway avoids issuing a call with a token about to die in flight.
const expiryLeeway = 10 * time.Second

// Expired reports whether the access token's exp claim is in the past.
// The signature is NOT verified here: the server remains the authority,
// this is only a local pre-check to skip a doomed round trip. Tokens
// that don't parse are treated as live and left to the server to judge.
func Expired(tokenString string) bool {
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(expiryLeeway).After(claims.ExpiresAt.Time)
}
