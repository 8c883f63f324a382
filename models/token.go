package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is the parsed, unverified view of the session JWT held by the client.
// The client never verifies the signature; it only reads the expiry to
// decide when a refresh is due.
type Token struct {
	jwt.RegisteredClaims

	// SignedString is the compact form sent in the Authorization header.
	SignedString string `json:"-"`
}

// ExpiresWithin reports whether the token expires before now+d.
// Tokens without an exp claim never expire.
func (t Token) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return t.ExpiresAt.Time.Before(now.Add(d))
}

// String returns the compact JWS serialization of the token.
func (t Token) String() string {
	return t.SignedString
}
