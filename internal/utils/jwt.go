package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MKhiriev/go-note-keeper/models"
	"github.com/golang-jwt/jwt/v5"
)

// ParseToken reads the claims of a session token without verifying its
// signature. The client holds no signing key; the server is the only party
// that validates tokens.
func ParseToken(tokenString string) (models.Token, error) {
	var token models.Token
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &token.RegisteredClaims); err != nil {
		return models.Token{}, fmt.Errorf("error parsing token: %w", err)
	}

	token.SignedString = tokenString
	return token, nil
}

// ParseBearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func ParseBearerToken(authorizationHeader string) (string, error) {
	parts := strings.Split(strings.TrimSpace(authorizationHeader), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}
