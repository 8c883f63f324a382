package models

import "errors"

// Errors shared across package boundaries.
var (
	// ErrNetwork marks retryable transport failures.
	ErrNetwork = errors.New("network error")

	// ErrUnauthorized is the auth error: the server rejected the session token.
	ErrUnauthorized = errors.New("client unauthorized")

	// ErrVaultLocked is returned when a locked item is accessed while the vault is locked.
	ErrVaultLocked = errors.New("vault is locked")

	// ErrMalformedMessage is returned for realtime envelopes that cannot be parsed.
	ErrMalformedMessage = errors.New("malformed realtime message")
)
