package database

import "errors"

var (
	// ErrNotInitialized is returned by every operation before Init succeeded.
	ErrNotInitialized = errors.New("database is not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("database is already initialized")
	// ErrNotLoggedIn is returned by operations that need a session token.
	ErrNotLoggedIn = errors.New("not logged in")
	ErrEmptyToken  = errors.New("empty token")
)
