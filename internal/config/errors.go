package config

import "errors"

// Validation errors returned by [ClientConfig.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidAdapterConfigs indicates a missing server address or request timeout.
	ErrInvalidAdapterConfigs = errors.New("invalid adapter configuration")
	// ErrInvalidStorageConfigs indicates an empty or in-memory DSN, a missing
	// files directory or an S3 bucket without region.
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")
	// ErrInvalidAppConfigs indicates a missing hash key.
	ErrInvalidAppConfigs = errors.New("invalid app configuration")
	// ErrInvalidWorkerConfigs indicates a non-positive sync interval.
	ErrInvalidWorkerConfigs = errors.New("invalid worker configuration")
	// ErrInvalidSessionConfigs indicates a non-positive clock tolerance.
	ErrInvalidSessionConfigs = errors.New("invalid session configuration")
	// ErrInvalidVaultConfigs indicates inconsistent unlock throttling settings.
	ErrInvalidVaultConfigs = errors.New("invalid vault configuration")
	// ErrInvalidOutboxConfigs indicates an inconsistent retry budget.
	ErrInvalidOutboxConfigs = errors.New("invalid outbox configuration")
)
