// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration container for the
// go-note-keeper client. It aggregates all sub-configurations and is
// populated by merging environment variables, command-line flags, an
// optional JSON file and built-in defaults.
//
// Struct tags:
//   - envPrefix - prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       - direct environment variable name for scalar fields.
type StructuredConfig struct {
	// App holds device identity and integrity settings.
	App App `envPrefix:"APP_"`

	// Storage holds the local database, local blob directory and the
	// optional S3-compatible remote blob store.
	Storage Storage `envPrefix:"STORAGE_"`

	// Adapter holds the sync server endpoints.
	Adapter Adapter `envPrefix:"ADAPTER_"`

	// Workers holds background job settings.
	Workers Workers `envPrefix:"WORKERS_"`

	// Session holds the startup clock check settings.
	Session Session `envPrefix:"SESSION_"`

	// Vault holds unlock throttling settings.
	Vault Vault `envPrefix:"VAULT_"`

	// Outbox holds the push retry budget.
	Outbox Outbox `envPrefix:"OUTBOX_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// App holds application-level settings.
type App struct {
	// DeviceID identifies this replica in conflict tie-breaks. When empty a
	// generated id is persisted on first start.
	// Env: APP_DEVICE_ID
	DeviceID string `env:"DEVICE_ID"`

	// HashKey is the HMAC key used for push payload integrity hashes.
	// Env: APP_HASH_KEY
	HashKey string `env:"HASH_KEY"`

	// Token is an optional session token used to log in on start when no
	// session is stored yet.
	// Env: APP_TOKEN
	Token string `env:"TOKEN"`

	// LogDir is the directory of the "logs" file. Empty means next to the
	// executable.
	// Env: APP_LOG_DIR
	LogDir string `env:"LOG_DIR"`
}

// Storage groups the configuration for all storage backends.
type Storage struct {
	DB    DB    `envPrefix:"DB_"`
	Files Files `envPrefix:"FILES_"`
	S3    S3    `envPrefix:"S3_"`
}

// DB holds the local SQLite settings.
type DB struct {
	// DSN is the SQLite database file path.
	// Env: STORAGE_DB_DSN
	DSN string `env:"DSN"`
}

// Files holds the local content-addressed blob directory.
type Files struct {
	// Dir is where attachment blobs are stored under their content hash.
	// Env: STORAGE_FILES_DIR
	Dir string `env:"DIR"`
}

// S3 configures the remote attachment store. An empty Bucket disables it.
type S3 struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION"`
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
}

// Adapter holds the sync server endpoints.
type Adapter struct {
	// HTTPAddress is the base address of the REST API (e.g. "localhost:8080"
	// or "https://sync.example.com").
	// Env: ADAPTER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// RealtimeAddress is the websocket URL of the notification channel.
	// Env: ADAPTER_REALTIME_ADDRESS
	RealtimeAddress string `env:"REALTIME_ADDRESS"`

	// RequestTimeout bounds every outbound request.
	// Env: ADAPTER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Workers holds configuration for background jobs.
type Workers struct {
	// SyncInterval is the period of the automatic sync job.
	// Env: WORKERS_SYNC_INTERVAL
	SyncInterval time.Duration `env:"SYNC_INTERVAL"`
}

// Session holds the startup clock check settings.
type Session struct {
	// ClockTolerance is the maximum accepted difference between the local
	// clock and the server clock.
	// Env: SESSION_CLOCK_TOLERANCE
	ClockTolerance time.Duration `env:"CLOCK_TOLERANCE"`
}

// Vault holds unlock throttling settings.
type Vault struct {
	// ThrottleAfter is the number of consecutive failed unlocks tolerated
	// before delays are enforced.
	// Env: VAULT_THROTTLE_AFTER
	ThrottleAfter int `env:"THROTTLE_AFTER"`

	// ThrottleBase is the first enforced delay; it doubles per extra failure.
	// Env: VAULT_THROTTLE_BASE
	ThrottleBase time.Duration `env:"THROTTLE_BASE"`

	// ThrottleMax caps the enforced delay.
	// Env: VAULT_THROTTLE_MAX
	ThrottleMax time.Duration `env:"THROTTLE_MAX"`
}

// Outbox holds the push retry budget.
type Outbox struct {
	// MaxAttempts is the number of failed deliveries after which an entry
	// is parked.
	// Env: OUTBOX_MAX_ATTEMPTS
	MaxAttempts int `env:"MAX_ATTEMPTS"`

	// BaseBackoff is the delay after the first failure.
	// Env: OUTBOX_BASE_BACKOFF
	BaseBackoff time.Duration `env:"BASE_BACKOFF"`

	// MaxBackoff caps the delay between attempts.
	// Env: OUTBOX_MAX_BACKOFF
	MaxBackoff time.Duration `env:"MAX_BACKOFF"`
}

// GetStructuredConfig loads and merges the configuration from all sources.
// For every field the first source providing a non-zero value wins:
//  1. Environment variables
//  2. Command-line flags
//  3. JSON file (path resolved from sources 1 and 2)
//  4. Built-in defaults
func GetStructuredConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		withDefaults().
		build()
}
