package config

import "time"

// defaultConfig holds the values used when no source sets a field.
func defaultConfig() *StructuredConfig {
	return &StructuredConfig{
		Storage: Storage{
			DB:    DB{DSN: "notes.db"},
			Files: Files{Dir: "files"},
		},
		Adapter: Adapter{
			RequestTimeout: 30 * time.Second,
		},
		Workers: Workers{
			SyncInterval: 5 * time.Minute,
		},
		Session: Session{
			ClockTolerance: 5 * time.Minute,
		},
		Vault: Vault{
			ThrottleAfter: 3,
			ThrottleBase:  time.Second,
			ThrottleMax:   5 * time.Minute,
		},
		Outbox: Outbox{
			MaxAttempts: 10,
			BaseBackoff: 2 * time.Second,
			MaxBackoff:  10 * time.Minute,
		},
	}
}
