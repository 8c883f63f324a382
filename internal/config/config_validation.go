// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import "strings"

// validate checks that the client configuration is complete. Each group
// maps to its own sentinel error so main can report which group is wrong.
func (cfg *ClientConfig) validate() error {
	if cfg.Storage.DB.DSN == "" || strings.Contains(cfg.Storage.DB.DSN, "memory") || cfg.Storage.Files.Dir == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Storage.S3.Bucket != "" && cfg.Storage.S3.Region == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Adapter.HTTPAddress == "" || cfg.Adapter.RequestTimeout <= 0 {
		return ErrInvalidAdapterConfigs
	}

	if cfg.Workers.SyncInterval <= 0 {
		return ErrInvalidWorkerConfigs
	}

	if cfg.App.HashKey == "" {
		return ErrInvalidAppConfigs
	}

	if cfg.Session.ClockTolerance <= 0 {
		return ErrInvalidSessionConfigs
	}

	if cfg.Vault.ThrottleAfter < 1 || cfg.Vault.ThrottleBase <= 0 || cfg.Vault.ThrottleMax < cfg.Vault.ThrottleBase {
		return ErrInvalidVaultConfigs
	}

	if cfg.Outbox.MaxAttempts < 1 || cfg.Outbox.BaseBackoff <= 0 || cfg.Outbox.MaxBackoff < cfg.Outbox.BaseBackoff {
		return ErrInvalidOutboxConfigs
	}

	return nil
}
