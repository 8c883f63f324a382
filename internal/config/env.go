// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// parseEnv reads a [StructuredConfig] from the environment using the `env`
// and `envPrefix` tags. S3 credentials come in pairs; a lone access key or
// secret key is rejected.
func parseEnv() (*StructuredConfig, error) {
	cfg, err := env.ParseAs[StructuredConfig]()
	if err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}

	if s3 := cfg.Storage.S3; (s3.AccessKey == "") != (s3.SecretKey == "") {
		return nil, fmt.Errorf("%w: S3 access key and secret key must be set together", ErrInvalidStorageConfigs)
	}

	return &cfg, nil
}
