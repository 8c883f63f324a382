package config

import (
	"fmt"
)

// ClientConfig is the validated runtime view of [StructuredConfig] handed
// to the client components.
type ClientConfig struct {
	App     App
	Storage Storage
	Adapter Adapter
	Workers Workers
	Session Session
	Vault   Vault
	Outbox  Outbox
}

// RemoteFilesEnabled reports whether an S3-compatible attachment store is configured.
func (c ClientConfig) RemoteFilesEnabled() bool {
	return c.Storage.S3.Bucket != ""
}

// GetClientConfig loads the merged configuration via [GetStructuredConfig]
// and validates the client view.
func GetClientConfig() (*ClientConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	return newClientConfig(cfg)
}

func newClientConfig(cfg *StructuredConfig) (*ClientConfig, error) {
	clientCfg := &ClientConfig{
		App:     cfg.App,
		Storage: cfg.Storage,
		Adapter: cfg.Adapter,
		Workers: cfg.Workers,
		Session: cfg.Session,
		Vault:   cfg.Vault,
		Outbox:  cfg.Outbox,
	}

	return clientCfg, clientCfg.validate()
}
