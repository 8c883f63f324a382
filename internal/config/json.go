package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StructuredJSONConfig is the on-disk JSON layout of [StructuredConfig].
type StructuredJSONConfig struct {
	App struct {
		DeviceID string `json:"device_id"`
		HashKey  string `json:"hash_key"`
		Token    string `json:"token"`
		LogDir   string `json:"log_dir"`
	} `json:"app,omitempty"`

	Storage struct {
		DB struct {
			DSN string `json:"dsn"`
		} `json:"db,omitempty"`

		Files struct {
			Dir string `json:"dir"`
		} `json:"files,omitempty"`

		S3 struct {
			Bucket    string `json:"bucket"`
			Region    string `json:"region"`
			Endpoint  string `json:"endpoint"`
			AccessKey string `json:"access_key"`
			SecretKey string `json:"secret_key"`
		} `json:"s3,omitempty"`
	} `json:"storage,omitempty"`

	Adapter struct {
		HTTPAddress     string   `json:"http_address"`
		RealtimeAddress string   `json:"realtime_address"`
		RequestTimeout  Duration `json:"request_timeout"`
	} `json:"adapter,omitempty"`

	Workers struct {
		SyncInterval Duration `json:"sync_interval"`
	} `json:"workers,omitempty"`

	Session struct {
		ClockTolerance Duration `json:"clock_tolerance"`
	} `json:"session,omitempty"`

	Vault struct {
		ThrottleAfter int      `json:"throttle_after"`
		ThrottleBase  Duration `json:"throttle_base"`
		ThrottleMax   Duration `json:"throttle_max"`
	} `json:"vault,omitempty"`

	Outbox struct {
		MaxAttempts int      `json:"max_attempts"`
		BaseBackoff Duration `json:"base_backoff"`
		MaxBackoff  Duration `json:"max_backoff"`
	} `json:"outbox,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		App: App{
			DeviceID: jsonCfg.App.DeviceID,
			HashKey:  jsonCfg.App.HashKey,
			Token:    jsonCfg.App.Token,
			LogDir:   jsonCfg.App.LogDir,
		},
		Storage: Storage{
			DB:    DB{DSN: jsonCfg.Storage.DB.DSN},
			Files: Files{Dir: jsonCfg.Storage.Files.Dir},
			S3: S3{
				Bucket:    jsonCfg.Storage.S3.Bucket,
				Region:    jsonCfg.Storage.S3.Region,
				Endpoint:  jsonCfg.Storage.S3.Endpoint,
				AccessKey: jsonCfg.Storage.S3.AccessKey,
				SecretKey: jsonCfg.Storage.S3.SecretKey,
			},
		},
		Adapter: Adapter{
			HTTPAddress:     jsonCfg.Adapter.HTTPAddress,
			RealtimeAddress: jsonCfg.Adapter.RealtimeAddress,
			RequestTimeout:  time.Duration(jsonCfg.Adapter.RequestTimeout),
		},
		Workers: Workers{SyncInterval: time.Duration(jsonCfg.Workers.SyncInterval)},
		Session: Session{ClockTolerance: time.Duration(jsonCfg.Session.ClockTolerance)},
		Vault: Vault{
			ThrottleAfter: jsonCfg.Vault.ThrottleAfter,
			ThrottleBase:  time.Duration(jsonCfg.Vault.ThrottleBase),
			ThrottleMax:   time.Duration(jsonCfg.Vault.ThrottleMax),
		},
		Outbox: Outbox{
			MaxAttempts: jsonCfg.Outbox.MaxAttempts,
			BaseBackoff: time.Duration(jsonCfg.Outbox.BaseBackoff),
			MaxBackoff:  time.Duration(jsonCfg.Outbox.MaxBackoff),
		},
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling from strings like "1h", "30s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
