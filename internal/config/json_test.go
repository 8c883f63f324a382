package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_AllFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"app": {"device_id": "dev", "hash_key": "k", "token": "t", "log_dir": "/logs"},
		"storage": {
			"db": {"dsn": "notes.db"},
			"files": {"dir": "files"},
			"s3": {"bucket": "b", "region": "r", "endpoint": "e", "access_key": "ak", "secret_key": "sk"}
		},
		"adapter": {"http_address": "localhost:8080", "realtime_address": "ws://x", "request_timeout": "10s"},
		"workers": {"sync_interval": "3m"},
		"session": {"clock_tolerance": "1m"},
		"vault": {"throttle_after": 2, "throttle_base": "500ms", "throttle_max": "1m"},
		"outbox": {"max_attempts": 3, "base_backoff": "1s", "max_backoff": "30s"}
	}`), 0o600))

	cfg, err := parseJSON(path)
	require.NoError(t, err)

	assert.Equal(t, App{DeviceID: "dev", HashKey: "k", Token: "t", LogDir: "/logs"}, cfg.App)
	assert.Equal(t, "notes.db", cfg.Storage.DB.DSN)
	assert.Equal(t, "files", cfg.Storage.Files.Dir)
	assert.Equal(t, S3{Bucket: "b", Region: "r", Endpoint: "e", AccessKey: "ak", SecretKey: "sk"}, cfg.Storage.S3)
	assert.Equal(t, Adapter{HTTPAddress: "localhost:8080", RealtimeAddress: "ws://x", RequestTimeout: 10 * time.Second}, cfg.Adapter)
	assert.Equal(t, 3*time.Minute, cfg.Workers.SyncInterval)
	assert.Equal(t, time.Minute, cfg.Session.ClockTolerance)
	assert.Equal(t, Vault{ThrottleAfter: 2, ThrottleBase: 500 * time.Millisecond, ThrottleMax: time.Minute}, cfg.Vault)
	assert.Equal(t, Outbox{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}, cfg.Outbox)
}

func TestParseJSON_FileNotFound(t *testing.T) {
	_, err := parseJSON(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading a json file")
}

func TestParseJSON_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"app": `), 0o600))

	_, err := parseJSON(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error decoding json configs")
}

// ── Duration ──────────────────────────────────────────────────────────────────

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"1h30m"`, want: 90 * time.Minute},
		{name: "nanoseconds", input: `1000000000`, want: time.Second},
		{name: "bad string", input: `"later"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, time.Duration(d))
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(b))
}
