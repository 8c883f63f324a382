package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_AllFlags(t *testing.T) {
	resetFlags(t,
		"-a", "127.0.0.1:8080",
		"-realtime", "ws://127.0.0.1:8080/api/realtime",
		"-d", "notes.db",
		"-f", "/tmp/files",
		"-c", "/etc/notes.json",
		"-hash-key", "secret",
		"-device-id", "device-b",
		"-request-timeout", "15s",
		"-sync-interval", "2m",
		"-clock-tolerance", "90s",
		"-s3-bucket", "bucket",
		"-s3-region", "us-east-1",
		"-s3-endpoint", "http://minio:9000",
		"-outbox-max-attempts", "4",
	)

	cfg, err := ParseFlags()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Adapter.HTTPAddress)
	assert.Equal(t, "ws://127.0.0.1:8080/api/realtime", cfg.Adapter.RealtimeAddress)
	assert.Equal(t, 15*time.Second, cfg.Adapter.RequestTimeout)
	assert.Equal(t, "notes.db", cfg.Storage.DB.DSN)
	assert.Equal(t, "/tmp/files", cfg.Storage.Files.Dir)
	assert.Equal(t, "/etc/notes.json", cfg.JSONFilePath)
	assert.Equal(t, "secret", cfg.App.HashKey)
	assert.Equal(t, "device-b", cfg.App.DeviceID)
	assert.Equal(t, 2*time.Minute, cfg.Workers.SyncInterval)
	assert.Equal(t, 90*time.Second, cfg.Session.ClockTolerance)
	assert.Equal(t, "bucket", cfg.Storage.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.Equal(t, "http://minio:9000", cfg.Storage.S3.Endpoint)
	assert.Equal(t, 4, cfg.Outbox.MaxAttempts)
}

func TestParseFlags_ConfigAlias(t *testing.T) {
	resetFlags(t, "-config", "/etc/alias.json")

	cfg, err := ParseFlags()
	require.NoError(t, err)
	assert.Equal(t, "/etc/alias.json", cfg.JSONFilePath)
}

func TestParseFlags_NoFlags(t *testing.T) {
	resetFlags(t)

	cfg, err := ParseFlags()
	require.NoError(t, err)
	assert.Empty(t, cfg.Adapter.HTTPAddress)
	assert.Zero(t, cfg.Workers.SyncInterval)
}

func TestParseFlags_InvalidDuration(t *testing.T) {
	resetFlags(t, "-sync-interval", "soon")

	_, err := ParseFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing flags")
}

// ── NetAddress ────────────────────────────────────────────────────────────────

func TestNetAddress_Set(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    NetAddress
		wantErr bool
	}{
		{name: "localhost", input: "localhost:8080", want: NetAddress{Host: "localhost", Port: 8080}},
		{name: "ipv4", input: "10.0.0.1:443", want: NetAddress{Host: "10.0.0.1", Port: 443}},
		{name: "missing port", input: "localhost", wantErr: true},
		{name: "non-numeric port", input: "localhost:http", wantErr: true},
		{name: "zero port", input: "localhost:0", wantErr: true},
		{name: "hostname is not an IP", input: "example.com:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a NetAddress
			err := a.Set(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestNetAddress_String(t *testing.T) {
	assert.Empty(t, (&NetAddress{}).String())
	assert.Equal(t, "localhost:9000", (&NetAddress{Host: "localhost", Port: 9000}).String())
}
