package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// NetAddress holds structured network address data for host and port.
// It implements the flag.Value interface.
type NetAddress struct {
	Host string
	Port int
}

// ParseFlags parses the client flags from os.Args into flag.CommandLine.
//
// Flags:
//
//	-a sync server address in format [host]:[port]
//	-realtime websocket URL of the notification channel
//	-d database DSN (SQLite file)
//	-f attachment files directory
//	-c/-config json file path with configs
//	-hash-key push integrity hash key
//	-device-id replica identifier
//	-request-timeout request timeout (e.g., "30s", "1m")
//	-sync-interval automatic sync period (e.g., "5m")
//	-clock-tolerance accepted clock skew (e.g., "5m")
//	-s3-bucket, -s3-region, -s3-endpoint remote attachment store
//	-outbox-max-attempts push retry budget
func ParseFlags() (*StructuredConfig, error) {
	var serverAddress NetAddress
	var realtimeAddress string
	var databaseDSN string
	var filesDir string
	var jsonConfigPath string
	var hashKey string
	var deviceID string
	var requestTimeout time.Duration
	var syncInterval time.Duration
	var clockTolerance time.Duration
	var s3Bucket, s3Region, s3Endpoint string
	var outboxMaxAttempts int

	fs := flag.CommandLine
	fs.Var(&serverAddress, "a", "Sync server address host:port")
	fs.StringVar(&realtimeAddress, "realtime", "", "Realtime websocket URL")
	fs.StringVar(&databaseDSN, "d", "", "Database DSN")
	fs.StringVar(&filesDir, "f", "", "Attachment files directory")
	fs.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	fs.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	fs.StringVar(&hashKey, "hash-key", "", "Push integrity hash key")
	fs.StringVar(&deviceID, "device-id", "", "Device identifier")
	fs.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")
	fs.DurationVar(&syncInterval, "sync-interval", 0, "Automatic sync interval (e.g., 5m)")
	fs.DurationVar(&clockTolerance, "clock-tolerance", 0, "Accepted clock skew (e.g., 5m)")
	fs.StringVar(&s3Bucket, "s3-bucket", "", "Remote attachment bucket")
	fs.StringVar(&s3Region, "s3-region", "", "Remote attachment region")
	fs.StringVar(&s3Endpoint, "s3-endpoint", "", "Remote attachment endpoint")
	fs.IntVar(&outboxMaxAttempts, "outbox-max-attempts", 0, "Push attempts before an entry is parked")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("error parsing flags: %w", err)
	}

	return &StructuredConfig{
		App: App{
			DeviceID: deviceID,
			HashKey:  hashKey,
		},
		Storage: Storage{
			DB:    DB{DSN: databaseDSN},
			Files: Files{Dir: filesDir},
			S3: S3{
				Bucket:   s3Bucket,
				Region:   s3Region,
				Endpoint: s3Endpoint,
			},
		},
		Adapter: Adapter{
			HTTPAddress:     serverAddress.String(),
			RealtimeAddress: realtimeAddress,
			RequestTimeout:  requestTimeout,
		},
		Workers:      Workers{SyncInterval: syncInterval},
		Session:      Session{ClockTolerance: clockTolerance},
		Outbox:       Outbox{MaxAttempts: outboxMaxAttempts},
		JSONFilePath: jsonConfigPath,
	}, nil
}

// String returns a canonical host:port string for a NetAddress.
// If neither Host nor Port are set, it returns an empty string.
func (a *NetAddress) String() string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}

	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Set parses the input string of form host:port and populates the NetAddress.
// It validates the port range, checks IP correctness unless host is "localhost",
// and returns an error if the format or values are invalid.
func (a *NetAddress) Set(s string) error {
	hostAndPort := strings.Split(s, ":")
	if len(hostAndPort) != 2 {
		return errors.New("need address in a form `host:port`")
	}

	host := hostAndPort[0]
	port, err := strconv.Atoi(hostAndPort[1])
	if err != nil {
		return err
	}

	if port < 1 {
		return errors.New("port number is a positive integer")
	}

	if host != "localhost" {
		ip := net.ParseIP(hostAndPort[0])
		if ip == nil {
			return errors.New("incorrect IP-address provided")
		}
	}

	a.Host = host
	a.Port = port
	return nil
}
