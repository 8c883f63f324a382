// Package session guards startup against an unreliable local clock.
package session

import (
	"context"
	"time"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/session_mock.go -package=mock

// TimeSource is the trusted clock compared against the local one.
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

type Session interface {
	// Validate fails with *ClockSkewError when the local clock is outside
	// tolerance of the time source, or earlier than the last recorded start.
	Validate(ctx context.Context) error
	// Set records the current local time as the last validated start.
	Set(ctx context.Context) error
}
