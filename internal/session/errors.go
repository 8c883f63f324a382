package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrClockSkew = errors.New("local clock is out of sync")

// ClockSkewError reports the local reading and the reference it was
// checked against.
type ClockSkewError struct {
	Local     time.Time
	Reference time.Time
	// Source is "server" or "marker".
	Source string
}

func (e *ClockSkewError) Skew() time.Duration {
	return e.Local.Sub(e.Reference)
}

func (e *ClockSkewError) Error() string {
	return fmt.Sprintf("%s: local %s, %s %s (skew %s)",
		ErrClockSkew,
		e.Local.UTC().Format(time.RFC3339),
		e.Source,
		e.Reference.UTC().Format(time.RFC3339),
		e.Skew().Round(time.Second))
}

func (e *ClockSkewError) Unwrap() error {
	return ErrClockSkew
}
