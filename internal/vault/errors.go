package vault

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrVaultExists      = errors.New("vault already exists")
	ErrNoVault          = errors.New("vault has not been created")
	ErrEmptyPassphrase  = errors.New("passphrase is empty")
	ErrWrongPassphrase  = errors.New("wrong passphrase")
	ErrUnlockInProgress = errors.New("vault unlock already in progress")
	ErrThrottled        = errors.New("too many failed unlock attempts")
	ErrCorruptedItem    = errors.New("locked item payload is corrupted")
)

// ThrottledError tells the caller how long to wait before the next
// unlock attempt is accepted.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrThrottled, e.RetryAfter.Round(time.Millisecond))
}

func (e *ThrottledError) Unwrap() error {
	return ErrThrottled
}
