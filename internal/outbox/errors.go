package outbox

import "errors"

var (
	// ErrIncompleteFlush is returned when some attempted entry was not acknowledged.
	ErrIncompleteFlush   = errors.New("outbox flush incomplete")
	ErrNoAcknowledgement = errors.New("server did not acknowledge entry")
)
