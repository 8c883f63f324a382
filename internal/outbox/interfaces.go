// Package outbox delivers queued local mutations to the server.
//
// The queue itself lives in the outbox table; this package owns the
// delivery policy: insertion order, per-entry exponential backoff and
// parking of entries that exhaust their retry budget.
package outbox

import (
	"context"

	"github.com/MKhiriev/go-note-keeper/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/outbox_mock.go -package=mock

// Pusher delivers entries of one collection to the server.
type Pusher interface {
	Push(ctx context.Context, collection string, entries []models.OutboxEntry) (models.PushResponse, error)
}

type Outbox interface {
	// Enqueue queues item for push, replacing an older pending version.
	Enqueue(ctx context.Context, item models.Item) error
	// Flush attempts every due entry in insertion order.
	Flush(ctx context.Context, pusher Pusher) (FlushResult, error)

	// HasPending reports whether the item has an unacknowledged entry,
	// parked entries included.
	HasPending(ctx context.Context, collection, itemID string) (bool, error)
	// Drop forgets the entry of the item, if any.
	Drop(ctx context.Context, collection, itemID string) error

	Pending(ctx context.Context) ([]models.OutboxEntry, error)
	Parked(ctx context.Context) ([]models.OutboxEntry, error)
	// Discard deletes a parked entry for good.
	Discard(ctx context.Context, seq int64) error
	// Requeue makes a parked entry due again with a fresh retry budget.
	Requeue(ctx context.Context, seq int64) error
}
