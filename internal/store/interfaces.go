package store

import (
	"context"
	"io"

	"github.com/MKhiriev/go-note-keeper/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/store_mock.go -package=mock

// Transactor runs fn so that every repository call made with the context
// passed to fn is part of one atomic unit.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// KeyValueStorage persists small JSON-encoded records under string keys
// (session marker, cursors, schema version, vault header, token).
type KeyValueStorage interface {
	// Read decodes the value stored under key into dst. It reports false
	// when the key is absent.
	Read(ctx context.Context, key string, dst any) (bool, error)
	Write(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// ItemFilter selects a page of items for [ItemRepository.List].
// Pages are ordered by id; AfterID is the last id of the previous page.
type ItemFilter struct {
	Type           models.ItemType
	AfterID        string
	Limit          uint64
	IncludeDeleted bool
}

// ItemRepository stores the base records of every collection.
type ItemRepository interface {
	// Get returns the item with id, tombstones included.
	Get(ctx context.Context, id string) (models.Item, error)
	// Put inserts or replaces the item.
	Put(ctx context.Context, item models.Item) error
	List(ctx context.Context, filter ItemFilter) ([]models.Item, error)
	// MarkRemote flags the item as acknowledged if it is still at dateEdited.
	MarkRemote(ctx context.Context, id string, dateEdited int64) error
	// PurgeTombstones erases deleted items of type t the server has confirmed.
	PurgeTombstones(ctx context.Context, t models.ItemType) (int64, error)
	Clear(ctx context.Context) error
}

// OutboxRepository is the durable table behind the outbox. At most one
// entry exists per (collection, item id); re-enqueueing replaces the
// payload and keeps the queue position.
type OutboxRepository interface {
	Enqueue(ctx context.Context, entry models.OutboxEntry) error
	// Due returns unparked entries whose next attempt is not after now,
	// in insertion order.
	Due(ctx context.Context, now int64, limit uint64) ([]models.OutboxEntry, error)
	Get(ctx context.Context, collection, itemID string) (models.OutboxEntry, error)
	List(ctx context.Context, parked bool) ([]models.OutboxEntry, error)
	// Ack removes the entry if its payload is still at dateEdited.
	Ack(ctx context.Context, seq int64, dateEdited int64) error
	// Fail records a failed delivery of entry unless it was replaced meanwhile.
	Fail(ctx context.Context, entry models.OutboxEntry) error
	Delete(ctx context.Context, collection, itemID string) error
	Remove(ctx context.Context, seq int64) error
	Requeue(ctx context.Context, seq int64, now int64) error
	Clear(ctx context.Context) error
}

// FileStorage is the local content-addressed blob store. Blobs are keyed
// by the hex SHA-256 of their bytes.
type FileStorage interface {
	Write(ctx context.Context, r io.Reader) (hash string, size int64, err error)
	Read(ctx context.Context, hash string) (io.ReadCloser, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
	Clear(ctx context.Context) error
}

// RemoteFileStorage is the server-side copy of attachment blobs.
type RemoteFileStorage interface {
	Upload(ctx context.Context, hash string, r io.Reader, size int64) error
	Download(ctx context.Context, hash string) (io.ReadCloser, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
}
