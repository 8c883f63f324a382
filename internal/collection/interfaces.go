// Package collection is the versioned CRUD layer over the item table.
//
// A [Collection] is generic over the payload type of one entity kind and
// implements upsert, remove, get and query once. The typed collections
// ([Notes], [Notebooks], [Tags], [Attachments]) wrap it to add payload
// validation and relationship bookkeeping. [Lookup] searches across notes
// and their bodies.
//
// Every mutation writes the item and its outbox entry in one transaction,
// so a sync started after Upsert or Remove returns always sees the change.
package collection

import (
	"context"
	"io"

	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/internal/validators"
	"github.com/MKhiriev/go-note-keeper/internal/vault"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/collection_mock.go -package=mock

// Clock issues the monotonic dateEdited readings.
type Clock interface {
	Now() int64
}

// IDGenerator issues ids for new items.
type IDGenerator interface {
	Generate() string
}

// BlobStore is the subset of the local file storage used by attachments.
type BlobStore interface {
	Write(ctx context.Context, r io.Reader) (hash string, size int64, err error)
	Read(ctx context.Context, hash string) (io.ReadCloser, error)
	Exists(ctx context.Context, hash string) (bool, error)
}

// Deps is shared by every collection of one database.
type Deps struct {
	Tx        store.Transactor
	Items     store.ItemRepository
	Outbox    store.OutboxRepository
	Vault     vault.Vault
	Validator validators.Validator
	Clock     Clock
	IDs       IDGenerator
	Bus       *events.Bus

	// DeviceID is stamped on every local write.
	DeviceID string
}
