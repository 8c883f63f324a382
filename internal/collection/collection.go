// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/internal/validators"
	"github.com/MKhiriev/go-note-keeper/models"
)

const defaultPageSize = 100

// Document is an item together with its decoded payload.
type Document[P any] struct {
	models.Item
	Payload P
}

// Collection is the versioned store of one entity kind.
type Collection[P any] struct {
	itemType models.ItemType
	deps     Deps
}

// New returns the collection of items of type t with payload P.
func New[P any](t models.ItemType, deps Deps) *Collection[P] {
	return &Collection[P]{itemType: t, deps: deps}
}

func (c *Collection[P]) Type() models.ItemType {
	return c.itemType
}

func (c *Collection[P]) Name() string {
	return c.itemType.Collection()
}

// QueryOption tunes Get and Query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	includeDeleted bool
	pageSize       uint64
}

// WithDeleted includes tombstones.
func WithDeleted() QueryOption {
	return func(o *queryOptions) { o.includeDeleted = true }
}

// WithPageSize sets how many rows Query reads from storage at a time.
func WithPageSize(n uint64) QueryOption {
	return func(o *queryOptions) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

func applyOptions(opts []QueryOption) queryOptions {
	o := queryOptions{pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Upsert validates and stores doc, assigning an id when absent. The stored
// version gets a fresh dateEdited, loses its remote flag and is queued for
// push in the same transaction.
func (c *Collection[P]) Upsert(ctx context.Context, doc Document[P]) (Document[P], error) {
	log := logger.FromContext(ctx)

	if err := c.deps.Validator.Validate(ctx, doc.Payload); err != nil {
		return Document[P]{}, err
	}

	data, err := json.Marshal(doc.Payload)
	if err != nil {
		return Document[P]{}, fmt.Errorf("%w: %w", ErrEncodingPayload, err)
	}

	item := doc.Item
	item.Type = c.itemType
	item.Data = data
	item.Deleted = false
	if item.ID == "" {
		item.ID = c.deps.IDs.Generate()
	}

	err = c.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := c.deps.Items.Get(ctx, item.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case existing.Type != c.itemType:
			return validators.NewValidationError(validators.FieldID, validators.ErrTypeCollision)
		default:
			item.DateCreated = existing.DateCreated
		}

		return c.write(ctx, &item)
	})
	if err != nil {
		log.Err(err).Str("func", "Collection.Upsert").Str("collection", c.Name()).Str("id", item.ID).Msg("failed to upsert item")
		return Document[P]{}, err
	}

	return Document[P]{Item: item, Payload: doc.Payload}, nil
}

// Remove tombstones the item with id. Removing a tombstone is a no-op.
func (c *Collection[P]) Remove(ctx context.Context, id string) error {
	err := c.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		item, err := c.deps.Items.Get(ctx, id)
		if err != nil {
			return err
		}
		if item.Type != c.itemType {
			return fmt.Errorf("%w: %s is a %s", store.ErrNotFound, id, item.Type)
		}
		if item.Deleted {
			return nil
		}

		item.Deleted = true
		return c.write(ctx, &item)
	})
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "Collection.Remove").Str("collection", c.Name()).Str("id", id).Msg("failed to remove item")
		return err
	}

	return nil
}

// write stamps item as a fresh local version and stores it with its
// outbox entry. item keeps its plaintext payload. Must run inside InTx.
func (c *Collection[P]) write(ctx context.Context, item *models.Item) error {
	now := c.deps.Clock.Now()
	item.DateEdited = now
	if item.DateCreated == 0 {
		item.DateCreated = now
	}
	item.Remote = false
	item.DeviceID = c.deps.DeviceID

	if err := c.deps.Validator.Validate(ctx, *item); err != nil {
		return err
	}

	stored, err := c.deps.Vault.Encrypt(ctx, *item)
	if err != nil {
		return err
	}

	if err = c.deps.Items.Put(ctx, stored); err != nil {
		return fmt.Errorf("%w: %w", ErrSavingItem, err)
	}
	if err = c.deps.Outbox.Enqueue(ctx, models.NewOutboxEntry(stored, now)); err != nil {
		return fmt.Errorf("%w: %w", ErrSavingItem, err)
	}

	return nil
}

// Get returns the live item with id. Tombstones are reported as
// store.ErrNotFound unless WithDeleted is given.
func (c *Collection[P]) Get(ctx context.Context, id string, opts ...QueryOption) (Document[P], error) {
	o := applyOptions(opts)

	item, err := c.deps.Items.Get(ctx, id)
	if err != nil {
		return Document[P]{}, err
	}
	if item.Type != c.itemType || (item.Deleted && !o.includeDeleted) {
		return Document[P]{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}

	return c.decode(ctx, item)
}

// Query returns a lazy sequence of the items matching pred, ordered by id.
// A nil pred matches everything. The sequence reads storage page by page
// and can be ranged over again to restart from the beginning.
//
// An item that cannot be decoded, for example a locked item while the vault
// is locked, is yielded with its base record and the error; ranging may
// continue past it.
func (c *Collection[P]) Query(ctx context.Context, pred func(Document[P]) bool, opts ...QueryOption) iter.Seq2[Document[P], error] {
	o := applyOptions(opts)

	return func(yield func(Document[P], error) bool) {
		filter := store.ItemFilter{
			Type:           c.itemType,
			Limit:          o.pageSize,
			IncludeDeleted: o.includeDeleted,
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(Document[P]{}, err)
				return
			}

			page, err := c.deps.Items.List(ctx, filter)
			if err != nil {
				yield(Document[P]{}, err)
				return
			}

			for _, item := range page {
				doc, err := c.decode(ctx, item)
				if err != nil {
					if !yield(Document[P]{Item: item}, err) {
						return
					}
					continue
				}
				if pred != nil && !pred(doc) {
					continue
				}
				if !yield(doc, nil) {
					return
				}
			}

			if uint64(len(page)) < filter.Limit {
				return
			}
			filter.AfterID = page[len(page)-1].ID
		}
	}
}

// All is Query without a predicate.
func (c *Collection[P]) All(ctx context.Context, opts ...QueryOption) iter.Seq2[Document[P], error] {
	return c.Query(ctx, nil, opts...)
}

func (c *Collection[P]) decode(ctx context.Context, item models.Item) (Document[P], error) {
	plain, err := c.deps.Vault.Decrypt(ctx, item)
	if err != nil {
		return Document[P]{}, err
	}

	doc := Document[P]{Item: plain}
	if len(plain.Data) == 0 {
		return doc, nil
	}
	if err = json.Unmarshal(plain.Data, &doc.Payload); err != nil {
		return Document[P]{}, fmt.Errorf("%w (id=%s): %w", ErrDecodingPayload, item.ID, err)
	}

	return doc, nil
}

// Collect drains seq, stopping at the first error.
func Collect[P any](seq iter.Seq2[Document[P], error]) ([]Document[P], error) {
	var docs []Document[P]
	for doc, err := range seq {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
