// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/models"
)

const batchSize = 100

// FlushResult counts what happened to the entries attempted by one flush.
type FlushResult struct {
	Delivered int
	Failed    int
	Parked    int
}

type outbox struct {
	tx          store.Transactor
	entries     store.OutboxRepository
	items       store.ItemRepository
	bus         *events.Bus
	backoff     Backoff
	maxAttempts int
	now         func() time.Time
}

func New(tx store.Transactor, entries store.OutboxRepository, items store.ItemRepository, bus *events.Bus, cfg config.Outbox) Outbox {
	return &outbox{
		tx:          tx,
		entries:     entries,
		items:       items,
		bus:         bus,
		backoff:     Backoff{Initial: cfg.BaseBackoff, Max: cfg.MaxBackoff, Multiplier: 2},
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

func (o *outbox) Enqueue(ctx context.Context, item models.Item) error {
	return o.entries.Enqueue(ctx, models.NewOutboxEntry(item, o.now().UnixMilli()))
}

func (o *outbox) Flush(ctx context.Context, pusher Pusher) (FlushResult, error) {
	log := logger.FromContext(ctx)

	due, err := o.entries.Due(ctx, o.now().UnixMilli(), 0)
	if err != nil {
		return FlushResult{}, fmt.Errorf("error reading due entries: %w", err)
	}

	var (
		result  FlushResult
		lastErr error
	)
	for _, batch := range batches(due) {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		collection := batch[0].Collection
		resp, err := pusher.Push(ctx, collection, batch)
		if errors.Is(err, models.ErrUnauthorized) {
			return result, err
		}
		if err != nil {
			log.Err(err).Str("func", "outbox.Flush").Str("collection", collection).Int("entries", len(batch)).Msg("push failed")
			lastErr = err
			for _, entry := range batch {
				if ferr := o.fail(ctx, entry, err.Error(), &result); ferr != nil {
					return result, ferr
				}
			}
			continue
		}

		undelivered := result.Failed + result.Parked
		if err = o.apply(ctx, batch, resp, &result); err != nil {
			return result, err
		}
		if result.Failed+result.Parked > undelivered {
			lastErr = ErrNoAcknowledgement
		}
	}

	if lastErr != nil && (result.Failed > 0 || result.Parked > 0) {
		return result, fmt.Errorf("%w: %d failed, %d parked: %w", ErrIncompleteFlush, result.Failed, result.Parked, lastErr)
	}

	return result, nil
}

// apply acknowledges accepted entries and fails the rest of the batch.
func (o *outbox) apply(ctx context.Context, batch []models.OutboxEntry, resp models.PushResponse, result *FlushResult) error {
	accepted := make(map[string]struct{}, len(resp.Accepted))
	for _, id := range resp.Accepted {
		accepted[id] = struct{}{}
	}
	rejected := make(map[string]string, len(resp.Rejected))
	for _, r := range resp.Rejected {
		rejected[r.ID] = r.Reason
	}

	for _, entry := range batch {
		if _, ok := accepted[entry.ItemID]; ok {
			acked, err := o.ack(ctx, entry)
			if err != nil {
				return err
			}
			if acked {
				result.Delivered++
			}
			continue
		}

		reason, ok := rejected[entry.ItemID]
		if !ok {
			reason = ErrNoAcknowledgement.Error()
		}
		if err := o.fail(ctx, entry, reason, result); err != nil {
			return err
		}
	}

	return nil
}

// ack drops the entry and flags the item as acknowledged. When the item was
// edited while the push was in flight both writes are skipped: the newer
// version is still pending.
func (o *outbox) ack(ctx context.Context, entry models.OutboxEntry) (bool, error) {
	dateEdited := entry.Payload.DateEdited

	err := o.tx.InTx(ctx, func(ctx context.Context) error {
		if err := o.entries.Ack(ctx, entry.Seq, dateEdited); err != nil {
			return err
		}
		err := o.items.MarkRemote(ctx, entry.ItemID, dateEdited)
		if errors.Is(err, store.ErrStaleVersion) {
			return nil
		}
		return err
	})
	if errors.Is(err, store.ErrStaleVersion) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error acknowledging %s/%s: %w", entry.Collection, entry.ItemID, err)
	}

	return true, nil
}

func (o *outbox) fail(ctx context.Context, entry models.OutboxEntry, reason string, result *FlushResult) error {
	log := logger.FromContext(ctx)

	entry.Attempts++
	entry.LastError = reason
	entry.NextAttemptAt = o.now().Add(o.backoff.Delay(entry.Attempts)).UnixMilli()
	entry.Parked = o.maxAttempts > 0 && entry.Attempts >= o.maxAttempts

	err := o.entries.Fail(ctx, entry)
	if errors.Is(err, store.ErrStaleVersion) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error recording failed delivery of %s/%s: %w", entry.Collection, entry.ItemID, err)
	}

	if !entry.Parked {
		result.Failed++
		return nil
	}

	result.Parked++
	log.Warn().
		Str("func", "outbox.fail").
		Str("collection", entry.Collection).
		Str("id", entry.ItemID).
		Int("attempts", entry.Attempts).
		Str("reason", reason).
		Msg("outbox entry parked")
	if o.bus != nil {
		events.Publish(ctx, o.bus, events.OutboxEntryParked{Entry: entry, Reason: reason})
	}

	return nil
}

// batches splits entries into runs of one collection, keeping the order
// of first appearance of each collection and insertion order within it.
func batches(entries []models.OutboxEntry) [][]models.OutboxEntry {
	var (
		order  []string
		groups = make(map[string][]models.OutboxEntry)
	)
	for _, e := range entries {
		if _, ok := groups[e.Collection]; !ok {
			order = append(order, e.Collection)
		}
		groups[e.Collection] = append(groups[e.Collection], e)
	}

	var out [][]models.OutboxEntry
	for _, c := range order {
		group := groups[c]
		for len(group) > batchSize {
			out = append(out, group[:batchSize])
			group = group[batchSize:]
		}
		out = append(out, group)
	}
	return out
}

func (o *outbox) HasPending(ctx context.Context, collection, itemID string) (bool, error) {
	_, err := o.entries.Get(ctx, collection, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (o *outbox) Drop(ctx context.Context, collection, itemID string) error {
	return o.entries.Delete(ctx, collection, itemID)
}

func (o *outbox) Pending(ctx context.Context) ([]models.OutboxEntry, error) {
	return o.entries.List(ctx, false)
}

func (o *outbox) Parked(ctx context.Context) ([]models.OutboxEntry, error) {
	return o.entries.List(ctx, true)
}

func (o *outbox) Discard(ctx context.Context, seq int64) error {
	return o.entries.Remove(ctx, seq)
}

func (o *outbox) Requeue(ctx context.Context, seq int64) error {
	return o.entries.Requeue(ctx, seq, o.now().UnixMilli())
}
