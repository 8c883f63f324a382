// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/MKhiriev/go-note-keeper/internal/collection"
	"github.com/MKhiriev/go-note-keeper/internal/conflict"
	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/outbox"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/models"
)

// CursorKeyPrefix prefixes the key-value key of each collection cursor.
const CursorKeyPrefix = "cursor:"

const (
	flightKey     = "sync"
	purgePageSize = 200
)

// Result summarizes one Sync call.
type Result struct {
	// Skipped is set when the call returned without a cycle.
	Skipped   bool
	Pulled    int
	Conflicts int
	Uploaded  int
	Flush     outbox.FlushResult
}

// Deps are the collaborators of the engine. RemoteFiles and Attachments
// are optional; without them attachment blobs are not transferred.
type Deps struct {
	Tx       store.Transactor
	KV       store.KeyValueStorage
	Items    store.ItemRepository
	Outbox   outbox.Outbox
	Remote   Remote
	Resolver conflict.Resolver
	Clock    Clock
	Bus      *events.Bus

	Files       store.FileStorage
	RemoteFiles store.RemoteFileStorage
	Attachments *collection.Attachments
}

type syncer struct {
	deps Deps

	flight        singleflight.Group
	state         atomic.Int32
	remoteChanged atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	// halted is set by Abort and cleared by Resume. No cycle starts while
	// it is set.
	halted bool
}

// New returns an idle engine. The first Sync always reaches the server
// since remote changes made while the process was down are unknown.
func New(deps Deps) Engine {
	s := &syncer{deps: deps}
	s.remoteChanged.Store(true)
	return s
}

func (s *syncer) State() State {
	return State(s.state.Load())
}

func (s *syncer) setState(state State) {
	s.state.Store(int32(state))
}

func (s *syncer) MarkRemoteChanged() {
	s.remoteChanged.Store(true)
}

func (s *syncer) Abort() {
	s.mu.Lock()
	s.halted = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	s.setState(StateAborted)
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *syncer) Resume() {
	s.mu.Lock()
	s.halted = false
	s.mu.Unlock()

	s.setState(StateIdle)
}

// Sync joins the running cycle when there is one. The cycle itself is not
// bound to ctx, so a caller that gives up does not cancel it for the
// others; only Abort does.
func (s *syncer) Sync(ctx context.Context, full, force bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	ch := s.flight.DoChan(flightKey, func() (any, error) {
		return s.run(ctx, full, force)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(Result)
		return result, res.Err
	}
}

func (s *syncer) run(ctx context.Context, full, force bool) (Result, error) {
	log := logger.FromContext(ctx)

	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		cancel()
		return Result{}, fmt.Errorf("%w: engine halted", ErrSyncAborted)
	}
	s.cancel, s.done = cancel, done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel, s.done = nil, nil
		s.mu.Unlock()
		cancel()
		close(done)
	}()

	if !full && !force {
		changed, err := s.hasLocalChanges(cycleCtx)
		if err != nil {
			return Result{}, err
		}
		if !changed && !s.remoteChanged.Load() {
			s.setState(StateIdle)
			return Result{Skipped: true}, nil
		}
	}

	s.remoteChanged.Store(false)
	result, err := s.cycle(cycleCtx, full)
	if err == nil {
		s.setState(StateIdle)
		return result, nil
	}

	// The server side is unknown again after a partial cycle.
	s.remoteChanged.Store(true)

	if cycleCtx.Err() != nil {
		s.setState(StateAborted)
		log.Warn().Str("func", "syncer.run").Msg("sync aborted")
		return result, fmt.Errorf("%w: %w", ErrSyncAborted, err)
	}

	s.setState(StateIdle)
	log.Err(err).Str("func", "syncer.run").Bool("full", full).Msg("sync failed")

	if errors.Is(err, models.ErrUnauthorized) && s.deps.Bus != nil {
		events.Publish(cycleCtx, s.deps.Bus, events.SessionExpired{Err: err})
	}
	return result, err
}

func (s *syncer) hasLocalChanges(ctx context.Context) (bool, error) {
	pending, err := s.deps.Outbox.Pending(ctx)
	if err != nil {
		return false, fmt.Errorf("error reading outbox: %w", err)
	}
	return len(pending) > 0, nil
}

func (s *syncer) cycle(ctx context.Context, full bool) (Result, error) {
	log := logger.FromContext(ctx)

	var result Result
	started := s.deps.Clock.Now()
	cursors := make(map[string]models.SyncCursor, len(models.ItemTypes))

	for _, t := range models.ItemTypes {
		name := t.Collection()

		s.setState(StateFetching)
		cursor, err := s.cursor(ctx, name, full)
		if err != nil {
			return result, err
		}
		resp, err := s.deps.Remote.Pull(ctx, name, cursor.LastSyncedToken)
		if err != nil {
			return result, fmt.Errorf("error pulling %s: %w", name, err)
		}

		s.setState(StateMerging)
		for _, item := range resp.Items {
			if err = ctx.Err(); err != nil {
				return result, err
			}
			if item.Type != t {
				log.Warn().Str("func", "syncer.cycle").Str("collection", name).Str("id", item.ID).Msg("item pulled into wrong collection, skipped")
				continue
			}

			conflicted, err := s.merge(ctx, name, item)
			if errors.Is(err, ErrTypeMismatch) {
				log.Err(err).Str("func", "syncer.cycle").Str("id", item.ID).Msg("remote item skipped")
				continue
			}
			if err != nil {
				return result, fmt.Errorf("error merging %s %s: %w", name, item.ID, err)
			}

			result.Pulled++
			if conflicted {
				result.Conflicts++
			}
		}

		cursors[name] = models.SyncCursor{LastSyncedAt: started, LastSyncedToken: resp.NextCursorToken}
	}

	s.setState(StatePushing)
	uploaded, err := s.uploadBlobs(ctx)
	result.Uploaded = uploaded
	if err != nil {
		return result, err
	}

	result.Flush, err = s.deps.Outbox.Flush(ctx, s.deps.Remote)
	if err != nil {
		return result, fmt.Errorf("error flushing outbox: %w", err)
	}

	err = s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		for name, cursor := range cursors {
			if err := s.deps.KV.Write(ctx, CursorKeyPrefix+name, cursor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrCursorPersist, err)
	}

	s.purge(ctx)

	log.Info().
		Bool("full", full).
		Int("pulled", result.Pulled).
		Int("conflicts", result.Conflicts).
		Int("pushed", result.Flush.Delivered).
		Msg("sync completed")

	if s.deps.Bus != nil {
		events.Publish(ctx, s.deps.Bus, events.SyncCompleted{Full: full, FinishedAt: s.deps.Clock.Now()})
	}

	return result, nil
}

func (s *syncer) cursor(ctx context.Context, collection string, full bool) (models.SyncCursor, error) {
	var cursor models.SyncCursor
	if full {
		return cursor, nil
	}
	if _, err := s.deps.KV.Read(ctx, CursorKeyPrefix+collection, &cursor); err != nil {
		return cursor, fmt.Errorf("error reading %s cursor: %w", collection, err)
	}
	return cursor, nil
}

// merge applies one remote item and reports whether both versions were kept.
func (s *syncer) merge(ctx context.Context, collection string, remote models.Item) (bool, error) {
	remote.Remote = true
	s.deps.Clock.Observe(remote.DateEdited)

	var cloneID string
	err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		local, err := s.deps.Items.Get(ctx, remote.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Nothing to delete locally; the tombstone is not materialized.
			if remote.Deleted {
				return nil
			}
			return s.deps.Items.Put(ctx, remote)
		}
		if err != nil {
			return err
		}
		if local.Type != remote.Type {
			return fmt.Errorf("%w: %s is %s locally", ErrTypeMismatch, remote.ID, local.Type)
		}

		pending, err := s.deps.Outbox.HasPending(ctx, collection, remote.ID)
		if err != nil {
			return err
		}

		resolution := s.deps.Resolver.Resolve(models.Conflict{Local: local, Remote: remote, LocalPending: pending})
		switch resolution.Outcome {
		case conflict.KeepLocal:
			return nil
		case conflict.KeepBoth:
			cloneID, err = s.keepBoth(ctx, collection, local, remote)
			return err
		default:
			if err = s.deps.Items.Put(ctx, remote); err != nil {
				return err
			}
			if pending {
				return s.deps.Outbox.Drop(ctx, collection, remote.ID)
			}
			return nil
		}
	})
	if err != nil {
		return false, err
	}

	if cloneID == "" {
		return false, nil
	}

	logger.FromContext(ctx).Info().Str("collection", collection).Str("id", remote.ID).Str("clone", cloneID).Msg("conflict, local version kept as copy")
	if s.deps.Bus != nil {
		events.Publish(ctx, s.deps.Bus, events.ConflictDetected{Collection: collection, ID: remote.ID, CloneID: cloneID})
	}
	return true, nil
}

// keepBoth stores remote under the original id and the local version as a
// new pending item linked to it.
func (s *syncer) keepBoth(ctx context.Context, collection string, local, remote models.Item) (string, error) {
	id := conflict.CloneID(local.ID, func(id string) bool {
		_, err := s.deps.Items.Get(ctx, id)
		return !errors.Is(err, store.ErrNotFound)
	})
	clone := conflict.Clone(local, id, s.deps.Clock.Now())

	if err := s.deps.Items.Put(ctx, remote); err != nil {
		return "", err
	}
	if err := s.deps.Outbox.Drop(ctx, collection, remote.ID); err != nil {
		return "", err
	}
	if err := s.deps.Items.Put(ctx, clone); err != nil {
		return "", err
	}
	if err := s.deps.Outbox.Enqueue(ctx, clone); err != nil {
		return "", err
	}
	return id, nil
}

type pendingBlob struct {
	hash string
	size int64
}

// uploadBlobs copies the bytes of every live attachment not yet uploaded to
// the remote blob store. An attachment removed meanwhile is skipped.
func (s *syncer) uploadBlobs(ctx context.Context) (int, error) {
	if s.deps.RemoteFiles == nil || s.deps.Attachments == nil {
		return 0, nil
	}
	log := logger.FromContext(ctx)

	var pending []pendingBlob
	notUploaded := func(d collection.Document[models.Attachment]) bool { return !d.Payload.Uploaded }
	for doc, err := range s.deps.Attachments.Query(ctx, notUploaded) {
		if err != nil {
			log.Err(err).Str("func", "syncer.uploadBlobs").Msg("unreadable attachment skipped")
			continue
		}
		pending = append(pending, pendingBlob{hash: doc.ID, size: doc.Payload.Size})
	}

	uploaded := 0
	for _, blob := range pending {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}

		item, err := s.deps.Items.Get(ctx, blob.hash)
		if errors.Is(err, store.ErrNotFound) || (err == nil && item.Deleted) {
			continue
		}
		if err != nil {
			return uploaded, err
		}

		err = s.upload(ctx, blob)
		if errors.Is(err, store.ErrBlobNotFound) {
			log.Warn().Str("func", "syncer.uploadBlobs").Str("hash", blob.hash).Msg("blob missing locally, not uploaded")
			continue
		}
		if err != nil {
			return uploaded, fmt.Errorf("%w %s: %w", ErrBlobUpload, blob.hash, err)
		}

		if err = s.deps.Attachments.MarkUploaded(ctx, blob.hash); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	return uploaded, nil
}

func (s *syncer) upload(ctx context.Context, blob pendingBlob) error {
	exists, err := s.deps.RemoteFiles.Exists(ctx, blob.hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	r, err := s.deps.Files.Read(ctx, blob.hash)
	if err != nil {
		return err
	}
	defer r.Close()

	return s.deps.RemoteFiles.Upload(ctx, blob.hash, r, blob.size)
}

func (s *syncer) FetchAttachment(ctx context.Context, hash string) error {
	if s.deps.RemoteFiles == nil {
		return store.ErrRemoteFilesDisabled
	}

	exists, err := s.deps.Files.Exists(ctx, hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	r, err := s.deps.RemoteFiles.Download(ctx, hash)
	if err != nil {
		return err
	}
	defer r.Close()

	got, _, err := s.deps.Files.Write(ctx, r)
	if err != nil {
		return err
	}
	if got != hash {
		logger.FromContext(ctx).Error().Str("func", "syncer.FetchAttachment").Str("hash", hash).Str("got", got).Msg("downloaded blob hash mismatch")
		return fmt.Errorf("%w: %s", ErrBlobIntegrity, hash)
	}
	return nil
}

// purge erases tombstones the server has acknowledged, together with the
// local and remote bytes of purged attachments. Failures are logged; the next cycle
// retries.
func (s *syncer) purge(ctx context.Context) {
	log := logger.FromContext(ctx)

	if s.deps.Files != nil {
		if err := s.dropPurgedBlobs(ctx); err != nil {
			log.Err(err).Str("func", "syncer.purge").Msg("failed to drop blobs of removed attachments")
			return
		}
	}

	for _, t := range models.ItemTypes {
		n, err := s.deps.Items.PurgeTombstones(ctx, t)
		if err != nil {
			log.Err(err).Str("func", "syncer.purge").Str("type", string(t)).Msg("failed to purge tombstones")
			continue
		}
		if n > 0 {
			log.Debug().Str("type", string(t)).Int64("purged", n).Msg("tombstones purged")
		}
	}
}

func (s *syncer) dropPurgedBlobs(ctx context.Context) error {
	filter := store.ItemFilter{Type: models.TypeAttachment, IncludeDeleted: true, Limit: purgePageSize}
	for {
		page, err := s.deps.Items.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, item := range page {
			if !item.Deleted || !item.Remote {
				continue
			}
			if s.deps.RemoteFiles != nil {
				if err = s.deps.RemoteFiles.Delete(ctx, item.ID); err != nil && !errors.Is(err, store.ErrBlobNotFound) {
					return fmt.Errorf("error deleting remote blob %s: %w", item.ID, err)
				}
			}
			if err = s.deps.Files.Delete(ctx, item.ID); err != nil && !errors.Is(err, store.ErrBlobNotFound) {
				return err
			}
		}
		if uint64(len(page)) < filter.Limit {
			return nil
		}
		filter.AfterID = page[len(page)-1].ID
	}
}
