// Package syncer runs the pull, merge and push cycles that keep the local
// collections consistent with the server.
//
// A cycle pulls every collection since its cursor, merges each remote item
// through the conflict resolver, uploads pending attachment blobs and
// flushes the outbox. Cursors advance only after the whole cycle succeeded.
package syncer

import (
	"context"

	"github.com/MKhiriev/go-note-keeper/models"
)

// Remote is the part of the server adapter a cycle talks to.
type Remote interface {
	Pull(ctx context.Context, collection, cursorToken string) (models.PullResponse, error)
	Push(ctx context.Context, collection string, entries []models.OutboxEntry) (models.PushResponse, error)
}

// Clock stamps local versions and absorbs remote timestamps.
type Clock interface {
	Now() int64
	Observe(ts int64)
}

type Engine interface {
	// Sync runs one cycle. Without force the call returns at once when
	// nothing changed locally and no remote change was signalled. full
	// ignores the stored cursors. Concurrent calls share one cycle.
	//
	// A cycle the server rejects with models.ErrUnauthorized publishes
	// events.SessionExpired before returning.
	Sync(ctx context.Context, full, force bool) (Result, error)

	// State returns the phase of the running cycle.
	State() State

	// Abort cancels the running cycle, if any, and waits for it to stop.
	// Later Sync calls fail with ErrSyncAborted until Resume.
	Abort()

	// Resume lets cycles run again after Abort.
	Resume()

	// MarkRemoteChanged records that the server holds changes the next
	// Sync must pull.
	MarkRemoteChanged()

	// FetchAttachment downloads the blob with hash into local file storage
	// when it is not there yet.
	FetchAttachment(ctx context.Context, hash string) error
}
