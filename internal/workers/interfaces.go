// Package workers provides abstractions for managing and running
// background workers in the application.
// It defines the Worker interface, a Workers aggregate that runs several
// workers under one errgroup, and the periodic sync job.
package workers

import (
	"context"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/syncer"
)

// Worker is the interface that must be implemented by any background worker.
//
// Run blocks until ctx is cancelled or the worker fails. Returning nil
// after cancellation is the normal shutdown path.
//
// Example implementation:
//
//	type MyWorker struct{}
//
//	func (w *MyWorker) Run(ctx context.Context) error {
//	    <-ctx.Done()
//	    return nil
//	}
type Worker interface {
	Run(ctx context.Context) error
}

// Syncer is the sync entry point driven by [SyncJob].
type Syncer interface {
	Sync(ctx context.Context, full, force bool) (syncer.Result, error)
}

// SyncJob runs a sync cycle on a fixed interval while the user is logged in.
type SyncJob interface {
	// Start stops a running job, then starts a new one. A non-positive
	// interval selects the default.
	Start(ctx context.Context, interval time.Duration)
	// Stop blocks until the job goroutine has exited. Safe to call when the
	// job is not running.
	Stop()
	Running() bool
}
