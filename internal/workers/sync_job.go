// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"sync"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
)

// DefaultSyncInterval is used when Start gets a non-positive interval.
const DefaultSyncInterval = 5 * time.Minute

type syncJob struct {
	syncer Syncer

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a syncJob that forces a sync cycle on a ticker. The
// job is idle until Start is called.
func NewSyncJob(s Syncer) SyncJob {
	return &syncJob{syncer: s}
}

// Start launches a background goroutine that syncs every interval. The
// goroutine exits when ctx is cancelled or Stop is called.
func (j *syncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		log := logger.FromContext(jobCtx)

		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				// forced: remote changes are only known after a pull
				if _, err := j.syncer.Sync(jobCtx, false, true); err != nil && jobCtx.Err() == nil {
					log.Err(err).Str("func", "syncJob.Start").Msg("scheduled sync failed")
				}
			}
		}
	}()
}

func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

func (j *syncJob) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancel != nil
}
