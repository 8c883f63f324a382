package workers

import (
	"context"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
)

type tickerWorker struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewTicker returns a Worker calling fn every interval until its context
// ends. Errors of fn are logged and do not stop the worker.
func NewTicker(name string, interval time.Duration, fn func(ctx context.Context) error) Worker {
	return &tickerWorker{name: name, interval: interval, fn: fn}
}

func (w *tickerWorker) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := w.fn(ctx); err != nil && ctx.Err() == nil {
				log.Err(err).Str("func", "tickerWorker.Run").Str("worker", w.name).Msg("worker tick failed")
			}
		}
	}
}
