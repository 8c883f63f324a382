package session

import (
	"context"
	"fmt"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/store"
)

// MarkerKey stores the local time of the last validated start in ms.
const MarkerKey = "t"

const (
	sourceServer = "server"
	sourceMarker = "marker"
)

type session struct {
	kv        store.KeyValueStorage
	source    TimeSource
	tolerance time.Duration
	now       func() time.Time
}

// New returns a Session. A nil source skips the server comparison.
func New(kv store.KeyValueStorage, source TimeSource, cfg config.Session) Session {
	return &session{
		kv:        kv,
		source:    source,
		tolerance: cfg.ClockTolerance,
		now:       time.Now,
	}
}

func (s *session) Validate(ctx context.Context) error {
	log := logger.FromContext(ctx)
	local := s.now()

	var marker int64
	ok, err := s.kv.Read(ctx, MarkerKey, &marker)
	if err != nil {
		return fmt.Errorf("error reading session marker: %w", err)
	}
	if ok {
		if last := time.UnixMilli(marker); local.Add(s.tolerance).Before(last) {
			return &ClockSkewError{Local: local, Reference: last, Source: sourceMarker}
		}
	}

	if s.source == nil {
		return nil
	}

	server, err := s.source.ServerTime(ctx)
	if err != nil {
		// offline start: the marker check above is all we have
		log.Warn().Err(err).Str("func", "session.Validate").Msg("trusted time source unavailable, skipping server clock check")
		return nil
	}

	// the request took some time; compare against the local reading taken
	// once the answer arrived as well and accept either
	after := s.now()
	if !within(local, server, s.tolerance) && !within(after, server, s.tolerance) {
		return &ClockSkewError{Local: after, Reference: server, Source: sourceServer}
	}

	return nil
}

func (s *session) Set(ctx context.Context) error {
	if err := s.kv.Write(ctx, MarkerKey, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("error writing session marker: %w", err)
	}
	return nil
}

func within(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
