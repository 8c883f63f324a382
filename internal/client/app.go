package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/database"
	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/workers"
)

const (
	tokenCheckInterval = time.Minute
	// tokenRefreshWindow is how long before expiry the token is exchanged.
	tokenRefreshWindow = 10 * time.Minute
	cleanupInterval    = time.Hour
)

// Database is the part of the note database the runtime drives.
type Database interface {
	Init(ctx context.Context) error
	Close() error
	Bus() *events.Bus
	RefreshTokenIfExpiring(ctx context.Context, within time.Duration) (bool, error)
	CleanupAttachments(ctx context.Context) (int, error)
}

type App struct {
	db      Database
	workers *workers.Workers
	log     *logger.Logger
}

// NewApp builds the runtime around db. The token refresh and attachment
// cleanup workers are registered here; the sync job belongs to db.
func NewApp(db Database, log *logger.Logger) (*App, error) {
	if db == nil {
		return nil, errors.New("nil database")
	}

	a := &App{db: db, log: log}
	a.workers = workers.New(
		workers.NewTicker("token-refresh", tokenCheckInterval, a.refreshToken),
		workers.NewTicker("attachment-cleanup", cleanupInterval, a.cleanupAttachments),
	)

	return a, nil
}

// Run initializes the database and blocks until ctx ends. The database is
// closed on return.
func (a *App) Run(ctx context.Context) error {
	ctx = a.log.WithContext(ctx)

	if err := a.db.Init(ctx); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer a.db.Close()

	logged := new(events.Group)
	logged.Add(
		events.Subscribe(a.db.Bus(), func(_ context.Context, e events.ConflictDetected) {
			a.log.Warn().Str("collection", e.Collection).Str("id", e.ID).Str("copy", e.CloneID).Msg("conflicting edits kept side by side")
		}),
		events.Subscribe(a.db.Bus(), func(_ context.Context, e events.OutboxEntryParked) {
			a.log.Warn().Str("collection", e.Entry.Collection).Str("id", e.Entry.ItemID).Str("reason", e.Reason).Msg("change parked, manual action needed")
		}),
		events.Subscribe(a.db.Bus(), func(_ context.Context, e events.UserLoggedOut) {
			a.log.Info().Str("reason", e.Reason).Msg("session ended")
		}),
	)
	defer logged.UnsubscribeAll()

	a.log.Info().Msg("client started")
	err := a.workers.Run(ctx)
	a.log.Info().Msg("client stopping")

	return err
}

func (a *App) refreshToken(ctx context.Context) error {
	refreshed, err := a.db.RefreshTokenIfExpiring(ctx, tokenRefreshWindow)
	if errors.Is(err, database.ErrNotLoggedIn) {
		return nil
	}
	if err != nil {
		return err
	}
	if refreshed {
		a.log.Debug().Msg("session token refreshed")
	}
	return nil
}

func (a *App) cleanupAttachments(ctx context.Context) error {
	removed, err := a.db.CleanupAttachments(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		a.log.Info().Int("removed", removed).Msg("unreferenced attachments removed")
	}
	return nil
}
