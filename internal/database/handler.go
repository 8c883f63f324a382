package database

import (
	"context"

	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/models"
)

// realtimeHandler turns server push messages into database operations.
type realtimeHandler struct {
	db *Database
}

// Upgrade applies the pushed subscription at once; the refetch that follows
// only refreshes the rest of the account.
func (h *realtimeHandler) Upgrade(ctx context.Context, sub models.Subscription) error {
	if err := h.db.applySubscription(ctx, sub); err != nil {
		return err
	}

	if _, err := h.db.FetchUser(ctx); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("func", "realtimeHandler.Upgrade").Msg("user refetch after upgrade failed")
	}
	return nil
}

func (h *realtimeHandler) ForceLogout(ctx context.Context, reason string) error {
	return h.db.Logout(ctx, reason)
}

func (h *realtimeHandler) EmailConfirmed(ctx context.Context) error {
	if _, err := h.db.RefreshToken(ctx); err != nil {
		return err
	}
	if _, err := h.db.FetchUser(ctx); err != nil {
		return err
	}

	events.Publish(ctx, h.db.bus, events.EmailConfirmed{})
	return nil
}

// SyncRequested runs a cycle even when nothing changed locally. Every
// collection is pulled; the requested list only shows up in the log.
func (h *realtimeHandler) SyncRequested(ctx context.Context, req models.SyncRequest) error {
	logger.FromContext(ctx).Debug().Strs("collections", req.Collections).Bool("full", req.Full).Msg("server requested sync")

	if !h.db.loggedIn.Load() {
		return ErrNotLoggedIn
	}

	h.db.engine.MarkRemoteChanged()
	_, err := h.db.engine.Sync(ctx, req.Full, true)
	return err
}
