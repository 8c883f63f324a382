package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/migrate"
	"github.com/MKhiriev/go-note-keeper/internal/utils"
	"github.com/MKhiriev/go-note-keeper/models"
)

// Login stores token as the session token, connects the realtime channel
// and starts the automatic sync job. The next sync always pulls.
func (d *Database) Login(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.initialized.Load() {
		return ErrNotInitialized
	}

	return d.login(ctx, token)
}

func (d *Database) login(ctx context.Context, token string) error {
	if err := d.storages.KeyValue.Write(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("error writing session token: %w", err)
	}

	d.server.SetToken(token)
	d.engine.MarkRemoteChanged()
	d.startSession(ctx, token)

	logger.FromContext(ctx).Info().Msg("logged in")
	return nil
}

// startSession subscribes the handlers that live until logout and
// announces the login.
func (d *Database) startSession(ctx context.Context, token string) {
	gen := d.sessionGen.Add(1)

	d.sessionSubs.UnsubscribeAll()
	d.sessionSubs.Add(
		events.Subscribe(d.bus, func(ctx context.Context, _ events.UserLoggedIn) { d.connectRealtime(ctx) }),
		events.Subscribe(d.bus, func(ctx context.Context, _ events.TokenRefreshed) { d.connectRealtime(ctx) }),
		events.Subscribe(d.bus, func(ctx context.Context, _ events.UserFetched) { d.connectRealtime(ctx) }),
		events.Subscribe(d.bus, func(ctx context.Context, e events.SessionExpired) { d.expireSession(ctx, gen, e.Err) }),
		events.Subscribe(d.bus, d.recordLastSynced),
	)

	d.loggedIn.Store(true)
	d.engine.Resume()
	d.job.Start(context.WithoutCancel(ctx), d.cfg.Workers.SyncInterval)

	events.Publish(ctx, d.bus, events.UserLoggedIn{Token: token})
}

// connectRealtime connects the channel, refreshing a token that is about
// to expire first. Failures are logged; the next auth event retries.
func (d *Database) connectRealtime(ctx context.Context) {
	log := logger.FromContext(ctx)

	if d.dialer == nil || d.cfg.Adapter.RealtimeAddress == "" {
		return
	}

	if token, err := utils.ParseToken(d.server.Token()); err == nil && token.ExpiresWithin(d.now(), tokenRefreshMargin) {
		if _, err = d.refreshToken(ctx); err != nil {
			log.Err(err).Str("func", "Database.connectRealtime").Msg("token refresh before connect failed")
			if d.checkAuth(ctx, err) {
				return
			}
		}
	}

	if err := d.channel.Connect(ctx); err != nil {
		log.Err(err).Str("func", "Database.connectRealtime").Msg("realtime channel not connected")
		d.checkAuth(ctx, err)
	}
}

// checkAuth publishes [events.SessionExpired] when err is the server
// rejecting the session token, and reports whether it did.
func (d *Database) checkAuth(ctx context.Context, err error) bool {
	if !errors.Is(err, models.ErrUnauthorized) {
		return false
	}
	events.Publish(ctx, d.bus, events.SessionExpired{Err: err})
	return true
}

// expireSession logs out the session numbered gen. It runs on its own
// goroutine: the rejection may surface inside a sync cycle or a bus
// handler, both of which Logout waits for or locks against. A session
// that already ended, or a newer one, is left alone.
func (d *Database) expireSession(ctx context.Context, gen uint64, cause error) {
	log := logger.FromContext(ctx)
	log.Warn().Err(cause).Str("func", "Database.expireSession").Msg("session token rejected by server")

	ctx = context.WithoutCancel(ctx)
	go func() {
		d.lifecycle.Lock()
		defer d.lifecycle.Unlock()

		if !d.initialized.Load() || d.sessionGen.Load() != gen {
			return
		}
		if err := d.logout(ctx, events.ReasonSessionExpired); err != nil {
			log.Err(err).Str("func", "Database.expireSession").Msg("forced logout failed")
		}
	}()
}

// Logout ends the session: background work stops, the vault is locked and
// every stored user record is wiped. reason is carried by the
// [events.UserLoggedOut] event, empty when the user asked for it.
func (d *Database) Logout(ctx context.Context, reason string) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.initialized.Load() {
		return ErrNotInitialized
	}
	return d.logout(ctx, reason)
}

func (d *Database) logout(ctx context.Context, reason string) error {
	log := logger.FromContext(ctx)

	if !d.loggedIn.Swap(false) && d.server.Token() == "" {
		return nil
	}

	// The token goes first so a request racing the teardown is rejected.
	d.server.SetToken("")
	d.sessionSubs.UnsubscribeAll()
	d.teardown()
	d.setUser(nil)

	if err := d.storages.Clear(ctx); err != nil {
		log.Err(err).Str("func", "Database.Logout").Msg("failed to clear storage")
		return err
	}
	if err := d.reseed(ctx); err != nil {
		log.Err(err).Str("func", "Database.Logout").Msg("failed to reseed storage")
		return err
	}

	events.Publish(ctx, d.bus, events.UserLoggedOut{Reason: reason})
	log.Info().Str("reason", reason).Msg("logged out")

	return nil
}

// reseed writes back the records that describe the replica rather than the
// user, so an emptied database is not migrated again on the next start.
func (d *Database) reseed(ctx context.Context) error {
	err := d.storages.DB.InTx(ctx, func(ctx context.Context) error {
		if err := d.storages.KeyValue.Write(ctx, migrate.VersionKey, d.migrator.Latest()); err != nil {
			return err
		}
		if d.cfg.App.DeviceID == "" {
			if err := d.storages.KeyValue.Write(ctx, DeviceIDKey, d.deviceID); err != nil {
				return err
			}
		}
		return d.session.Set(ctx)
	})
	if err != nil {
		return fmt.Errorf("error writing replica records: %w", err)
	}
	return nil
}

// ── Token ────────────────────────────────────────────────────────────────────

// RefreshToken exchanges the session token for a fresh one and publishes
// [events.TokenRefreshed].
func (d *Database) RefreshToken(ctx context.Context) (string, error) {
	if !d.initialized.Load() {
		return "", ErrNotInitialized
	}
	if d.server.Token() == "" {
		return "", ErrNotLoggedIn
	}

	token, err := d.refreshToken(ctx)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "Database.RefreshToken").Msg("token refresh failed")
		d.checkAuth(ctx, err)
		return "", err
	}

	events.Publish(ctx, d.bus, events.TokenRefreshed{Token: token})
	return token, nil
}

// RefreshTokenIfExpiring refreshes the session token when it expires within
// the given window and reports whether it did.
func (d *Database) RefreshTokenIfExpiring(ctx context.Context, within time.Duration) (bool, error) {
	if !d.initialized.Load() {
		return false, ErrNotInitialized
	}

	current := d.server.Token()
	if current == "" {
		return false, ErrNotLoggedIn
	}

	token, err := utils.ParseToken(current)
	if err != nil {
		return false, err
	}
	if !token.ExpiresWithin(d.now(), within) {
		return false, nil
	}

	if _, err = d.RefreshToken(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Database) refreshToken(ctx context.Context) (string, error) {
	token, err := d.server.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("error refreshing token: %w", err)
	}

	if err = d.storages.KeyValue.Write(ctx, TokenKey, token); err != nil {
		return "", fmt.Errorf("error writing session token: %w", err)
	}
	return token, nil
}

// ── User ─────────────────────────────────────────────────────────────────────

// FetchUser reloads the account of the session, caches it and publishes
// [events.UserFetched].
func (d *Database) FetchUser(ctx context.Context) (models.User, error) {
	if !d.initialized.Load() {
		return models.User{}, ErrNotInitialized
	}
	if d.server.Token() == "" {
		return models.User{}, ErrNotLoggedIn
	}

	user, err := d.server.FetchUser(ctx)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "Database.FetchUser").Msg("failed to fetch user")
		d.checkAuth(ctx, err)
		return models.User{}, fmt.Errorf("error fetching user: %w", err)
	}

	if err = d.storages.KeyValue.Write(ctx, UserKey, user); err != nil {
		return models.User{}, fmt.Errorf("error caching user: %w", err)
	}
	d.setUser(&user)

	events.Publish(ctx, d.bus, events.UserFetched{User: user})
	return user, nil
}

// User returns the cached account, false when none was fetched.
func (d *Database) User() (models.User, bool) {
	d.userMu.RLock()
	defer d.userMu.RUnlock()

	if d.user == nil {
		return models.User{}, false
	}
	return *d.user, true
}

// applySubscription stores sub on the cached user and publishes
// [events.SubscriptionUpdated].
func (d *Database) applySubscription(ctx context.Context, sub models.Subscription) error {
	user, _ := d.User()
	user.Subscription = sub

	if err := d.storages.KeyValue.Write(ctx, UserKey, user); err != nil {
		return fmt.Errorf("error caching user: %w", err)
	}
	d.setUser(&user)

	events.Publish(ctx, d.bus, events.SubscriptionUpdated{Subscription: sub})
	return nil
}

func (d *Database) setUser(user *models.User) {
	d.userMu.Lock()
	d.user = user
	d.userMu.Unlock()
}

// IsPremium reports whether the cached subscription grants a paid feature.
// Every paid feature comes with any active subscription.
func (d *Database) IsPremium(_ string) bool {
	user, ok := d.User()
	return ok && user.Subscription.Active(d.now())
}
