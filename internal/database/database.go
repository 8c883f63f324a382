// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package database is the composition root of the note store.
//
// [Database.Init] runs the startup sequence in a fixed order: the clock
// check of the session, the data migrations, then the construction of the
// collections, the vault, the outbox, the sync engine and the realtime
// channel. A stored session token is restored last, which connects the
// realtime channel and starts the automatic sync job.
//
// The typed event bus returned by [Database.Bus] lives as long as the
// Database. Subscriptions the orchestrator makes for one login are dropped
// on [Database.Logout].
package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/adapter"
	"github.com/MKhiriev/go-note-keeper/internal/collection"
	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/conflict"
	"github.com/MKhiriev/go-note-keeper/internal/crypto"
	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/migrate"
	"github.com/MKhiriev/go-note-keeper/internal/outbox"
	"github.com/MKhiriev/go-note-keeper/internal/realtime"
	"github.com/MKhiriev/go-note-keeper/internal/session"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/internal/syncer"
	"github.com/MKhiriev/go-note-keeper/internal/utils"
	"github.com/MKhiriev/go-note-keeper/internal/validators"
	"github.com/MKhiriev/go-note-keeper/internal/vault"
	"github.com/MKhiriev/go-note-keeper/internal/workers"
	"github.com/MKhiriev/go-note-keeper/models"
)

// Keys of the key-value storage owned by the orchestrator.
const (
	TokenKey      = "token"
	UserKey       = "user"
	LastSyncedKey = "lastSynced"
	DeviceIDKey   = "deviceId"
)

// tokenRefreshMargin is how close to its expiry a token is refreshed before
// the realtime channel connects with it.
const tokenRefreshMargin = time.Minute

// Option customizes a Database built by New.
type Option func(*Database)

// WithKeyChain replaces the key derivation used by the vault.
func WithKeyChain(keys crypto.KeyChainService) Option {
	return func(d *Database) { d.keys = keys }
}

// WithIDGenerator replaces the id generator of new items and of the device.
func WithIDGenerator(ids collection.IDGenerator) Option {
	return func(d *Database) { d.ids = ids }
}

// WithSession replaces the startup clock check built by Init.
func WithSession(s session.Session) Option {
	return func(d *Database) { d.session = s }
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// Database owns every component of one local replica. The collection,
// vault and outbox fields are set by Init.
type Database struct {
	Notes       *collection.Notes
	Notebooks   *collection.Notebooks
	Tags        *collection.Tags
	Colors      *collection.Tags
	Content     *collection.Collection[models.Content]
	Attachments *collection.Attachments
	Lookup      *collection.Lookup
	Vault       vault.Vault
	Outbox      outbox.Outbox

	storages *store.Storages
	server   adapter.ServerAdapter
	dialer   realtime.Dialer
	cfg      *config.ClientConfig

	keys  crypto.KeyChainService
	ids   collection.IDGenerator
	now   func() time.Time
	clock *utils.Clock
	bus   *events.Bus

	session  session.Session
	migrator *migrate.Migrator
	engine   syncer.Engine
	channel  realtime.Channel
	job      workers.SyncJob
	deviceID string

	// lifecycle serializes Init, Login, Logout and Close.
	lifecycle   sync.Mutex
	initialized atomic.Bool
	loggedIn    atomic.Bool
	// sessionGen numbers logins so a late session expiry cannot end a
	// newer session.
	sessionGen  atomic.Uint64
	sessionSubs events.Group

	userMu sync.RWMutex
	user   *models.User
}

// New returns an uninitialized Database over storages. The caller keeps
// ownership of storages and closes them after Close.
func New(storages *store.Storages, server adapter.ServerAdapter, dialer realtime.Dialer, cfg *config.ClientConfig, opts ...Option) *Database {
	d := &Database{
		storages: storages,
		server:   server,
		dialer:   dialer,
		cfg:      cfg,
		keys:     crypto.NewKeyChainService(),
		ids:      utils.NewUUIDGenerator(),
		now:      time.Now,
		bus:      events.NewBus(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.clock = utils.NewClockWithSource(d.now)

	return d
}

// Bus returns the event bus of the database.
func (d *Database) Bus() *events.Bus {
	return d.bus
}

// DeviceID returns the replica id stamped on local writes.
func (d *Database) DeviceID() string {
	return d.deviceID
}

// Init validates the local clock, migrates stored data and wires every
// component. A failed clock check or migration leaves the database
// unusable; the caller is expected to exit.
func (d *Database) Init(ctx context.Context) error {
	log := logger.FromContext(ctx)

	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.initialized.Load() {
		return ErrAlreadyInitialized
	}

	kv := d.storages.KeyValue

	if d.session == nil {
		var source session.TimeSource
		if d.server != nil {
			source = d.server
		}
		d.session = session.New(kv, source, d.cfg.Session)
	}
	if err := d.session.Validate(ctx); err != nil {
		log.Err(err).Str("func", "Database.Init").Msg("clock check failed")
		return err
	}

	deviceID, err := d.resolveDeviceID(ctx)
	if err != nil {
		return err
	}
	d.deviceID = deviceID

	d.migrator, err = migrate.New(kv, d.storages.DB, migrate.Steps(migrate.StepDeps{
		Items:    d.storages.Items,
		Outbox:   d.storages.Outbox,
		Clock:    d.clock,
		DeviceID: deviceID,
	})...)
	if err != nil {
		return err
	}
	if err = d.migrator.Run(ctx); err != nil {
		return err
	}

	d.wire()

	if err = d.restore(ctx); err != nil {
		d.teardown()
		return err
	}

	if err = d.session.Set(ctx); err != nil {
		d.teardown()
		return err
	}

	d.initialized.Store(true)
	log.Info().Str("device", deviceID).Int("schema", d.migrator.Latest()).Msg("database initialized")

	return nil
}

func (d *Database) resolveDeviceID(ctx context.Context) (string, error) {
	if id := d.cfg.App.DeviceID; id != "" {
		return id, nil
	}

	kv := d.storages.KeyValue

	var id string
	ok, err := kv.Read(ctx, DeviceIDKey, &id)
	if err != nil {
		return "", fmt.Errorf("error reading device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = d.ids.Generate()
	if err = kv.Write(ctx, DeviceIDKey, id); err != nil {
		return "", fmt.Errorf("error writing device id: %w", err)
	}

	return id, nil
}

func (d *Database) wire() {
	s := d.storages

	d.Vault = vault.New(s.KeyValue, d.keys, d.cfg.Vault)

	deps := collection.Deps{
		Tx:        s.DB,
		Items:     s.Items,
		Outbox:    s.Outbox,
		Vault:     d.Vault,
		Validator: validators.NewItemValidator(),
		Clock:     d.clock,
		IDs:       d.ids,
		Bus:       d.bus,
		DeviceID:  d.deviceID,
	}
	d.Content = collection.New[models.Content](models.TypeContent, deps)
	d.Notes = collection.NewNotes(deps, d.Content)
	d.Notebooks = collection.NewNotebooks(deps, d.Notes)
	d.Tags = collection.NewTags(deps)
	d.Colors = collection.NewColors(deps)
	d.Attachments = collection.NewAttachments(deps, s.Files, d.Notes)
	d.Lookup = collection.NewLookup(d.Notes)

	d.Outbox = outbox.New(s.DB, s.Outbox, s.Items, d.bus, d.cfg.Outbox)

	d.engine = syncer.New(syncer.Deps{
		Tx:          s.DB,
		KV:          s.KeyValue,
		Items:       s.Items,
		Outbox:      d.Outbox,
		Remote:      d.server,
		Resolver:    conflict.NewResolver(),
		Clock:       d.clock,
		Bus:         d.bus,
		Files:       s.Files,
		RemoteFiles: s.RemoteFiles,
		Attachments: d.Attachments,
	})

	d.channel = realtime.New(realtime.Deps{
		Dialer:       d.dialer,
		URL:          d.cfg.Adapter.RealtimeAddress,
		Token:        d.server.Token,
		Handler:      &realtimeHandler{db: d},
		Entitlements: d,
	})

	d.job = workers.NewSyncJob(d.engine)

	events.Subscribe(d.bus, d.dropBlob)
}

// restore brings back the cached user and the stored session. Without a
// stored session the configured token, if any, logs in.
func (d *Database) restore(ctx context.Context) error {
	kv := d.storages.KeyValue

	var user models.User
	ok, err := kv.Read(ctx, UserKey, &user)
	if err != nil {
		return fmt.Errorf("error reading cached user: %w", err)
	}
	if ok {
		d.setUser(&user)
	}

	var token string
	if _, err = kv.Read(ctx, TokenKey, &token); err != nil {
		return fmt.Errorf("error reading session token: %w", err)
	}
	if token == "" {
		if d.cfg.App.Token == "" {
			return nil
		}
		return d.login(ctx, d.cfg.App.Token)
	}

	d.server.SetToken(token)
	d.startSession(ctx, token)

	return nil
}

// ── Sync ─────────────────────────────────────────────────────────────────────

// Sync runs one sync cycle. Without full the cycle is skipped when nothing
// changed locally and no remote change is known.
func (d *Database) Sync(ctx context.Context, full bool) (syncer.Result, error) {
	if !d.initialized.Load() {
		return syncer.Result{}, ErrNotInitialized
	}
	if !d.loggedIn.Load() {
		return syncer.Result{}, ErrNotLoggedIn
	}

	return d.engine.Sync(ctx, full, false)
}

func (d *Database) SyncState() syncer.State {
	if d.engine == nil {
		return syncer.StateIdle
	}
	return d.engine.State()
}

func (d *Database) RealtimeState() realtime.State {
	if d.channel == nil {
		return realtime.StateDisconnected
	}
	return d.channel.State()
}

// LastSynced returns the end time of the last successful cycle, the zero
// time when none completed since login.
func (d *Database) LastSynced(ctx context.Context) (time.Time, error) {
	if !d.initialized.Load() {
		return time.Time{}, ErrNotInitialized
	}

	var ms int64
	ok, err := d.storages.KeyValue.Read(ctx, LastSyncedKey, &ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("error reading last sync time: %w", err)
	}
	if !ok {
		return time.Time{}, nil
	}

	return time.UnixMilli(ms), nil
}

func (d *Database) recordLastSynced(ctx context.Context, e events.SyncCompleted) {
	if err := d.storages.KeyValue.Write(ctx, LastSyncedKey, e.FinishedAt); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "Database.recordLastSynced").Msg("failed to record last sync time")
	}
}

// ── Attachments ──────────────────────────────────────────────────────────────

// OpenAttachment returns the bytes of an attachment, downloading them from
// the remote blob store when they are missing locally.
func (d *Database) OpenAttachment(ctx context.Context, hash string) (io.ReadCloser, error) {
	if !d.initialized.Load() {
		return nil, ErrNotInitialized
	}

	rc, err := d.Attachments.Open(ctx, hash)
	if !errors.Is(err, store.ErrBlobNotFound) {
		return rc, err
	}

	if err = d.engine.FetchAttachment(ctx, hash); err != nil {
		return nil, err
	}

	return d.Attachments.Open(ctx, hash)
}

// CleanupAttachments removes attachments no live note references.
func (d *Database) CleanupAttachments(ctx context.Context) (int, error) {
	if !d.initialized.Load() {
		return 0, ErrNotInitialized
	}
	return d.Attachments.Cleanup(ctx)
}

func (d *Database) dropBlob(ctx context.Context, e events.AttachmentDeleted) {
	if err := d.storages.Files.Delete(ctx, e.Hash); err != nil && !errors.Is(err, store.ErrBlobNotFound) {
		logger.FromContext(ctx).Err(err).Str("func", "Database.dropBlob").Str("hash", e.Hash).Msg("failed to delete attachment blob")
	}
}

// ── Shutdown ─────────────────────────────────────────────────────────────────

// Close stops background work and drops every bus subscription. Stored
// data and the session token are kept for the next start.
func (d *Database) Close() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.initialized.Swap(false) {
		return nil
	}

	d.loggedIn.Store(false)
	d.sessionSubs.UnsubscribeAll()
	d.teardown()
	d.bus.Close()

	return nil
}

// teardown stops every background activity and forgets the vault key.
func (d *Database) teardown() {
	if d.job != nil {
		d.job.Stop()
	}
	if d.channel != nil {
		d.channel.Disconnect()
	}
	if d.engine != nil {
		d.engine.Abort()
	}
	if d.Vault != nil {
		d.Vault.Lock()
	}
}
