package syncer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MKhiriev/go-note-keeper/internal/collection"
	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/conflict"
	"github.com/MKhiriev/go-note-keeper/internal/crypto"
	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/mock"
	"github.com/MKhiriev/go-note-keeper/internal/outbox"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/internal/utils"
	"github.com/MKhiriev/go-note-keeper/internal/validators"
	"github.com/MKhiriev/go-note-keeper/internal/vault"
	"github.com/MKhiriev/go-note-keeper/models"
)

func testContext() context.Context {
	l := zerolog.Nop()
	return l.WithContext(context.Background())
}

type testEnv struct {
	db      *store.DB
	kv      store.KeyValueStorage
	items   store.ItemRepository
	entries store.OutboxRepository
	files   store.FileStorage
	outbox  outbox.Outbox
	bus     *events.Bus
	remote  *mock.MockServerAdapter
	deps    Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := testContext()

	db, err := store.NewConnectSQLite(ctx, config.DB{DSN: filepath.Join(t.TempDir(), "notes.db")}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	files, err := store.NewLocalFileStorage(t.TempDir(), logger.Nop())
	require.NoError(t, err)

	env := &testEnv{
		db:      db,
		kv:      store.NewKeyValueRepository(db, logger.Nop()),
		items:   store.NewItemRepository(db, logger.Nop()),
		entries: store.NewOutboxRepository(db, logger.Nop()),
		files:   files,
		bus:     events.NewBus(),
		remote:  mock.NewMockServerAdapter(gomock.NewController(t)),
	}
	env.outbox = outbox.New(db, env.entries, env.items, env.bus, config.Outbox{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: time.Minute})
	env.deps = Deps{
		Tx:       db,
		KV:       env.kv,
		Items:    env.items,
		Outbox:   env.outbox,
		Remote:   env.remote,
		Resolver: conflict.NewResolver(),
		Clock:    utils.NewClockWithSource(func() time.Time { return time.UnixMilli(1000) }),
		Bus:      env.bus,
		Files:    files,
	}
	return env
}

func (e *testEnv) engine() *syncer {
	return New(e.deps).(*syncer)
}

func note(id string, edited int64, title string) models.Item {
	return models.Item{
		ID:          id,
		Type:        models.TypeNote,
		DateCreated: 1,
		DateEdited:  edited,
		DeviceID:    "device-a",
		Data:        json.RawMessage(`{"title":"` + title + `","contentId":"c-` + id + `"}`),
	}
}

// edit stores item as a pending local mutation.
func (e *testEnv) edit(t *testing.T, item models.Item) {
	t.Helper()
	require.NoError(t, e.items.Put(testContext(), item))
	require.NoError(t, e.outbox.Enqueue(testContext(), item))
}

// expectPulls expects one pull per collection in sync order. Collections
// missing from items pull nothing. Every next cursor token is "<name>-2".
func (e *testEnv) expectPulls(items map[string][]models.Item, tokens map[string]string) {
	var calls []any
	for _, t := range models.ItemTypes {
		name := t.Collection()
		calls = append(calls, e.remote.EXPECT().
			Pull(gomock.Any(), name, tokens[name]).
			Return(models.PullResponse{Items: items[name], NextCursorToken: name + "-2"}, nil))
	}
	gomock.InOrder(calls...)
}

// expectPullsThrough expects empty-cursor pulls in sync order up to and
// including the collection last, for cycles that stop there.
func (e *testEnv) expectPullsThrough(last string, items map[string][]models.Item) {
	var calls []any
	for _, t := range models.ItemTypes {
		name := t.Collection()
		calls = append(calls, e.remote.EXPECT().Pull(gomock.Any(), name, "").Return(models.PullResponse{Items: items[name]}, nil))
		if name == last {
			break
		}
	}
	gomock.InOrder(calls...)
}

// acceptPushes acknowledges every pushed entry and records what was pushed.
func (e *testEnv) acceptPushes(pushed *[]models.OutboxEntry) {
	e.remote.EXPECT().
		Push(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, entries []models.OutboxEntry) (models.PushResponse, error) {
			var resp models.PushResponse
			for _, entry := range entries {
				*pushed = append(*pushed, entry)
				resp.Accepted = append(resp.Accepted, entry.ItemID)
			}
			return resp, nil
		}).
		AnyTimes()
}

func (e *testEnv) cursor(t *testing.T, collection string) models.SyncCursor {
	t.Helper()
	var c models.SyncCursor
	_, err := e.kv.Read(testContext(), CursorKeyPrefix+collection, &c)
	require.NoError(t, err)
	return c
}

func (e *testEnv) pending(t *testing.T) []models.OutboxEntry {
	t.Helper()
	entries, err := e.outbox.Pending(testContext())
	require.NoError(t, err)
	return entries
}

// ── Round trips ──────────────────────────────────────────────────────────────

func TestSync_OfflineUpsertIsPushedAndAcknowledged(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	env.edit(t, note("n1", 150, "Draft"))

	var completed []events.SyncCompleted
	events.Subscribe(env.bus, func(_ context.Context, e events.SyncCompleted) { completed = append(completed, e) })

	var pushed []models.OutboxEntry
	env.expectPulls(nil, nil)
	env.acceptPushes(&pushed)

	s := env.engine()
	result, err := s.Sync(ctx, false, false)
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Flush.Delivered)
	require.Len(t, pushed, 1)
	assert.Equal(t, "n1", pushed[0].ItemID)

	assert.Empty(t, env.pending(t))
	stored, err := env.items.Get(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, stored.Remote)

	cursor := env.cursor(t, "notes")
	assert.Equal(t, "notes-2", cursor.LastSyncedToken)
	assert.Equal(t, int64(1000), cursor.LastSyncedAt)

	require.Len(t, completed, 1)
	assert.False(t, completed[0].Full)
	assert.Equal(t, StateIdle, s.State())
}

func TestSync_SecondCallWithoutChangesMakesNoRequests(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	env.edit(t, note("n1", 150, "Draft"))

	var pushed []models.OutboxEntry
	env.expectPulls(nil, nil)
	env.acceptPushes(&pushed)

	s := env.engine()
	_, err := s.Sync(ctx, false, false)
	require.NoError(t, err)

	// The mock fails the test on any further Pull.
	result, err := s.Sync(ctx, false, false)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestSync_ForceAndRemoteChangeBypassShortCircuit(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	s := env.engine()

	env.expectPulls(nil, nil)
	_, err := s.Sync(ctx, false, false)
	require.NoError(t, err)

	next := map[string]string{}
	for _, typ := range models.ItemTypes {
		next[typ.Collection()] = typ.Collection() + "-2"
	}

	env.expectPulls(nil, next)
	result, err := s.Sync(ctx, false, true)
	require.NoError(t, err)
	assert.False(t, result.Skipped)

	s.MarkRemoteChanged()
	env.expectPulls(nil, next)
	result, err = s.Sync(ctx, false, false)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
}

func TestSync_FullIgnoresCursors(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	require.NoError(t, env.kv.Write(ctx, CursorKeyPrefix+"notes", models.SyncCursor{LastSyncedToken: "old"}))

	env.expectPulls(nil, nil)

	var full []events.SyncCompleted
	events.Subscribe(env.bus, func(_ context.Context, e events.SyncCompleted) { full = append(full, e) })

	_, err := env.engine().Sync(ctx, true, false)
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.True(t, full[0].Full)
	assert.Equal(t, "notes-2", env.cursor(t, "notes").LastSyncedToken)
}

// ── Merge ────────────────────────────────────────────────────────────────────

func TestSync_MaterializesNewRemoteItems(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	env.expectPulls(map[string][]models.Item{"notes": {note("n9", 5000, "Remote")}}, nil)

	result, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pulled)

	stored, err := env.items.Get(ctx, "n9")
	require.NoError(t, err)
	assert.True(t, stored.Remote)
	assert.Equal(t, int64(5000), stored.DateEdited)
	assert.Empty(t, env.pending(t))

	assert.Greater(t, env.deps.Clock.Now(), int64(5000), "remote timestamps are observed")
}

func TestSync_RemoteTombstoneOfUnknownItemIsNotStored(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	gone := note("n9", 5000, "Remote")
	gone.Deleted = true
	env.expectPulls(map[string][]models.Item{"notes": {gone}}, nil)

	_, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)

	_, err = env.items.Get(ctx, "n9")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSync_RemoteNewerOverwritesUnchangedLocal(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	local := note("n1", 100, "Old")
	local.Remote = true
	require.NoError(t, env.items.Put(ctx, local))

	env.expectPulls(map[string][]models.Item{"notes": {note("n1", 200, "New")}}, nil)

	_, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)

	stored, err := env.items.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), stored.DateEdited)
	assert.Contains(t, string(stored.Data), "New")
}

func TestSync_LocalNewerEditWinsWithoutConflict(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	env.edit(t, note("n1", 150, "Local"))

	var conflicts []events.ConflictDetected
	events.Subscribe(env.bus, func(_ context.Context, e events.ConflictDetected) { conflicts = append(conflicts, e) })

	var pushed []models.OutboxEntry
	env.expectPulls(map[string][]models.Item{"notes": {note("n1", 140, "Remote")}}, nil)
	env.acceptPushes(&pushed)

	result, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)

	assert.Zero(t, result.Conflicts)
	assert.Empty(t, conflicts)

	require.Len(t, pushed, 1)
	assert.Equal(t, int64(150), pushed[0].Payload.DateEdited)

	stored, err := env.items.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), stored.DateEdited)
	assert.Contains(t, string(stored.Data), "Local")
}

func TestSync_ConcurrentContentEditsKeepBoth(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	env.edit(t, note("n1", 150, "Local"))

	var conflicts []events.ConflictDetected
	events.Subscribe(env.bus, func(_ context.Context, e events.ConflictDetected) { conflicts = append(conflicts, e) })

	var pushed []models.OutboxEntry
	env.expectPulls(map[string][]models.Item{"notes": {note("n1", 160, "Remote")}}, nil)
	env.acceptPushes(&pushed)

	result, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)

	require.Len(t, conflicts, 1)
	assert.Equal(t, events.ConflictDetected{Collection: "notes", ID: "n1", CloneID: "n1-copy"}, conflicts[0])

	original, err := env.items.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(160), original.DateEdited)
	assert.Contains(t, string(original.Data), "Remote")

	clone, err := env.items.Get(ctx, "n1-copy")
	require.NoError(t, err)
	assert.Equal(t, "n1", clone.ConflictOf)
	assert.Contains(t, string(clone.Data), "Local")
	assert.True(t, clone.Remote, "the copy was pushed in the same cycle")

	require.Len(t, pushed, 1)
	assert.Equal(t, "n1-copy", pushed[0].ItemID)
}

func TestSync_TypeMismatchIsSkipped(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	tag := models.Item{ID: "x1", Type: models.TypeTag, DateCreated: 1, DateEdited: 10, Remote: true, Data: json.RawMessage(`{"title":"go"}`)}
	require.NoError(t, env.items.Put(ctx, tag))

	env.expectPulls(map[string][]models.Item{"notes": {note("x1", 500, "Clash")}}, nil)

	result, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)
	assert.Zero(t, result.Pulled)

	stored, err := env.items.Get(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, models.TypeTag, stored.Type)
}

func TestSync_ReapplyingSameVersionIsIdempotent(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	remote := note("n1", 300, "Same")

	s := env.engine()
	env.expectPulls(map[string][]models.Item{"notes": {remote}}, nil)
	_, err := s.Sync(ctx, true, false)
	require.NoError(t, err)

	env.expectPulls(map[string][]models.Item{"notes": {remote}}, nil)
	_, err = s.Sync(ctx, true, false)
	require.NoError(t, err)

	all, err := env.items.List(ctx, store.ItemFilter{Type: models.TypeNote})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(300), all[0].DateEdited)
	assert.Empty(t, env.pending(t))
}

// ── Failures ─────────────────────────────────────────────────────────────────

func TestSync_PullFailureLeavesCursorsUntouched(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	require.NoError(t, env.kv.Write(ctx, CursorKeyPrefix+"notebooks", models.SyncCursor{LastSyncedToken: "nb-1"}))

	gomock.InOrder(
		env.remote.EXPECT().Pull(gomock.Any(), "notebooks", "nb-1").Return(models.PullResponse{NextCursorToken: "nb-2"}, nil),
		env.remote.EXPECT().Pull(gomock.Any(), "tags", "").Return(models.PullResponse{}, models.ErrNetwork),
	)

	s := env.engine()
	_, err := s.Sync(ctx, false, false)
	assert.ErrorIs(t, err, models.ErrNetwork)
	assert.Equal(t, "nb-1", env.cursor(t, "notebooks").LastSyncedToken)
	assert.Equal(t, StateIdle, s.State())

	// A failed cycle leaves the remote state unknown: the next call retries.
	env.expectPulls(nil, map[string]string{"notebooks": "nb-1"})
	result, err := s.Sync(ctx, false, false)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
}

func TestSync_PushFailureLeavesCursorsUntouched(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	env.edit(t, note("n1", 150, "Draft"))

	env.expectPulls(nil, nil)
	env.remote.EXPECT().Push(gomock.Any(), "notes", gomock.Any()).Return(models.PushResponse{}, models.ErrNetwork)

	_, err := env.engine().Sync(ctx, false, false)
	assert.ErrorIs(t, err, outbox.ErrIncompleteFlush)
	assert.ErrorIs(t, err, models.ErrNetwork)

	assert.Empty(t, env.cursor(t, "notes").LastSyncedToken)
	assert.Len(t, env.pending(t), 1)
}

func TestSync_UnauthorizedPublishesSessionExpired(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	var expired []events.SessionExpired
	events.Subscribe(env.bus, func(_ context.Context, e events.SessionExpired) { expired = append(expired, e) })

	env.remote.EXPECT().Pull(gomock.Any(), "notebooks", "").Return(models.PullResponse{}, models.ErrUnauthorized)

	_, err := env.engine().Sync(ctx, false, false)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	require.Len(t, expired, 1)
	assert.ErrorIs(t, expired[0].Err, models.ErrUnauthorized)
}

func TestSync_NetworkFailureDoesNotExpireSession(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	var expired int
	events.Subscribe(env.bus, func(context.Context, events.SessionExpired) { expired++ })

	env.remote.EXPECT().Pull(gomock.Any(), "notebooks", "").Return(models.PullResponse{}, models.ErrNetwork)

	_, err := env.engine().Sync(ctx, false, false)
	assert.ErrorIs(t, err, models.ErrNetwork)
	assert.Zero(t, expired)
}

// ── Collaborator failures ────────────────────────────────────────────────────

func TestSync_ResolverSeesPendingLocalEdit(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	env.edit(t, note("n1", 150, "Local"))

	resolver := mock.NewMockResolver(gomock.NewController(t))
	env.deps.Resolver = resolver

	var seen models.Conflict
	resolver.EXPECT().Resolve(gomock.Any()).DoAndReturn(func(c models.Conflict) conflict.Resolution {
		seen = c
		return conflict.Resolution{Outcome: conflict.KeepLocal, Rule: conflict.RuleLocalNewer}
	})

	var pushed []models.OutboxEntry
	env.expectPulls(map[string][]models.Item{"notes": {note("n1", 160, "Remote")}}, nil)
	env.acceptPushes(&pushed)

	_, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)

	assert.True(t, seen.LocalPending)
	assert.Equal(t, int64(150), seen.Local.DateEdited)
	assert.Equal(t, int64(160), seen.Remote.DateEdited)
	assert.True(t, seen.Remote.Remote)

	stored, err := env.items.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Contains(t, string(stored.Data), "Local")
	require.Len(t, pushed, 1)
	assert.Equal(t, int64(150), pushed[0].Payload.DateEdited)
}

func TestSync_OutboxFailureRollsBackMerge(t *testing.T) {
	diskFull := errors.New("disk full")

	tests := []struct {
		name    string
		outcome *conflict.Outcome
		prepare func(o *mock.MockOutbox)
	}{
		{
			name:    "pending lookup fails",
			prepare: func(o *mock.MockOutbox) { o.EXPECT().HasPending(gomock.Any(), "notes", "n1").Return(false, diskFull) },
		},
		{
			name:    "drop after remote wins fails",
			outcome: func() *conflict.Outcome { o := conflict.KeepRemote; return &o }(),
			prepare: func(o *mock.MockOutbox) {
				o.EXPECT().HasPending(gomock.Any(), "notes", "n1").Return(true, nil)
				o.EXPECT().Drop(gomock.Any(), "notes", "n1").Return(diskFull)
			},
		},
		{
			name: "queueing the copy fails",
			prepare: func(o *mock.MockOutbox) {
				o.EXPECT().HasPending(gomock.Any(), "notes", "n1").Return(true, nil)
				o.EXPECT().Drop(gomock.Any(), "notes", "n1").Return(nil)
				o.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(diskFull)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext()
			env := newTestEnv(t)
			ctrl := gomock.NewController(t)

			require.NoError(t, env.items.Put(ctx, note("n1", 150, "Local")))

			out := mock.NewMockOutbox(ctrl)
			tt.prepare(out)
			env.deps.Outbox = out
			if tt.outcome != nil {
				resolver := mock.NewMockResolver(ctrl)
				resolver.EXPECT().Resolve(gomock.Any()).Return(conflict.Resolution{Outcome: *tt.outcome})
				env.deps.Resolver = resolver
			}

			var conflicts int
			events.Subscribe(env.bus, func(context.Context, events.ConflictDetected) { conflicts++ })

			env.expectPullsThrough("notes", map[string][]models.Item{"notes": {note("n1", 160, "Remote")}})

			_, err := env.engine().Sync(ctx, true, false)
			assert.ErrorIs(t, err, diskFull)

			// транзакция слияния откатилась целиком
			stored, err := env.items.Get(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, int64(150), stored.DateEdited)
			assert.Contains(t, string(stored.Data), "Local")
			_, err = env.items.Get(ctx, "n1-copy")
			assert.ErrorIs(t, err, store.ErrNotFound)
			assert.Zero(t, conflicts)
			assert.Empty(t, env.cursor(t, "notebooks").LastSyncedToken)
		})
	}
}

func TestSync_FlushErrorFromOutbox(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	out := mock.NewMockOutbox(gomock.NewController(t))
	out.EXPECT().Flush(gomock.Any(), gomock.Any()).Return(outbox.FlushResult{}, errors.New("queue unreadable"))
	env.deps.Outbox = out

	env.expectPulls(nil, nil)

	_, err := env.engine().Sync(ctx, true, false)
	assert.ErrorContains(t, err, "queue unreadable")
	assert.Empty(t, env.cursor(t, "notes").LastSyncedToken, "cursors advance only after the push")
}

// ── Concurrency ──────────────────────────────────────────────────────────────

func TestSync_ConcurrentCallsShareOneCycle(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	started := make(chan struct{})
	release := make(chan struct{})
	first := env.remote.EXPECT().Pull(gomock.Any(), "notebooks", "").
		DoAndReturn(func(context.Context, string, string) (models.PullResponse, error) {
			close(started)
			<-release
			return models.PullResponse{}, nil
		})
	calls := []any{first}
	for _, typ := range models.ItemTypes[1:] {
		calls = append(calls, env.remote.EXPECT().Pull(gomock.Any(), typ.Collection(), "").Return(models.PullResponse{}, nil))
	}
	gomock.InOrder(calls...)

	s := env.engine()

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = s.Sync(ctx, false, false)
	}()
	<-started
	assert.Equal(t, StateFetching, s.State())

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Sync(ctx, false, true)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestSync_AbortCancelsRunningCycle(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	started := make(chan struct{})
	env.remote.EXPECT().Pull(gomock.Any(), "notebooks", "").
		DoAndReturn(func(ctx context.Context, _, _ string) (models.PullResponse, error) {
			close(started)
			<-ctx.Done()
			return models.PullResponse{}, ctx.Err()
		})

	s := env.engine()
	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(ctx, false, false)
		done <- err
	}()

	<-started
	s.Abort()

	err := <-done
	assert.ErrorIs(t, err, ErrSyncAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, s.State())
	assert.Empty(t, env.cursor(t, "notebooks").LastSyncedToken)
}

func TestSync_AbortHaltsUntilResume(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	s := env.engine()

	s.Abort()
	assert.Equal(t, StateAborted, s.State())

	// no pull is expected: a halted engine starts no cycle
	_, err := s.Sync(ctx, false, true)
	assert.ErrorIs(t, err, ErrSyncAborted)

	s.Resume()
	assert.Equal(t, StateIdle, s.State())

	env.expectPulls(nil, nil)
	result, err := s.Sync(ctx, false, true)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
}

func TestSync_CallerCancellationReturnsEarly(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := env.engine().Sync(ctx, false, true)
	assert.ErrorIs(t, err, context.Canceled)
}

// ── Tombstones ───────────────────────────────────────────────────────────────

func TestSync_AcknowledgedTombstonesArePurged(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	gone := note("n1", 150, "Gone")
	gone.Deleted = true
	env.edit(t, gone)

	var pushed []models.OutboxEntry
	env.expectPulls(nil, nil)
	env.acceptPushes(&pushed)

	_, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)

	require.Len(t, pushed, 1)
	assert.Equal(t, models.OperationDelete, pushed[0].Operation)

	_, err = env.items.Get(ctx, "n1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSync_UnacknowledgedTombstonesStay(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	gone := note("n1", 150, "Gone")
	gone.Deleted = true
	env.edit(t, gone)

	env.expectPulls(nil, nil)
	env.remote.EXPECT().Push(gomock.Any(), "notes", gomock.Any()).
		Return(models.PushResponse{Rejected: []models.Rejection{{ID: "n1", Reason: "busy"}}}, nil)

	_, err := env.engine().Sync(ctx, false, false)
	require.Error(t, err)

	stored, err := env.items.Get(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
}

// ── Attachments ──────────────────────────────────────────────────────────────

type memRemoteFiles struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	uploads int
}

func newMemRemoteFiles() *memRemoteFiles {
	return &memRemoteFiles{blobs: make(map[string][]byte)}
}

func (m *memRemoteFiles) Upload(_ context.Context, hash string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[hash] = data
	m.uploads++
	return nil
}

func (m *memRemoteFiles) Download(_ context.Context, hash string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[hash]
	if !ok {
		return nil, store.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memRemoteFiles) Exists(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[hash]
	return ok, nil
}

func (m *memRemoteFiles) Delete(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, hash)
	return nil
}

func (e *testEnv) withAttachments(t *testing.T) (*collection.Attachments, *memRemoteFiles) {
	t.Helper()

	keys := crypto.NewKeyChainServiceWithParams(crypto.KDFParams{ArgonTime: 1, ArgonMemory: 1024, ArgonThreads: 1, PBKDF2Iterations: 1000})
	deps := collection.Deps{
		Tx:        e.db,
		Items:     e.items,
		Outbox:    e.entries,
		Vault:     vault.New(e.kv, keys, config.Vault{}),
		Validator: validators.NewItemValidator(),
		Clock:     e.deps.Clock,
		IDs:       utils.NewUUIDGenerator(),
		Bus:       e.bus,
		DeviceID:  "device-a",
	}
	notes := collection.NewNotes(deps, collection.New[models.Content](models.TypeContent, deps))
	attachments := collection.NewAttachments(deps, e.files, notes)

	remote := newMemRemoteFiles()
	e.deps.Attachments = attachments
	e.deps.RemoteFiles = remote
	return attachments, remote
}

func TestSync_UploadsPendingBlobsBeforePush(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	attachments, remoteFiles := env.withAttachments(t)

	doc, err := attachments.Add(ctx, strings.NewReader("picture"), "a.png", "image/png", "")
	require.NoError(t, err)

	var pushed []models.OutboxEntry
	env.expectPulls(nil, nil)
	env.acceptPushes(&pushed)

	result, err := env.engine().Sync(ctx, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, []byte("picture"), remoteFiles.blobs[doc.ID])

	require.Len(t, pushed, 1)
	var payload models.Attachment
	require.NoError(t, json.Unmarshal(pushed[0].Payload.Data, &payload))
	assert.True(t, payload.Uploaded, "the pushed metadata records the upload")
}

func TestSync_RemovedAttachmentIsNotUploaded(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	attachments, remoteFiles := env.withAttachments(t)

	doc, err := attachments.Add(ctx, strings.NewReader("picture"), "a.png", "image/png", "")
	require.NoError(t, err)
	require.NoError(t, attachments.Remove(ctx, doc.ID))

	var pushed []models.OutboxEntry
	env.expectPulls(nil, nil)
	env.acceptPushes(&pushed)

	_, err = env.engine().Sync(ctx, false, false)
	require.NoError(t, err)
	assert.Zero(t, remoteFiles.uploads)

	exists, err := env.files.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, exists, "bytes of a purged attachment are dropped")
}

func TestSync_PurgedAttachmentIsDeletedRemotely(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	attachments, remoteFiles := env.withAttachments(t)

	doc, err := attachments.Add(ctx, strings.NewReader("picture"), "a.png", "image/png", "")
	require.NoError(t, err)

	var pushed []models.OutboxEntry
	env.acceptPushes(&pushed)

	s := env.engine()
	env.expectPulls(nil, nil)
	_, err = s.Sync(ctx, true, false)
	require.NoError(t, err)
	require.Contains(t, remoteFiles.blobs, doc.ID)

	require.NoError(t, attachments.Remove(ctx, doc.ID))

	env.expectPulls(nil, nil)
	_, err = s.Sync(ctx, true, false)
	require.NoError(t, err)

	assert.NotContains(t, remoteFiles.blobs, doc.ID)
	exists, err := env.files.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = env.items.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSync_UnacknowledgedAttachmentTombstoneKeepsRemoteBlob(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)
	attachments, remoteFiles := env.withAttachments(t)

	doc, err := attachments.Add(ctx, strings.NewReader("picture"), "a.png", "image/png", "")
	require.NoError(t, err)
	remoteFiles.blobs[doc.ID] = []byte("picture")
	require.NoError(t, attachments.Remove(ctx, doc.ID))

	env.expectPulls(nil, nil)
	env.remote.EXPECT().Push(gomock.Any(), "attachments", gomock.Any()).Return(models.PushResponse{}, models.ErrNetwork)

	_, err = env.engine().Sync(ctx, true, false)
	require.Error(t, err)
	assert.Contains(t, remoteFiles.blobs, doc.ID)
}

func TestFetchAttachment(t *testing.T) {
	ctx := testContext()
	env := newTestEnv(t)

	s := env.engine()
	assert.ErrorIs(t, s.FetchAttachment(ctx, "abc"), store.ErrRemoteFilesDisabled)

	_, remoteFiles := env.withAttachments(t)
	s = env.engine()

	hash := sha256Hex([]byte("remote bytes"))
	remoteFiles.blobs[hash] = []byte("remote bytes")
	require.NoError(t, s.FetchAttachment(ctx, hash))

	exists, err := env.files.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, exists)

	tampered := sha256Hex([]byte("expected"))
	remoteFiles.blobs[tampered] = []byte("something else")
	assert.ErrorIs(t, s.FetchAttachment(ctx, tampered), ErrBlobIntegrity)

	missing := sha256Hex([]byte("missing"))
	assert.ErrorIs(t, s.FetchAttachment(ctx, missing), store.ErrBlobNotFound)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateFetching, "fetching"},
		{StateMerging, "merging"},
		{StatePushing, "pushing"},
		{StateAborted, "aborted"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
