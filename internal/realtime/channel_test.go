package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/models"
)

func testContext() context.Context {
	l := zerolog.Nop()
	return l.WithContext(context.Background())
}

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw, ok := <-c.frames:
		if !ok {
			return 0, nil, errors.New("connection reset")
		}
		return websocket.TextMessage, raw, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	dials  atomic.Int32
	gate   chan struct{}
	err    error
	conn   *fakeConn
	header http.Header
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, header http.Header) (Conn, error) {
	d.dials.Add(1)
	d.header = header
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
	syncs []models.SyncRequest
	subs  []models.Subscription
}

func (h *recordingHandler) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *recordingHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *recordingHandler) Upgrade(_ context.Context, sub models.Subscription) error {
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
	h.record("upgrade")
	return nil
}

func (h *recordingHandler) ForceLogout(_ context.Context, reason string) error {
	h.record("logout:" + reason)
	return nil
}

func (h *recordingHandler) EmailConfirmed(context.Context) error {
	h.record("email")
	return nil
}

func (h *recordingHandler) SyncRequested(_ context.Context, req models.SyncRequest) error {
	h.mu.Lock()
	h.syncs = append(h.syncs, req)
	h.mu.Unlock()
	h.record("sync")
	return nil
}

type premium bool

func (p premium) IsPremium(feature string) bool {
	return bool(p) && feature == FeatureDatabaseSync
}

func newTestChannel(dialer Dialer, handler Handler, entitled bool) Channel {
	return New(Deps{
		Dialer:       dialer,
		URL:          "ws://notes.test/realtime",
		Token:        func() string { return "token-1" },
		Handler:      handler,
		Entitlements: premium(entitled),
	})
}

// ── Connect ──────────────────────────────────────────────────────────────────

func TestConnect_ConcurrentCallsDialOnce(t *testing.T) {
	ctx := testContext()
	dialer := &fakeDialer{gate: make(chan struct{}), conn: newFakeConn()}
	ch := newTestChannel(dialer, &recordingHandler{}, true)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = ch.Connect(ctx)
		}()
	}

	require.Eventually(t, func() bool { return dialer.dials.Load() == 1 }, waitFor, tick)
	assert.Equal(t, StateConnecting, ch.State())
	time.Sleep(20 * time.Millisecond)
	close(dialer.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, StateConnected, ch.State())
	assert.Equal(t, "Bearer token-1", dialer.header.Get("Authorization"))

	require.NoError(t, ch.Connect(ctx))
	assert.Equal(t, int32(1), dialer.dials.Load(), "a live connection is reused")
}

func TestConnect_FailureStaysDisconnected(t *testing.T) {
	ctx := testContext()
	dialer := &fakeDialer{err: models.ErrNetwork}
	ch := newTestChannel(dialer, &recordingHandler{}, true)

	err := ch.Connect(ctx)
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, models.ErrNetwork)
	assert.Equal(t, StateDisconnected, ch.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), dialer.dials.Load(), "no retry loop")
}

func TestConnect_WithoutToken(t *testing.T) {
	dialer := &fakeDialer{conn: newFakeConn()}
	ch := New(Deps{Dialer: dialer, Token: func() string { return "" }, Handler: &recordingHandler{}})

	assert.ErrorIs(t, ch.Connect(testContext()), ErrNoToken)
	assert.Zero(t, dialer.dials.Load())
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestConnect_DisconnectDuringDial(t *testing.T) {
	ctx := testContext()
	conn := newFakeConn()
	dialer := &fakeDialer{gate: make(chan struct{}), conn: conn}
	ch := newTestChannel(dialer, &recordingHandler{}, true)

	done := make(chan error, 1)
	go func() { done <- ch.Connect(ctx) }()

	require.Eventually(t, func() bool { return dialer.dials.Load() == 1 }, waitFor, tick)
	ch.Disconnect()
	close(dialer.gate)

	assert.ErrorIs(t, <-done, ErrDisconnected)
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestConnect_LostConnectionIsNotRedialed(t *testing.T) {
	ctx := testContext()
	conn := newFakeConn()
	dialer := &fakeDialer{conn: conn}
	ch := newTestChannel(dialer, &recordingHandler{}, true)

	require.NoError(t, ch.Connect(ctx))
	close(conn.frames)

	require.Eventually(t, func() bool { return ch.State() == StateDisconnected }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), dialer.dials.Load())
}

func TestDisconnect_Idempotent(t *testing.T) {
	conn := newFakeConn()
	ch := newTestChannel(&fakeDialer{conn: conn}, &recordingHandler{}, true)
	require.NoError(t, ch.Connect(testContext()))

	ch.Disconnect()
	ch.Disconnect()

	assert.True(t, conn.isClosed())
	assert.Equal(t, StateDisconnected, ch.State())
}

// ── Dispatch ─────────────────────────────────────────────────────────────────

func TestDispatch_RoutesMessages(t *testing.T) {
	ctx := testContext()
	conn := newFakeConn()
	handler := &recordingHandler{}
	ch := newTestChannel(&fakeDialer{conn: conn}, handler, true)
	require.NoError(t, ch.Connect(ctx))

	conn.frames <- []byte(`{"type":"upgrade","data":"{\"type\":3,\"expiry\":1700000000000}"}`)
	conn.frames <- []byte(`{"type":"userDeleted","data":"{}"}`)
	conn.frames <- []byte(`{"type":"userPasswordChanged","data":"{}"}`)
	conn.frames <- []byte(`{"type":"emailConfirmed","data":"true"}`)
	conn.frames <- []byte(`{"type":"sync","data":"{\"collections\":[\"notes\"]}"}`)
	conn.frames <- []byte(`{"type":"somethingNew","data":"{}"}`)

	want := []string{
		"upgrade",
		"logout:" + events.ReasonAccountDeleted,
		"logout:" + events.ReasonPasswordChanged,
		"email",
		"sync",
	}
	require.Eventually(t, func() bool { return len(handler.Calls()) == len(want) }, waitFor, tick)
	assert.Equal(t, want, handler.Calls())
	assert.Equal(t, []models.SyncRequest{{Collections: []string{"notes"}}}, handler.syncs)
	assert.Equal(t, []models.Subscription{{Type: models.SubscriptionPremium, Expiry: 1700000000000}}, handler.subs)
}

func TestDispatch_SyncRequiresEntitlement(t *testing.T) {
	ctx := testContext()
	conn := newFakeConn()
	handler := &recordingHandler{}
	ch := newTestChannel(&fakeDialer{conn: conn}, handler, false)
	require.NoError(t, ch.Connect(ctx))

	conn.frames <- []byte(`{"type":"sync","data":"{}"}`)
	conn.frames <- []byte(`{"type":"upgrade","data":"{}"}`)

	require.Eventually(t, func() bool { return len(handler.Calls()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"upgrade"}, handler.Calls())
}

func TestDispatch_MalformedMessagesAreDropped(t *testing.T) {
	ctx := testContext()
	conn := newFakeConn()
	handler := &recordingHandler{}
	ch := newTestChannel(&fakeDialer{conn: conn}, handler, true)
	require.NoError(t, ch.Connect(ctx))

	conn.frames <- []byte(`not json`)
	conn.frames <- []byte(`{"data":"{}"}`)
	conn.frames <- []byte(`{"type":"sync","data":"{broken"}`)
	// data пустая или отсутствует: кадр отбрасывается для любого типа
	conn.frames <- []byte(`{"type":"emailConfirmed","data":""}`)
	conn.frames <- []byte(`{"type":"userDeleted"}`)
	conn.frames <- []byte(`{"type":"upgrade","data":"[1]"}`)
	conn.frames <- []byte(`{"type":"emailConfirmed","data":"{}"}`)

	require.Eventually(t, func() bool { return len(handler.Calls()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"email"}, handler.Calls())
	assert.Equal(t, StateConnected, ch.State(), "a bad frame does not drop the connection")
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    models.Envelope
		wantErr bool
	}{
		{name: "type only", raw: `{"type":"upgrade"}`, wantErr: true},
		{name: "empty data", raw: `{"type":"emailConfirmed","data":""}`, wantErr: true},
		{name: "with data", raw: `{"type":"sync","data":"{\"full\":true}"}`, want: models.Envelope{Type: "sync", Data: `{"full":true}`}},
		{name: "not json", raw: `<html>`, wantErr: true},
		{name: "missing type", raw: `{"data":"{}"}`, wantErr: true},
		{name: "data not json", raw: `{"type":"sync","data":"nope"}`, wantErr: true},
		{name: "data not a string", raw: `{"type":"sync","data":{}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvelope([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSyncRequest(t *testing.T) {
	req, err := ParseSyncRequest(models.Envelope{Type: models.MessageSync, Data: `{}`})
	require.NoError(t, err)
	assert.Equal(t, models.SyncRequest{}, req)

	req, err = ParseSyncRequest(models.Envelope{Type: models.MessageSync, Data: `{"full":true}`})
	require.NoError(t, err)
	assert.True(t, req.Full)

	_, err = ParseSyncRequest(models.Envelope{Type: models.MessageSync, Data: `[1]`})
	assert.ErrorIs(t, err, models.ErrMalformedMessage)
}

func TestParseSubscription(t *testing.T) {
	sub, err := ParseSubscription(models.Envelope{Type: models.MessageUpgrade, Data: `{"type":2,"expiry":5}`})
	require.NoError(t, err)
	assert.Equal(t, models.Subscription{Type: models.SubscriptionBeta, Expiry: 5}, sub)

	_, err = ParseSubscription(models.Envelope{Type: models.MessageUpgrade, Data: `"premium"`})
	assert.ErrorIs(t, err, models.ErrMalformedMessage)
}

// ── Websocket transport ──────────────────────────────────────────────────────

func newWebsocketServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, f := range frames {
			if err = conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err = conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebsocketDialer_DeliversFrames(t *testing.T) {
	ctx := testContext()
	srv := newWebsocketServer(t, `{"type":"emailConfirmed","data":"{}"}`)

	handler := &recordingHandler{}
	ch := New(Deps{
		Dialer:  NewWebsocketDialer(time.Second),
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:   func() string { return "token-1" },
		Handler: handler,
	})
	require.NoError(t, ch.Connect(ctx))
	t.Cleanup(ch.Disconnect)

	require.Eventually(t, func() bool { return len(handler.Calls()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"email"}, handler.Calls())
}

func TestWebsocketDialer_Unauthorized(t *testing.T) {
	srv := newWebsocketServer(t)

	_, err := NewWebsocketDialer(time.Second).Dial(testContext(), "ws"+strings.TrimPrefix(srv.URL, "http"), http.Header{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestWebsocketDialer_Unreachable(t *testing.T) {
	srv := newWebsocketServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := NewWebsocketDialer(time.Second).Dial(testContext(), url, http.Header{})
	assert.ErrorIs(t, err, models.ErrNetwork)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", State(9).String())
}
