// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/models"
)

// FeatureDatabaseSync is the entitlement that enables server-initiated sync.
const FeatureDatabaseSync = "databaseSync"

const flightKey = "connect"

type Deps struct {
	Dialer       Dialer
	URL          string
	Token        func() string
	Handler      Handler
	Entitlements Entitlements
}

type channel struct {
	deps   Deps
	flight singleflight.Group

	mu    sync.Mutex
	state State
	conn  Conn
	// epoch changes on every Disconnect so a dial or read loop that
	// outlived its connection can tell.
	epoch uint64
}

func New(deps Deps) Channel {
	return &channel{deps: deps}
}

func (c *channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials unless a connection is live. Callers arriving while a dial
// is in flight wait for its outcome instead of dialing again.
func (c *channel) Connect(ctx context.Context) error {
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		return nil, c.connect(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *channel) connect(ctx context.Context) error {
	log := logger.FromContext(ctx)

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	epoch := c.epoch
	c.mu.Unlock()

	token := ""
	if c.deps.Token != nil {
		token = c.deps.Token()
	}
	if token == "" {
		c.settle(epoch, StateDisconnected)
		return ErrNoToken
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, err := c.deps.Dialer.Dial(ctx, c.deps.URL, header)
	if err != nil {
		c.settle(epoch, StateDisconnected)
		log.Err(err).Str("func", "channel.connect").Str("url", c.deps.URL).Msg("realtime connect failed")
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		conn.Close()
		return ErrDisconnected
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	log.Info().Str("url", c.deps.URL).Msg("realtime connected")
	go c.readLoop(ctx, conn, epoch)

	return nil
}

// settle moves to state unless a Disconnect happened since epoch.
func (c *channel) settle(epoch uint64, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.state = state
	}
}

func (c *channel) Disconnect() {
	c.mu.Lock()
	c.epoch++
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *channel) readLoop(ctx context.Context, conn Conn, epoch uint64) {
	log := logger.FromContext(ctx)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.epoch == epoch && c.conn == conn
			if current {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()

			if current {
				conn.Close()
				log.Warn().Err(err).Str("func", "channel.readLoop").Msg("realtime connection lost")
			}
			return
		}

		c.dispatch(ctx, raw)
	}
}

func (c *channel) dispatch(ctx context.Context, raw []byte) {
	log := logger.FromContext(ctx)

	env, err := ParseEnvelope(raw)
	if err != nil {
		log.Warn().Err(err).Str("func", "channel.dispatch").Msg("malformed realtime message dropped")
		return
	}

	h := c.deps.Handler
	switch env.Type {
	case models.MessageUpgrade:
		var sub models.Subscription
		if sub, err = ParseSubscription(env); err != nil {
			log.Warn().Err(err).Str("func", "channel.dispatch").Msg("malformed realtime message dropped")
			return
		}
		err = h.Upgrade(ctx, sub)
	case models.MessageUserDeleted:
		err = h.ForceLogout(ctx, events.ReasonAccountDeleted)
	case models.MessageUserPasswordChanged:
		err = h.ForceLogout(ctx, events.ReasonPasswordChanged)
	case models.MessageEmailConfirmed:
		err = h.EmailConfirmed(ctx)
	case models.MessageSync:
		if c.deps.Entitlements == nil || !c.deps.Entitlements.IsPremium(FeatureDatabaseSync) {
			log.Debug().Str("func", "channel.dispatch").Msg("sync message ignored without entitlement")
			return
		}
		var req models.SyncRequest
		if req, err = ParseSyncRequest(env); err != nil {
			log.Warn().Err(err).Str("func", "channel.dispatch").Msg("malformed realtime message dropped")
			return
		}
		err = h.SyncRequested(ctx, req)
	default:
		log.Debug().Str("type", env.Type).Msg("unknown realtime message ignored")
		return
	}

	if err != nil {
		log.Err(err).Str("func", "channel.dispatch").Str("type", env.Type).Msg("realtime message handler failed")
	}
}
