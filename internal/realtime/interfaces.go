// Package realtime listens for server push messages over a websocket and
// turns them into calls on a [Handler].
//
// At most one connection is live. Concurrent Connect calls share one dial,
// and a failed or dropped connection stays down until the next Connect:
// the channel never retries on its own.
package realtime

import (
	"context"
	"net/http"

	"github.com/MKhiriev/go-note-keeper/models"
)

// Conn is the read side of an established websocket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Entitlements answers capability checks for the current user.
type Entitlements interface {
	IsPremium(feature string) bool
}

// Handler reacts to decoded server messages.
type Handler interface {
	// Upgrade stores sub as the subscription of the cached user.
	Upgrade(ctx context.Context, sub models.Subscription) error
	// ForceLogout ends the session for reason.
	ForceLogout(ctx context.Context, reason string) error
	// EmailConfirmed refreshes the token and refetches the user.
	EmailConfirmed(ctx context.Context) error
	// SyncRequested runs the sync the server asked for.
	SyncRequested(ctx context.Context, req models.SyncRequest) error
}

type Channel interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() State
}
