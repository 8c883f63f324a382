// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter provides the transport to the go-note-keeper sync server.
//
// [ServerAdapter] decouples the sync engine, session and database
// orchestrator from the wire protocol. The package ships an HTTP/REST
// implementation built on resty ([NewHTTPServerAdapter]).
//
// Status codes are mapped by mapHTTPError so callers can use [errors.Is]:
// 401 becomes models.ErrUnauthorized and every retryable failure
// (transport errors, timeouts, 5xx) becomes models.ErrNetwork.
package adapter

import (
	"context"
	"time"

	"github.com/MKhiriev/go-note-keeper/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/server_adapter_mock.go -package=mock

// ServerAdapter defines transport-agnostic communication with the sync
// server.
type ServerAdapter interface {
	// SetToken stores the bearer token attached to authenticated requests.
	SetToken(token string)

	// Token returns the bearer token currently held, or "".
	Token() string

	// Pull returns the items of collection changed after cursorToken. An
	// empty cursorToken requests the whole collection.
	Pull(ctx context.Context, collection, cursorToken string) (models.PullResponse, error)

	// Push delivers outbox entries of one collection. A transport integrity
	// hash over the entries is attached automatically.
	Push(ctx context.Context, collection string, entries []models.OutboxEntry) (models.PushResponse, error)

	// ServerTime returns the server clock, the trusted time source of the
	// startup clock check.
	ServerTime(ctx context.Context) (time.Time, error)

	// RefreshToken exchanges the current token for a fresh one and stores it.
	RefreshToken(ctx context.Context) (string, error)

	// FetchUser returns the account of the current token.
	FetchUser(ctx context.Context) (models.User, error)
}
