// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"

	"github.com/bureau-foundation/purple-matrix/lib/secret"
	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
)

// BuildRequest describes the client an Engine should build.
type BuildRequest struct {
	// AccountID is the account name as the user entered it.
	AccountID string

	// Homeserver is a server name or base URL.
	Homeserver string

	// DataDir holds the engine's on-disk store for this account. It
	// exists when Build is called.
	DataDir string

	// DeviceDisplayName names devices created by a fresh login.
	DeviceDisplayName string
}

// Engine builds protocol clients.
type Engine interface {
	Build(ctx context.Context, request BuildRequest) (Client, error)
}

// Client is one account's connection to the homeserver. Errors that
// carry lifecycle meaning are *EngineError values; see Classify.
//
// A Client is used by one login attempt at a time, and after a
// successful login by one sync watcher; Logout may be called
// concurrently with Sync.
type Client interface {
	// Restore resumes a saved session without contacting the login
	// endpoint.
	Restore(ctx context.Context, record sessionstore.Record) error

	// LoginPassword performs a password login. The password is read
	// but not closed.
	LoginPassword(ctx context.Context, user string, password *secret.Buffer) (sessionstore.Record, error)

	// SSOURL returns the authorization URL for an SSO round whose
	// browser redirect goes to redirectURL.
	SSOURL(ctx context.Context, redirectURL string) (string, error)

	// LoginToken exchanges an SSO login token.
	LoginToken(ctx context.Context, token string) (sessionstore.Record, error)

	// Sync runs the sync loop until ctx ends or a fatal error occurs,
	// calling onUpdate after each batch. It returns ctx.Err() when
	// cancelled. Transient failures are retried inside the engine.
	Sync(ctx context.Context, onUpdate func(SyncUpdate)) error

	// Logout invalidates the session on the server.
	Logout(ctx context.Context) error

	// Close releases the client. Idempotent.
	Close() error
}

// SyncUpdate summarizes one sync batch.
type SyncUpdate struct {
	NextBatch    string
	JoinedRooms  int
	InvitedRooms int
	LeftRooms    int
}
