// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package account runs the session lifecycle of Matrix chat accounts.
//
// A [Manager] is the single context object: it owns the [Registry] of
// live sessions, the per-account data directories, the session store
// and the SSO callback server. Nothing here is process-global, so tests
// build isolated Managers.
//
// [Manager.Login] returns immediately. A background attempt builds an
// engine [Client], tries to restore a saved session, and otherwise logs
// in with a password or an SSO round trip. Each attempt reports exactly
// one of OnConnected or OnLoginFailed to the [Listener]. When the
// engine signals an account mismatch (the on-disk store belongs to a
// different account or homeserver) the data directory is wiped through
// datadir.Wipe and the client rebuilt; a password login is retried once
// and an SSO exchange starts one fresh round, since login tokens are
// single-use.
//
// Once connected, a sync watcher observes the engine's sync loop. If
// the loop ends with an authentication failure the account is removed
// from the registry, its saved session deleted, and the listener told
// to re-login.
//
// The protocol engine is an interface ([Engine], [Client]) so that the
// lifecycle can be exercised against a fake; package engine provides
// the Matrix implementation.
package account
