// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the Matrix protocol engine behind package account.
//
// Build resolves the homeserver address (well-known discovery for bare
// server names), creates a messaging.Client, and opens the account's
// on-disk store: a SQLite database in the data directory holding the
// account the directory is bound to and the last sync token. The first
// successful login or restore binds the store. Any later login or
// restore for a different user or homeserver fails with an
// account-mismatch error, which is what triggers the account package's
// wipe-and-rebuild recovery. A store that cannot be opened fails Build.
//
// Sync runs the long-poll loop with exponential backoff on transient
// errors and returns an unauthorized error when the homeserver stops
// accepting the access token.
package engine
