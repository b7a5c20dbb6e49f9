// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore persists one Matrix session record per account.
//
// The record itself lives in a [keyring.Keyring] entry named by a fixed
// service namespace plus the account ID. Alongside it, the account's
// data directory gets a session.json marker containing only
//
//	{"keyring": true}
//
// which says "a record exists and the keyring holds it". Older installs
// wrote the full record to session.json in plaintext; Load still reads
// such a file when the keyring has nothing, and the next Save replaces
// it with the marker.
package sessionstore
