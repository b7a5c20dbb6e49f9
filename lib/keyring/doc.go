// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring is the secure keyed store behind session records.
//
// A [Keyring] maps (service, account) to a secret string. Three
// implementations exist:
//
//   - [System] uses the platform credential store through
//     github.com/zalando/go-keyring (Secret Service on Linux,
//     Keychain on macOS, Credential Manager on Windows).
//   - [Sealed] keeps every entry in one age-encrypted file, for hosts
//     without a session bus. The identity is generated on first use
//     and stored owner-only next to the vault.
//   - [Memory] is process-local and used by tests.
//
// Get returns [ErrNotFound] when no entry exists, regardless of
// backend.
package keyring
