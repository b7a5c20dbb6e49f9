// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for the headless credential
// vault. It generates x25519 keypairs, encrypts a payload to one or
// more recipients, and decrypts with a private key held in a
// [secret.Buffer].
//
// Ciphertext is returned base64-encoded so vault files stay printable
// and diff cleanly under backup tooling.
package sealed
