// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref holds validated Matrix identifier types.
//
// [UserID] is a full "@localpart:server" identifier as returned by the
// homeserver. [ServerName] is the part after the colon. Account names
// typed by a user arrive in the looser "localpart:server" form without
// the sigil; [ParseAccountName] accepts both.
//
// Each type is an immutable value. The zero value is invalid and
// reports IsZero.
package ref
