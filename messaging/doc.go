// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the slice of the Matrix client-server API that
// an account session lifecycle needs.
//
// [Client] is an unauthenticated client bound to one homeserver. It
// performs password login, login-token exchange (the last step of an SSO
// round trip), login flow discovery and SSO redirect URL construction.
// Each successful login returns a [DirectSession].
//
// [DirectSession] carries an access token in mmap-backed secret.Buffer
// memory and exposes the authenticated calls the lifecycle depends on:
// WhoAmI for validating a restored token, Sync for the long-poll loop and
// Logout for invalidating the device server-side. Callers must call
// Close to release the protected memory.
//
// [Discover] resolves a server name to a client base URL through the
// /.well-known/matrix/client document.
//
// All API errors are returned as [*MatrixError] with the standard Matrix
// error code and HTTP status code. [IsMatrixError] tests for a specific
// code and [IsUnauthorized] tests for an invalidated token.
package messaging
