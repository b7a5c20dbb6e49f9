// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datadir owns the per-account working directories.
//
// Each account gets <root>/matrix_rust_data/<sanitized account name>,
// created owner-only. The directory holds the protocol engine database
// and the session marker file.
//
// [Wipe] is the only code path that deletes a directory tree. It
// refuses any path that does not contain [Sentinel] or that has too
// few components, and returns [ErrUnsafePath] so the caller fails the
// operation instead of carrying on with stale state.
//
// [Paths] records which directory each in-flight login chose, so that
// recovery paths running later (sync failure, deactivation) wipe the
// directory that was actually used.
package datadir
