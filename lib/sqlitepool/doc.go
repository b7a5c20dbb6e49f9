// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the per-account engine database with a
// fixed pragma set.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers [Pool.Take]
// a connection, do their work, and [Pool.Put] it back; a connection is
// never shared between goroutines.
//
// Every connection gets:
//
//   - journal_mode=WAL
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - temp_store=MEMORY
//
// The engine database lives inside the account data directory, so a
// safe wipe of that directory removes it along with the WAL and shm
// side files. Close the pool before wiping.
package sqlitepool
