// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers.
//
// [RequireReceive], [RequireSend], and [RequireClosed] are the only
// places tests wait on the wall clock; they bound a channel operation
// so a broken goroutine fails the test instead of hanging it. Logic
// that depends on elapsed time uses lib/clock's fake instead.
//
// [Logger] routes slog output through t.Log so failures show the
// orchestration trace interleaved with assertions.
package testutil
