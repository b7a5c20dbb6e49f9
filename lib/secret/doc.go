// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds passwords and keys outside the Go heap.
//
// A [Buffer] is an anonymous mmap region that is locked into RAM and
// excluded from core dumps. Close zeroes and unmaps it. The CLI reads
// account passwords into a Buffer, and the sealed keyring backend keeps
// its age identity in one for the lifetime of a vault operation.
//
// Strings handed to APIs that demand them (the Matrix login request
// body, the OS keyring) are unavoidable heap copies; keep those
// boundaries narrow.
package secret
