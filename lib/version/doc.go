// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for purple-matrix
// binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X. A build without them falls back to the VCS stamp the Go
// toolchain records in the binary, and then to "unknown".
package version
