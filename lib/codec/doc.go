// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration shared by on-disk formats:
// the sealed vault payload and the engine's cached sync state.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always produces the same bytes. Struct fields
// fall back to their json tags when no cbor tag is present, letting a
// type serve both encodings without duplicate annotations.
package codec
