// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads for the Matrix client and
// the well-known discovery probe.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize caps JSON API response reads. Sync responses for a
// large account are well under this.
const MaxResponseSize int64 = 256 << 20

// ReadResponse reads body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads body up to MaxResponseSize bytes and decodes it
// as JSON into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns as much of body as could be read, for use in error
// messages. Read failures are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}
