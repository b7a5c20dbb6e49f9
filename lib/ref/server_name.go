// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// ServerName is a validated Matrix server name, optionally with a port
// ("example.org", "matrix.example.org:8448").
type ServerName struct {
	name string
}

// ParseServerName rejects empty names, whitespace, control characters
// and Matrix sigils.
func ParseServerName(raw string) (ServerName, error) {
	if err := validateServer(raw); err != nil {
		return ServerName{}, err
	}
	return ServerName{name: raw}, nil
}

// MustParseServerName panics when raw is invalid. For tests and
// constants.
func MustParseServerName(raw string) ServerName {
	server, err := ParseServerName(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseServerName(%q): %v", raw, err))
	}
	return server
}

// String returns the server name.
func (s ServerName) String() string { return s.name }

// IsZero reports whether s is unset.
func (s ServerName) IsZero() bool { return s.name == "" }
