// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// UserID is a validated Matrix user ID such as "@alice:example.org".
type UserID struct {
	id string
}

// ParseUserID validates raw as "@localpart:server".
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := parseMatrixID(raw); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// String returns the full identifier.
func (u UserID) String() string { return u.id }

// IsZero reports whether u is unset.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the text between '@' and ':'.
func (u UserID) Localpart() string {
	localpart, _ := u.split()
	return localpart
}

// Server returns the server name after the first ':'.
func (u UserID) Server() ServerName {
	_, server := u.split()
	return ServerName{name: server}
}

func (u UserID) split() (string, string) {
	if u.id == "" {
		panic("ref: UserID used as zero value")
	}
	localpart, server, err := parseMatrixID(u.id)
	if err != nil {
		panic(fmt.Sprintf("ref: UserID %q failed to reparse: %v", u.id, err))
	}
	return localpart, server
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// yields the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
