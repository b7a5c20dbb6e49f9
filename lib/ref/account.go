// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// AccountName is the name a user typed for their account, split into
// localpart and server. Unlike UserID the server is optional: a bare
// "alice" is a valid account name whose homeserver must come from
// configuration.
type AccountName struct {
	Localpart string
	Server    ServerName
}

// ParseAccountName accepts "alice", "alice:example.org", and
// "@alice:example.org".
func ParseAccountName(raw string) (AccountName, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if trimmed == "" {
		return AccountName{}, fmt.Errorf("account name is empty")
	}
	localpart, server, found := strings.Cut(trimmed, ":")
	if localpart == "" {
		return AccountName{}, fmt.Errorf("account name %q: empty localpart", raw)
	}
	if !found {
		return AccountName{Localpart: localpart}, nil
	}
	serverName, err := ParseServerName(server)
	if err != nil {
		return AccountName{}, fmt.Errorf("account name %q: %w", raw, err)
	}
	return AccountName{Localpart: localpart, Server: serverName}, nil
}

// UserID returns the full Matrix ID. ok is false when the name has no
// server.
func (a AccountName) UserID() (UserID, bool) {
	if a.Server.IsZero() {
		return UserID{}, false
	}
	return UserID{id: "@" + a.Localpart + ":" + a.Server.name}, true
}
