// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sso

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

// ExtractLoginToken finds the login token in input. Input that looks
// like a URL or query string (an http(s) scheme, a '?', or a literal
// "loginToken=") must carry a non-empty loginToken parameter. Anything
// else is taken as a bare token if it contains no whitespace.
func ExtractLoginToken(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	if strings.HasPrefix(trimmed, "http://") ||
		strings.HasPrefix(trimmed, "https://") ||
		strings.Contains(trimmed, "?") ||
		strings.Contains(trimmed, "loginToken=") {
		return QueryParam(trimmed, "loginToken")
	}
	if strings.IndexFunc(trimmed, unicode.IsSpace) >= 0 {
		return "", false
	}
	return trimmed, true
}

// QueryParam returns the first non-empty value of key in the query
// portion of input: the text between the first and second '?', or all
// of input when there is no '?'. Malformed pairs are skipped.
func QueryParam(input, key string) (string, bool) {
	query := input
	if _, after, found := strings.Cut(input, "?"); found {
		query, _, _ = strings.Cut(after, "?")
	}
	values, _ := url.ParseQuery(query)
	for _, value := range values[key] {
		if value != "" {
			return value, true
		}
	}
	return "", false
}

var stateSequence atomic.Uint64

// newStateToken derives a token from the clock, the process ID, and a
// per-process sequence number. It only has to be unguessable by a
// stale browser tab, not by an attacker with local access.
func newStateToken(now time.Time) string {
	return fmt.Sprintf("%x%x%x", now.UnixNano(), os.Getpid(), stateSequence.Add(1))
}
