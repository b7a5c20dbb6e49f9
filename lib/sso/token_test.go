// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sso

import (
	"testing"
	"time"
)

func TestExtractLoginToken(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		token  string
		wantOK bool
	}{
		{"full redirect", "http://localhost:4321/login?state=abc&loginToken=tok123", "tok123", true},
		{"https redirect", "https://example.org/cb?loginToken=tok456", "tok456", true},
		{"request target", "/login?state=abc&loginToken=tok789", "tok789", true},
		{"bare query", "loginToken=bare", "bare", true},
		{"surrounding whitespace", "  rawtoken \n", "rawtoken", true},
		{"raw token", "syt_rawtoken", "syt_rawtoken", true},
		{"escaped value", "/login?loginToken=a%2Bb", "a+b", true},
		{"redirect without token", "http://localhost:4321/login?state=abc", "", false},
		{"empty token value", "/login?loginToken=&state=abc", "", false},
		{"raw with whitespace", "two words", "", false},
		{"empty", "   ", "", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			token, ok := ExtractLoginToken(test.input)
			if ok != test.wantOK || token != test.token {
				t.Errorf("ExtractLoginToken(%q) = (%q, %v), want (%q, %v)", test.input, token, ok, test.token, test.wantOK)
			}
		})
	}
}

func TestQueryParamFirstNonEmpty(t *testing.T) {
	value, ok := QueryParam("/login?state=&state=second", "state")
	if !ok || value != "second" {
		t.Errorf("QueryParam = (%q, %v), want (second, true)", value, ok)
	}
	if _, ok := QueryParam("/login?other=1", "state"); ok {
		t.Error("QueryParam found an absent key")
	}
}

func TestStateTokensDiffer(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := newStateToken(now)
	second := newStateToken(now)
	if first == second {
		t.Errorf("two tokens at the same instant collided: %q", first)
	}
}
