// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datadir

import "strings"

// DefaultHomeserver is used when nothing better is known.
const DefaultHomeserver = "https://matrix.org"

// DeriveHomeserver picks the homeserver for an account. A configured
// value wins unless it is empty or the generic default, in which case
// the domain of a "user:domain" account name (other than matrix.org)
// becomes https://domain.
func DeriveHomeserver(accountID, configured string) string {
	if configured != "" && configured != DefaultHomeserver {
		return configured
	}
	if _, domain, found := strings.Cut(accountID, ":"); found && domain != "" {
		if !strings.EqualFold(domain, "matrix.org") {
			return "https://" + domain
		}
	}
	return DefaultHomeserver
}
