// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bureau-foundation/purple-matrix/lib/netutil"
)

// Discover fetches serverURL's /.well-known/matrix/client document and
// returns the advertised homeserver base URL. serverURL is the scheme
// and host of the server name (e.g., "https://example.org"). A nil
// httpClient uses http.DefaultClient.
func Discover(ctx context.Context, httpClient *http.Client, serverURL string) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	wellKnownURL := strings.TrimRight(serverURL, "/") + "/.well-known/matrix/client"

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: failed to create well-known request: %w", err)
	}
	response, err := httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("messaging: well-known lookup for %s failed: %w", serverURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("messaging: well-known lookup for %s returned %d: %s",
			serverURL, response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var document WellKnownResponse
	if err := netutil.DecodeResponse(response.Body, &document); err != nil {
		return "", fmt.Errorf("messaging: parsing well-known document from %s: %w", serverURL, err)
	}
	baseURL := strings.TrimRight(document.Homeserver.BaseURL, "/")
	if baseURL == "" {
		return "", fmt.Errorf("messaging: well-known document from %s has no m.homeserver base_url", serverURL)
	}
	return baseURL, nil
}
