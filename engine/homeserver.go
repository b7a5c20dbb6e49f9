// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bureau-foundation/purple-matrix/lib/ref"
	"github.com/bureau-foundation/purple-matrix/messaging"
)

// InsecureTLSEnvironment names the variable that disables certificate
// verification for debugging.
const InsecureTLSEnvironment = "MATRIX_RUST_INSECURE_SSL"

// InsecureTLSFromEnv reports whether InsecureTLSEnvironment holds one
// of the explicit opt-in values. Anything else keeps verification on.
func InsecureTLSFromEnv() bool {
	switch os.Getenv(InsecureTLSEnvironment) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	}
	return false
}

// NewHTTPClient returns the HTTP client for homeserver traffic. The
// insecure variant skips certificate verification.
func NewHTTPClient(insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit debugging opt-in
	}
	return &http.Client{Transport: transport}
}

// ResolveHomeserver turns a homeserver address into a client base URL.
// A bare server name, or an http(s) URL with no port and no path, is
// looked up through /.well-known/matrix/client and falls back to the
// https URL of the name. Any other URL is used as given.
func ResolveHomeserver(ctx context.Context, httpClient *http.Client, address string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("engine: homeserver address is empty")
	}

	var serverURL string
	if strings.Contains(address, "://") {
		parsed, err := url.Parse(address)
		if err != nil {
			return "", fmt.Errorf("engine: invalid homeserver URL %q: %w", address, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return "", fmt.Errorf("engine: homeserver URL %q must use http or https", address)
		}
		if parsed.Host == "" {
			return "", fmt.Errorf("engine: homeserver URL %q has no host", address)
		}
		if parsed.Port() != "" || (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" {
			return strings.TrimRight(address, "/"), nil
		}
		serverURL = parsed.Scheme + "://" + parsed.Host
	} else {
		serverName, err := ref.ParseServerName(address)
		if err != nil {
			return "", fmt.Errorf("engine: invalid homeserver %q: %w", address, err)
		}
		serverURL = "https://" + serverName.String()
	}

	baseURL, err := messaging.Discover(ctx, httpClient, serverURL)
	if err != nil {
		logger.Debug("well-known discovery failed, using server URL",
			"server_url", serverURL,
			"error", err,
		)
		return serverURL, nil
	}
	if baseURL != serverURL {
		logger.Info("discovered homeserver", "server_url", serverURL, "base_url", baseURL)
	}
	return baseURL, nil
}
