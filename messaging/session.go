// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bureau-foundation/purple-matrix/lib/ref"
	"github.com/bureau-foundation/purple-matrix/lib/secret"
)

// DirectSession is an authenticated Matrix session.
// It wraps a Client with an access token for making authenticated API calls.
//
// The access token is stored in a secret.Buffer (mmap-backed, locked against
// swap, excluded from core dumps). The caller must call Close when the
// DirectSession is no longer needed.
type DirectSession struct {
	client       *Client
	accessToken  *secret.Buffer
	refreshToken *secret.Buffer
	userID       ref.UserID
	deviceID     string
}

// UserID returns the fully-qualified Matrix user ID.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// AccessToken returns the access token as a heap string. This creates a
// brief copy from the mmap-backed buffer; use only at boundaries that
// require a string, such as persisting the session.
func (s *DirectSession) AccessToken() string {
	return s.accessToken.String()
}

// RefreshToken returns the refresh token issued at login, if any.
func (s *DirectSession) RefreshToken() (string, bool) {
	if s.refreshToken == nil {
		return "", false
	}
	return s.refreshToken.String(), true
}

// DeviceID returns the device ID for this session.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// Client returns the unauthenticated client this session was created from.
func (s *DirectSession) Client() *Client {
	return s.client
}

// Close releases the token memory (zeros, unlocks, unmaps).
// Idempotent.
func (s *DirectSession) Close() error {
	var firstErr error
	if s.accessToken != nil {
		firstErr = s.accessToken.Close()
	}
	if s.refreshToken != nil {
		if err := s.refreshToken.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WhoAmI validates the access token and returns the user and device it
// belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return &response, nil
}

// Sync performs one /sync request. With a Since token and a Timeout the
// server holds the request open until new events arrive or the timeout
// elapses.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// Logout invalidates this session's access token and deletes the device
// on the server. The DirectSession is unusable afterwards but still must
// be closed.
func (s *DirectSession) Logout(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, map[string]any{})
	if err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	s.client.logger.Info("logged out of matrix",
		"user_id", s.userID,
		"device_id", s.deviceID,
	)
	return nil
}
