// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/purple-matrix/lib/ref"
)

// Login types understood by this client.
const (
	LoginTypePassword = "m.login.password"
	LoginTypeToken    = "m.login.token"
	LoginTypeSSO      = "m.login.sso"
)

// UserIdentifier is the identifier object of a login request.
type UserIdentifier struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// LoginRequest is the body of POST /_matrix/client/v3/login.
type LoginRequest struct {
	Type                     string          `json:"type"`
	Identifier               *UserIdentifier `json:"identifier,omitempty"`
	Password                 string          `json:"password,omitempty"`
	Token                    string          `json:"token,omitempty"`
	DeviceID                 string          `json:"device_id,omitempty"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
	RefreshToken             bool            `json:"refresh_token,omitempty"`
}

// LoginOptions are the device parameters shared by every login type.
type LoginOptions struct {
	// DeviceID reuses an existing device instead of creating a new one.
	DeviceID string
	// DeviceDisplayName names a newly created device.
	DeviceDisplayName string
	// RequestRefreshToken asks the server to issue a refresh token.
	RequestRefreshToken bool
}

// AuthResponse is the response from login.
type AuthResponse struct {
	UserID       ref.UserID `json:"user_id"`
	AccessToken  string     `json:"access_token"`
	DeviceID     string     `json:"device_id"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresInMS  int64      `json:"expires_in_ms,omitempty"`
}

// LoginFlow is one entry of GET /_matrix/client/v3/login.
type LoginFlow struct {
	Type string `json:"type"`
}

// LoginFlowsResponse is the response from GET /_matrix/client/v3/login.
type LoginFlowsResponse struct {
	Flows []LoginFlow `json:"flows"`
}

// Supports reports whether the server advertises the given login type.
func (r *LoginFlowsResponse) Supports(loginType string) bool {
	for _, flow := range r.Flows {
		if flow.Type == loginType {
			return true
		}
	}
	return false
}

// WhoAmIResponse is the response from GET /_matrix/client/v3/account/whoami.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
	IsGuest  bool       `json:"is_guest,omitempty"`
}

// ServerVersionsResponse is the response from GET /_matrix/client/versions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// WellKnownResponse is the /.well-known/matrix/client document.
type WellKnownResponse struct {
	Homeserver struct {
		BaseURL string `json:"base_url"`
	} `json:"m.homeserver"`
}

// SyncOptions controls a /sync request.
type SyncOptions struct {
	// Since is the next_batch token from a previous sync. Empty for the
	// initial sync.
	Since string
	// Timeout is the long-poll timeout in milliseconds. Only sent when
	// SetTimeout is true, so an explicit zero can be distinguished from
	// "use the server default".
	Timeout    int
	SetTimeout bool
	// Filter is a filter ID or inline JSON filter.
	Filter string
}

// SyncResponse is the response from GET /_matrix/client/v3/sync. Room
// and event bodies are kept raw; only counts and the batch token are
// interpreted here.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups rooms by membership.
type RoomsSection struct {
	Join   map[string]JoinedRoom      `json:"join,omitempty"`
	Invite map[string]json.RawMessage `json:"invite,omitempty"`
	Leave  map[string]json.RawMessage `json:"leave,omitempty"`
}

// JoinedRoom is the per-room sync payload for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection is the timeline of a joined room in a sync response.
type TimelineSection struct {
	Events    []json.RawMessage `json:"events,omitempty"`
	Limited   bool              `json:"limited,omitempty"`
	PrevBatch string            `json:"prev_batch,omitempty"`
}
