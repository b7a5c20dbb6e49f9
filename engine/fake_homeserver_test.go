// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// syncReply is one scripted /sync response.
type syncReply struct {
	status int
	body   any
}

// fakeHomeserver implements the client-server endpoints the engine
// uses. Users live on example.org.
type fakeHomeserver struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	passwords    map[string]string // localpart -> password
	loginTokens  map[string]string // SSO login token -> user ID
	tokens       map[string]string // access token -> user ID
	sso          bool
	issued       int
	logouts      int
	loginDevices []string
	sinces       []string

	// syncReplies are served in order. An empty queue long-polls until
	// the request is cancelled.
	syncReplies chan syncReply
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()
	homeserver := &fakeHomeserver{
		t:           t,
		passwords:   map[string]string{"alice": "hunter2", "bob": "swordfish"},
		loginTokens: map[string]string{},
		tokens:      map[string]string{},
		syncReplies: make(chan syncReply, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/v3/login", homeserver.handleLoginFlows)
	mux.HandleFunc("POST /_matrix/client/v3/login", homeserver.handleLogin)
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", homeserver.handleWhoAmI)
	mux.HandleFunc("GET /_matrix/client/v3/sync", homeserver.handleSync)
	mux.HandleFunc("POST /_matrix/client/v3/logout", homeserver.handleLogout)
	homeserver.server = httptest.NewServer(mux)
	t.Cleanup(homeserver.server.Close)
	return homeserver
}

func (h *fakeHomeserver) URL() string { return h.server.URL }

func (h *fakeHomeserver) enableSSO(loginToken, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sso = true
	h.loginTokens[loginToken] = userID
}

// revoke invalidates every access token issued so far.
func (h *fakeHomeserver) revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens = map[string]string{}
}

func (h *fakeHomeserver) logoutCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logouts
}

func (h *fakeHomeserver) requestedDevices() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.loginDevices...)
}

func (h *fakeHomeserver) syncSinces() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sinces...)
}

func (h *fakeHomeserver) queueSync(nextBatch string, joined ...string) {
	join := map[string]any{}
	for _, roomID := range joined {
		join[roomID] = map[string]any{"timeline": map[string]any{"events": []any{}}}
	}
	h.syncReplies <- syncReply{status: http.StatusOK, body: map[string]any{
		"next_batch": nextBatch,
		"rooms":      map[string]any{"join": join},
	}}
}

func (h *fakeHomeserver) queueSyncError(status int, code string) {
	h.syncReplies <- syncReply{status: status, body: map[string]string{"errcode": code, "error": "scripted failure"}}
}

func respond(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func respondError(writer http.ResponseWriter, status int, code, message string) {
	respond(writer, status, map[string]string{"errcode": code, "error": message})
}

// authenticate returns the user owning the request's access token, or
// writes M_UNKNOWN_TOKEN.
func (h *fakeHomeserver) authenticate(writer http.ResponseWriter, request *http.Request) (string, string, bool) {
	token, found := strings.CutPrefix(request.Header.Get("Authorization"), "Bearer ")
	if !found {
		respondError(writer, http.StatusUnauthorized, "M_MISSING_TOKEN", "Missing access token")
		return "", "", false
	}
	h.mu.Lock()
	userID, ok := h.tokens[token]
	h.mu.Unlock()
	if !ok {
		respondError(writer, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "Invalid access token passed.")
		return "", "", false
	}
	return userID, token, true
}

func (h *fakeHomeserver) handleLoginFlows(writer http.ResponseWriter, request *http.Request) {
	h.mu.Lock()
	flows := []map[string]string{{"type": "m.login.password"}}
	if h.sso {
		flows = append(flows, map[string]string{"type": "m.login.sso"}, map[string]string{"type": "m.login.token"})
	}
	h.mu.Unlock()
	respond(writer, http.StatusOK, map[string]any{"flows": flows})
}

func (h *fakeHomeserver) handleLogin(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Type       string `json:"type"`
		Identifier struct {
			Type string `json:"type"`
			User string `json:"user"`
		} `json:"identifier"`
		Password string `json:"password"`
		Token    string `json:"token"`
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		respondError(writer, http.StatusBadRequest, "M_NOT_JSON", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.loginDevices = append(h.loginDevices, body.DeviceID)

	var userID string
	switch body.Type {
	case "m.login.password":
		localpart := strings.TrimSuffix(strings.TrimPrefix(body.Identifier.User, "@"), ":example.org")
		if expected, ok := h.passwords[localpart]; !ok || expected != body.Password {
			respondError(writer, http.StatusForbidden, "M_FORBIDDEN", "Invalid username or password")
			return
		}
		userID = "@" + localpart + ":example.org"
	case "m.login.token":
		var ok bool
		userID, ok = h.loginTokens[body.Token]
		if !ok {
			respondError(writer, http.StatusForbidden, "M_FORBIDDEN", "Invalid login token")
			return
		}
		delete(h.loginTokens, body.Token)
	default:
		respondError(writer, http.StatusBadRequest, "M_UNKNOWN", "Unknown login type "+body.Type)
		return
	}

	h.issued++
	deviceID := body.DeviceID
	if deviceID == "" {
		deviceID = fmt.Sprintf("DEVICE%d", h.issued)
	}
	accessToken := fmt.Sprintf("syt_token_%d", h.issued)
	h.tokens[accessToken] = userID
	respond(writer, http.StatusOK, map[string]string{
		"user_id":      userID,
		"access_token": accessToken,
		"device_id":    deviceID,
	})
}

func (h *fakeHomeserver) handleWhoAmI(writer http.ResponseWriter, request *http.Request) {
	userID, _, ok := h.authenticate(writer, request)
	if !ok {
		return
	}
	respond(writer, http.StatusOK, map[string]string{"user_id": userID})
}

func (h *fakeHomeserver) handleSync(writer http.ResponseWriter, request *http.Request) {
	if _, _, ok := h.authenticate(writer, request); !ok {
		return
	}
	h.mu.Lock()
	h.sinces = append(h.sinces, request.URL.Query().Get("since"))
	h.mu.Unlock()

	select {
	case reply := <-h.syncReplies:
		respond(writer, reply.status, reply.body)
	case <-request.Context().Done():
	}
}

func (h *fakeHomeserver) handleLogout(writer http.ResponseWriter, request *http.Request) {
	_, token, ok := h.authenticate(writer, request)
	if !ok {
		return
	}
	h.mu.Lock()
	delete(h.tokens, token)
	h.logouts++
	h.mu.Unlock()
	respond(writer, http.StatusOK, map[string]any{})
}
