// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/purple-matrix/lib/datadir"
	"github.com/bureau-foundation/purple-matrix/lib/keyring"
	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
	"github.com/bureau-foundation/purple-matrix/lib/testutil"
)

// lockedBuffer is a bytes.Buffer safe for the manager's goroutines.
type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(data)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

// homeserver serves password login for @alice:example.org.
type homeserver struct {
	server *httptest.Server

	mu      sync.Mutex
	tokens  map[string]bool
	issued  int
	logouts int
}

func newHomeserver(t *testing.T) *homeserver {
	t.Helper()
	h := &homeserver{tokens: map[string]bool{}}
	respond := func(writer http.ResponseWriter, status int, value any) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		json.NewEncoder(writer).Encode(value)
	}
	authorized := func(writer http.ResponseWriter, request *http.Request) (string, bool) {
		token := strings.TrimPrefix(request.Header.Get("Authorization"), "Bearer ")
		h.mu.Lock()
		ok := h.tokens[token]
		h.mu.Unlock()
		if !ok {
			respond(writer, http.StatusUnauthorized, map[string]string{"errcode": "M_UNKNOWN_TOKEN", "error": "Invalid access token passed."})
		}
		return token, ok
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/v3/login", func(writer http.ResponseWriter, request *http.Request) {
		respond(writer, http.StatusOK, map[string]any{"flows": []map[string]string{{"type": "m.login.password"}}})
	})
	mux.HandleFunc("POST /_matrix/client/v3/login", func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			Password string `json:"password"`
		}
		json.NewDecoder(request.Body).Decode(&body)
		if body.Password != "hunter2" {
			respond(writer, http.StatusForbidden, map[string]string{"errcode": "M_FORBIDDEN", "error": "Invalid password"})
			return
		}
		h.mu.Lock()
		h.issued++
		token := fmt.Sprintf("syt_%d", h.issued)
		h.tokens[token] = true
		h.mu.Unlock()
		respond(writer, http.StatusOK, map[string]string{
			"user_id": "@alice:example.org", "access_token": token, "device_id": "DEVICE",
		})
	})
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", func(writer http.ResponseWriter, request *http.Request) {
		if _, ok := authorized(writer, request); ok {
			respond(writer, http.StatusOK, map[string]string{"user_id": "@alice:example.org"})
		}
	})
	mux.HandleFunc("GET /_matrix/client/v3/sync", func(writer http.ResponseWriter, request *http.Request) {
		if _, ok := authorized(writer, request); ok {
			<-request.Context().Done()
		}
	})
	mux.HandleFunc("POST /_matrix/client/v3/logout", func(writer http.ResponseWriter, request *http.Request) {
		token, ok := authorized(writer, request)
		if !ok {
			return
		}
		h.mu.Lock()
		delete(h.tokens, token)
		h.logouts++
		h.mu.Unlock()
		respond(writer, http.StatusOK, map[string]any{})
	})
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func (h *homeserver) logoutCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logouts
}

// harness writes a config using the sealed keyring under a temporary
// root.
type harness struct {
	t          *testing.T
	root       string
	configPath string
	homeserver *homeserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	configPath := filepath.Join(root, "config.yaml")
	config := fmt.Sprintf(`data_root: %s
log_level: debug
keyring:
  backend: sealed
  vault_path: %s
  key_path: %s
sso:
  timeout: 5s
  poll_interval: 10ms
`, root, filepath.Join(root, "vault.age"), filepath.Join(root, "vault.key"))
	if err := os.WriteFile(configPath, []byte(config), 0o600); err != nil {
		t.Fatal(err)
	}
	return &harness{t: t, root: root, configPath: configPath, homeserver: newHomeserver(t)}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var stdout, stderr lockedBuffer
	full := append([]string{args[0], "--config", h.configPath, "--homeserver", h.homeserver.server.URL}, args[1:]...)
	err := run(context.Background(), full, streams{
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &stderr,
	})
	h.t.Logf("%s stderr:\n%s", args[0], stderr.String())
	return stdout.String(), err
}

func (h *harness) passwordFile(password string) string {
	h.t.Helper()
	path := filepath.Join(h.root, "password")
	if err := os.WriteFile(path, []byte(password+"\n"), 0o600); err != nil {
		h.t.Fatal(err)
	}
	return path
}

func (h *harness) savedSession(accountID string) (sessionstore.Record, error) {
	h.t.Helper()
	store, err := sessionstore.New(sessionstore.Config{
		Keyring: keyring.Sealed(filepath.Join(h.root, "vault.age"), filepath.Join(h.root, "vault.key")),
	})
	if err != nil {
		h.t.Fatal(err)
	}
	return store.Load(accountID, datadir.AccountDir(h.root, accountID))
}

func TestLoginLogoutDestroy(t *testing.T) {
	h := newHarness(t)

	output, err := h.run("login", "--password-file", h.passwordFile("hunter2"), "alice")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(output, "Connected alice as @alice:example.org") {
		t.Errorf("login output = %q", output)
	}
	record, err := h.savedSession("alice")
	if err != nil {
		t.Fatalf("saved session after login: %v", err)
	}
	if record.UserID != "@alice:example.org" {
		t.Errorf("saved user = %s", record.UserID)
	}

	// A second login restores the saved session.
	if _, err := h.run("login", "alice"); err != nil {
		t.Fatalf("restoring login: %v", err)
	}

	output, err = h.run("logout", "alice")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !strings.Contains(output, "Logged out alice") {
		t.Errorf("logout output = %q", output)
	}
	if got := h.homeserver.logoutCount(); got != 1 {
		t.Errorf("server logouts = %d, want 1", got)
	}

	// The token is now dead, so destroy can only delete the local copy.
	output, err = h.run("destroy", "alice")
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if !strings.Contains(output, "Deleted the saved session for alice") {
		t.Errorf("destroy output = %q", output)
	}
	if _, err := h.savedSession("alice"); !errors.Is(err, sessionstore.ErrNoSession) {
		t.Errorf("saved session after destroy: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "--password-file", h.passwordFile("wrong"), "alice")
	if err == nil || !strings.Contains(err.Error(), "Login failed") {
		t.Fatalf("login error = %v, want a login failure", err)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("logout", "alice")
	if err == nil {
		t.Fatal("logout succeeded without a saved session")
	}
}

func TestDeactivateErase(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("login", "--password-file", h.passwordFile("hunter2"), "alice"); err != nil {
		t.Fatalf("login: %v", err)
	}
	dataDir := datadir.AccountDir(h.root, "alice")
	if _, err := os.Stat(dataDir); err != nil {
		t.Fatalf("data directory after login: %v", err)
	}

	output, err := h.run("deactivate", "--erase", "alice")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if !strings.Contains(output, "Deactivated alice") {
		t.Errorf("deactivate output = %q", output)
	}
	if _, err := os.Stat(dataDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("data directory survived --erase: %v", err)
	}
	if _, err := h.savedSession("alice"); !errors.Is(err, sessionstore.ErrNoSession) {
		t.Errorf("saved session after --erase: %v", err)
	}
}

func TestDeliverDropsOnlySyncUpdates(t *testing.T) {
	a := &app{
		logger: testutil.Logger(t),
		events: make(chan event, 2),
		done:   make(chan struct{}),
	}
	const id = "@alice:example.org"
	a.deliver(event{kind: eventSync, accountID: id})
	a.deliver(event{kind: eventSync, accountID: id})
	// Buffer full: this one is dropped without blocking.
	a.deliver(event{kind: eventSync, accountID: id})

	delivered := make(chan struct{})
	go func() {
		a.deliver(event{kind: eventFailed, accountID: id, message: "nope"})
		close(delivered)
	}()

	for range 2 {
		if e := testutil.RequireReceive(t, a.events, 5*time.Second, "draining sync"); e.kind != eventSync {
			t.Fatalf("kind = %v, want sync", e.kind)
		}
	}
	e := testutil.RequireReceive(t, a.events, 5*time.Second, "waiting for the failure")
	if e.kind != eventFailed || e.message != "nope" {
		t.Fatalf("event = %+v, want the failure", e)
	}
	testutil.RequireClosed(t, delivered, 5*time.Second, "deliver did not return")

	// After close a full buffer no longer blocks.
	a.deliver(event{kind: eventSync, accountID: id})
	a.deliver(event{kind: eventSync, accountID: id})
	close(a.done)
	a.deliver(event{kind: eventConnected, accountID: id})
}

func TestRunSubcommands(t *testing.T) {
	var stdout, stderr lockedBuffer
	std := streams{stdin: strings.NewReader(""), stdout: &stdout, stderr: &stderr}

	if err := run(context.Background(), nil, std); err == nil {
		t.Error("run with no arguments succeeded")
	}
	if err := run(context.Background(), []string{"frobnicate"}, std); err == nil {
		t.Error("unknown subcommand succeeded")
	}
	if err := run(context.Background(), []string{"version"}, std); err != nil {
		t.Errorf("version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), binaryName+" ") {
		t.Errorf("version output = %q", stdout.String())
	}
	if err := run(context.Background(), []string{"login", "--help"}, std); err != nil {
		t.Errorf("login --help: %v", err)
	}
	if err := run(context.Background(), []string{"login"}, std); err == nil {
		t.Error("login without an account succeeded")
	}
	if err := run(context.Background(), []string{"logout", "alice", "bob"}, std); err == nil {
		t.Error("logout with two accounts succeeded")
	}
}

func TestReadPassword(t *testing.T) {
	std := streams{stdin: strings.NewReader("from-stdin\n"), stdout: &lockedBuffer{}, stderr: &lockedBuffer{}}

	none, err := readPassword("", false, std)
	if err != nil || none != nil {
		t.Fatalf("readPassword with no source = %v, %v", none, err)
	}

	piped, err := readPassword("-", false, std)
	if err != nil {
		t.Fatalf("readPassword(-): %v", err)
	}
	defer piped.Close()
	if piped.String() != "from-stdin" {
		t.Errorf("readPassword(-) = %q", piped.String())
	}

	path := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(path, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fromFile, err := readPassword(path, true, std)
	if err != nil {
		t.Fatalf("readPassword(file): %v", err)
	}
	defer fromFile.Close()
	if fromFile.String() != "from-file" {
		t.Errorf("readPassword(file) = %q", fromFile.String())
	}

	prompted, err := readPassword("", true, streams{stdin: strings.NewReader("typed\n")})
	if err != nil {
		t.Fatalf("readPassword prompt from a pipe: %v", err)
	}
	defer prompted.Close()
	if prompted.String() != "typed" {
		t.Errorf("prompted password = %q", prompted.String())
	}
}
