// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/purple-matrix/lib/clock"
	"github.com/bureau-foundation/purple-matrix/lib/keyring"
	"github.com/bureau-foundation/purple-matrix/lib/secret"
	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
	"github.com/bureau-foundation/purple-matrix/lib/sso"
	"github.com/bureau-foundation/purple-matrix/lib/testutil"
)

const receiveTimeout = 5 * time.Second

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeEngine scripts engine behavior. Queued errors are consumed one per
// call across every client the engine builds; an empty queue means
// success.
type fakeEngine struct {
	mu             sync.Mutex
	buildErrors    []error
	restoreErr     error
	passwordErrors []error
	tokenErrors    []error
	logoutErr      error

	builds   []BuildRequest
	restores int
	password []string
	tokens   []string
	logouts  int
	clients  []*fakeClient

	// syncEnd ends the Sync call of whichever client is syncing.
	syncEnd chan error
	// syncReturned receives once per Sync that returned on its own.
	syncReturned chan error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		syncEnd:      make(chan error),
		syncReturned: make(chan error, 8),
	}
}

func (e *fakeEngine) Build(ctx context.Context, request BuildRequest) (Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds = append(e.builds, request)
	if err := pop(&e.buildErrors); err != nil {
		return nil, err
	}
	client := &fakeClient{engine: e, request: request}
	e.clients = append(e.clients, client)
	return client, nil
}

func (e *fakeEngine) buildCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.builds)
}

func (e *fakeEngine) passwordCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.password)
}

func (e *fakeEngine) logoutCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logouts
}

func (e *fakeEngine) tokensSeen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.tokens...)
}

// openClients counts clients that were built and not closed.
func (e *fakeEngine) openClients() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := 0
	for _, client := range e.clients {
		if !client.closed {
			open++
		}
	}
	return open
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

type fakeClient struct {
	engine  *fakeEngine
	request BuildRequest
	userID  string
	closed  bool
}

func (c *fakeClient) record() sessionstore.Record {
	return sessionstore.Record{
		UserID:      c.userID,
		DeviceID:    "FAKEDEVICE",
		AccessToken: "syt_" + c.userID,
	}
}

func (c *fakeClient) Restore(ctx context.Context, record sessionstore.Record) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.engine.restores++
	if c.engine.restoreErr != nil {
		return c.engine.restoreErr
	}
	c.userID = record.UserID
	return nil
}

func (c *fakeClient) LoginPassword(ctx context.Context, user string, password *secret.Buffer) (sessionstore.Record, error) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.engine.password = append(c.engine.password, password.String())
	if err := pop(&c.engine.passwordErrors); err != nil {
		return sessionstore.Record{}, err
	}
	c.userID = user
	return c.record(), nil
}

func (c *fakeClient) SSOURL(ctx context.Context, redirectURL string) (string, error) {
	return "https://sso.example.org/authorize?redirectUrl=" + url.QueryEscape(redirectURL), nil
}

func (c *fakeClient) LoginToken(ctx context.Context, token string) (sessionstore.Record, error) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.engine.tokens = append(c.engine.tokens, token)
	if err := pop(&c.engine.tokenErrors); err != nil {
		return sessionstore.Record{}, err
	}
	c.userID = c.request.AccountID
	return c.record(), nil
}

func (c *fakeClient) Sync(ctx context.Context, onUpdate func(SyncUpdate)) error {
	onUpdate(SyncUpdate{NextBatch: "s1", JoinedRooms: 2, InvitedRooms: 1})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.engine.syncEnd:
		c.engine.syncReturned <- err
		return err
	}
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.engine.logouts++
	return c.engine.logoutErr
}

func (c *fakeClient) Close() error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.closed = true
	return nil
}

type failure struct {
	accountID string
	message   string
}

type recordingListener struct {
	connected chan string
	failed    chan failure
	ssoURLs   chan string
	syncs     chan SyncUpdate
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		connected: make(chan string, 16),
		failed:    make(chan failure, 16),
		ssoURLs:   make(chan string, 16),
		syncs:     make(chan SyncUpdate, 16),
	}
}

func (l *recordingListener) OnConnected(accountID string) { l.connected <- accountID }
func (l *recordingListener) OnLoginFailed(accountID, message string) {
	l.failed <- failure{accountID, message}
}
func (l *recordingListener) OnSSOURL(accountID, url string)             { l.ssoURLs <- url }
func (l *recordingListener) OnSync(accountID string, update SyncUpdate) { l.syncs <- update }

// expectNoReport fails if a connected or failed notification is queued.
func (l *recordingListener) expectNoReport(t *testing.T) {
	t.Helper()
	select {
	case accountID := <-l.connected:
		t.Fatalf("unexpected OnConnected(%s)", accountID)
	case f := <-l.failed:
		t.Fatalf("unexpected OnLoginFailed(%s, %q)", f.accountID, f.message)
	default:
	}
}

type harness struct {
	manager  *Manager
	engine   *fakeEngine
	listener *recordingListener
	keyring  *keyring.MemoryKeyring
	sessions *sessionstore.Store
	sso      *sso.Server
	clock    *clock.FakeClock
	root     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := testutil.Logger(t)
	fake := clock.Fake(epoch)
	memory := keyring.Memory()
	sessions, err := sessionstore.New(sessionstore.Config{Keyring: memory, Logger: logger})
	if err != nil {
		t.Fatalf("sessionstore.New: %v", err)
	}
	ssoServer := sso.New(sso.Config{Clock: fake, Logger: logger})
	engine := newFakeEngine()
	listener := newRecordingListener()
	manager, err := New(Config{
		Engine:            engine,
		Sessions:          sessions,
		SSO:               ssoServer,
		Clock:             fake,
		Logger:            logger,
		Listener:          listener,
		DeviceDisplayName: "purple-matrix-test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(manager.Close)
	return &harness{
		manager:  manager,
		engine:   engine,
		listener: listener,
		keyring:  memory,
		sessions: sessions,
		sso:      ssoServer,
		clock:    fake,
		root:     t.TempDir(),
	}
}

func (h *harness) dataDir(accountID string) string {
	return filepath.Join(h.root, "matrix_rust_data", accountID)
}

func (h *harness) login(t *testing.T, accountID, password string) {
	t.Helper()
	request := LoginRequest{AccountID: accountID, DataDir: h.dataDir(accountID)}
	if password != "" {
		buffer, err := secret.NewFromString(password)
		if err != nil {
			t.Fatalf("secret.NewFromString: %v", err)
		}
		request.Password = buffer
	}
	status, err := h.manager.Login(request)
	if err != nil {
		t.Fatalf("Login(%s): %v", accountID, err)
	}
	if status != StatusPending {
		t.Fatalf("Login(%s) status = %v, want pending", accountID, status)
	}
}

func (h *harness) requireConnected(t *testing.T, accountID string) {
	t.Helper()
	got := testutil.RequireReceive(t, h.listener.connected, receiveTimeout, "waiting for OnConnected")
	if got != accountID {
		t.Fatalf("OnConnected(%s), want %s", got, accountID)
	}
}

func (h *harness) requireFailed(t *testing.T, accountID string) string {
	t.Helper()
	got := testutil.RequireReceive(t, h.listener.failed, receiveTimeout, "waiting for OnLoginFailed")
	if got.accountID != accountID {
		t.Fatalf("OnLoginFailed(%s), want %s", got.accountID, accountID)
	}
	return got.message
}

// requireSSO waits for OnSSOURL and returns the loopback redirect URL
// embedded in it.
func (h *harness) requireSSO(t *testing.T) string {
	t.Helper()
	authorization := testutil.RequireReceive(t, h.listener.ssoURLs, receiveTimeout, "waiting for OnSSOURL")
	parsed, err := url.Parse(authorization)
	if err != nil {
		t.Fatalf("parsing %q: %v", authorization, err)
	}
	redirect := parsed.Query().Get("redirectUrl")
	if redirect == "" {
		t.Fatalf("authorization URL %q has no redirectUrl", authorization)
	}
	return redirect
}

func (h *harness) saveRecord(t *testing.T, accountID string) sessionstore.Record {
	t.Helper()
	record := sessionstore.Record{
		UserID:      accountID,
		DeviceID:    "SAVEDDEVICE",
		AccessToken: "syt_saved",
	}
	dataDir := h.dataDir(accountID)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := h.sessions.Save(accountID, dataDir, record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return record
}

func errMismatch() error {
	return Mismatch("store belongs to @someone:else.org")
}

func errUnauthorized() error {
	return Unauthorized(errors.New("M_UNKNOWN_TOKEN"))
}

func finishURL(redirect, token string) string {
	return fmt.Sprintf("%s&loginToken=%s", redirect, token)
}
