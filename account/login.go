// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/purple-matrix/lib/datadir"
	"github.com/bureau-foundation/purple-matrix/lib/secret"
	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
	"github.com/bureau-foundation/purple-matrix/lib/sso"
)

// Messages reported through OnLoginFailed.
const (
	MessageSessionExpired  = "Matrix session expired or token invalidated. Please re-login."
	MessageAccountMismatch = "Local Matrix data belonged to a different account and has been reset. Please retry login."
	MessageSSOInProgress   = "Another SSO login is already in progress. Finish it in the browser or wait for it to time out."
	MessageCancelled       = "Login cancelled."
	messageIncomplete      = "Login ended without completing."
)

// ssoRestarts bounds how many fresh SSO rounds an account mismatch
// during token exchange may start.
const ssoRestarts = 1

// LoginStatus is the immediate result of Login.
type LoginStatus int

const (
	// StatusRejected means no attempt was started; the error says why.
	StatusRejected LoginStatus = iota

	// StatusPending means an attempt is running and will report
	// through the Listener.
	StatusPending
)

func (s LoginStatus) String() string {
	if s == StatusPending {
		return "pending"
	}
	return "rejected"
}

// LoginRequest is the input of Login.
type LoginRequest struct {
	// AccountID is the account name, e.g. "@alice:example.org".
	AccountID string

	// Password selects password login; nil or empty selects SSO. The
	// Manager takes ownership and closes it when the attempt ends.
	Password *secret.Buffer

	// Homeserver is a server name or URL. Empty derives one from
	// AccountID.
	Homeserver string

	// DataDir is the account's working directory. It is created if
	// missing.
	DataDir string
}

// Login starts a login attempt and returns StatusPending at once.
// The attempt reports exactly one OnConnected or OnLoginFailed.
func (m *Manager) Login(request LoginRequest) (LoginStatus, error) {
	reject := func(err error) (LoginStatus, error) {
		if request.Password != nil {
			request.Password.Close()
		}
		return StatusRejected, err
	}
	if request.AccountID == "" {
		return reject(fmt.Errorf("account: AccountID is required"))
	}
	if request.DataDir == "" {
		return reject(fmt.Errorf("account: DataDir is required"))
	}

	homeserver := request.Homeserver
	if homeserver == "" {
		homeserver = m.defaultHomeserver
	}
	homeserver = datadir.DeriveHomeserver(request.AccountID, homeserver)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return reject(ErrClosed)
	}
	if _, pending := m.pending[request.AccountID]; pending {
		return reject(ErrLoginPending)
	}
	if _, connected := m.registry.Get(request.AccountID); connected {
		return reject(ErrAlreadyConnected)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	attempt := &attempt{
		manager:    m,
		ctx:        ctx,
		cancel:     cancel,
		accountID:  request.AccountID,
		homeserver: homeserver,
		dataDir:    request.DataDir,
		password:   request.Password,
		logger: m.logger.With(
			"account_id", request.AccountID,
			"homeserver", homeserver,
			"data_dir", request.DataDir,
		),
	}
	m.pending[request.AccountID] = attempt
	m.paths.Set(request.AccountID, request.DataDir)
	m.goTask(attempt.run)

	attempt.logger.Info("login started", "method", attempt.method())
	return StatusPending, nil
}

type attemptState int

const (
	stateIdle attemptState = iota
	stateBuildingClient
	stateRestoring
	stateFreshLogin
	stateMismatchRecovery
	stateAwaitingSSO
	stateExchangingToken
	stateConnected
	stateFailed
)

var stateNames = [...]string{
	stateIdle:             "idle",
	stateBuildingClient:   "building_client",
	stateRestoring:        "restoring",
	stateFreshLogin:       "fresh_login",
	stateMismatchRecovery: "mismatch_recovery",
	stateAwaitingSSO:      "awaiting_sso",
	stateExchangingToken:  "exchanging_token",
	stateConnected:        "connected",
	stateFailed:           "failed",
}

func (s attemptState) String() string { return stateNames[s] }

// attempt is one logical login. It owns its Client until the client is
// handed to the Registry or closed.
type attempt struct {
	manager    *Manager
	ctx        context.Context
	cancel     context.CancelFunc
	accountID  string
	homeserver string
	dataDir    string
	password   *secret.Buffer
	logger     *slog.Logger

	state    attemptState
	reported sync.Once
}

func (a *attempt) method() string {
	if a.password != nil && a.password.Len() > 0 {
		return "password"
	}
	return "sso"
}

func (a *attempt) enter(state attemptState) {
	a.logger.Debug("login state", "from", a.state, "to", state)
	a.state = state
}

func (a *attempt) run() {
	defer a.cancel()
	defer func() {
		if a.password != nil {
			a.password.Close()
		}
	}()
	// Guarantees a report even if a path below forgot one.
	defer a.fail(messageIncomplete)

	a.enter(stateBuildingClient)
	client, ok := a.buildWithRetry()
	if !ok {
		return
	}

	a.enter(stateRestoring)
	client, record, ok := a.restore(client)
	if !ok {
		return
	}
	if record != nil {
		a.connect(client, *record)
		return
	}

	a.enter(stateFreshLogin)
	if a.method() == "password" {
		a.loginPassword(client)
		return
	}
	a.loginSSO(client, ssoRestarts)
}

func (a *attempt) build() (Client, error) {
	if err := datadir.Ensure(a.dataDir); err != nil {
		return nil, err
	}
	return a.manager.engine.Build(a.ctx, BuildRequest{
		AccountID:         a.accountID,
		Homeserver:        a.homeserver,
		DataDir:           a.dataDir,
		DeviceDisplayName: a.manager.deviceDisplayName,
	})
}

// buildWithRetry builds the client, wiping the data directory and
// trying once more if the first build fails.
func (a *attempt) buildWithRetry() (Client, bool) {
	client, err := a.build()
	if err == nil {
		return client, true
	}
	if a.ctx.Err() != nil {
		a.fail(MessageCancelled)
		return nil, false
	}
	a.logger.Warn("client build failed, resetting data directory", "error", err)
	if wipeErr := datadir.WipeAndRecreate(a.logger, a.dataDir); wipeErr != nil {
		a.fail(fmt.Sprintf("Client build failed and local data could not be reset: %v", wipeErr))
		return nil, false
	}
	client, err = a.build()
	if err != nil {
		a.failWith("Client build failed after retry", err)
		return nil, false
	}
	return client, true
}

// restore resumes the saved session if there is one. A nil record with
// ok set means the caller should continue with a fresh login on the
// returned client, which may have been rebuilt.
func (a *attempt) restore(client Client) (Client, *sessionstore.Record, bool) {
	record, err := a.manager.sessions.Load(a.accountID, a.dataDir)
	if errors.Is(err, sessionstore.ErrNoSession) {
		a.logger.Debug("no saved session")
		return client, nil, true
	}
	if err != nil {
		a.logger.Warn("loading saved session failed", "error", err)
		return client, nil, true
	}
	if err := record.Validate(); err != nil {
		a.logger.Warn("saved session is malformed", "error", err)
		return client, nil, true
	}

	err = client.Restore(a.ctx, record)
	if err == nil {
		a.logger.Info("restored saved session", "user_id", record.UserID, "device_id", record.DeviceID)
		return client, &record, true
	}
	if a.ctx.Err() != nil {
		client.Close()
		a.fail(MessageCancelled)
		return nil, nil, false
	}

	kind := Classify(err)
	a.logger.Warn("restoring saved session failed", "error", err, "kind", kind)
	if kind != ErrorAccountMismatch {
		// The record stays: the failure may be transient.
		return client, nil, true
	}
	client, ok := a.recoverMismatch(client)
	return client, nil, ok
}

// recoverMismatch closes client, wipes the data directory and builds
// a fresh client.
func (a *attempt) recoverMismatch(client Client) (Client, bool) {
	a.enter(stateMismatchRecovery)
	client.Close()
	if err := datadir.WipeAndRecreate(a.logger, a.dataDir); err != nil {
		a.fail(fmt.Sprintf("Local Matrix data does not match this account and could not be reset: %v", err))
		return nil, false
	}
	rebuilt, err := a.build()
	if err != nil {
		a.failWith("Failed to rebuild client after safety wipe", err)
		return nil, false
	}
	return rebuilt, true
}

// loginPassword logs in with the password, retrying once on a fresh
// client after an account mismatch.
func (a *attempt) loginPassword(client Client) {
	for retried := false; ; retried = true {
		record, err := client.LoginPassword(a.ctx, a.accountID, a.password)
		if err == nil {
			a.connect(client, record)
			return
		}
		mismatch := Classify(err) == ErrorAccountMismatch
		if !mismatch || retried {
			client.Close()
			if mismatch {
				a.fail(MessageAccountMismatch)
			} else {
				a.failWith("Login failed", err)
			}
			return
		}
		a.logger.Warn("password login hit account mismatch, retrying on a clean store", "error", err)
		var ok bool
		if client, ok = a.recoverMismatch(client); !ok {
			return
		}
		a.enter(stateFreshLogin)
	}
}

// loginSSO runs one SSO round. An account mismatch during the token
// exchange starts a new round, up to restarts times; the captured token
// is single-use and never retried.
func (a *attempt) loginSSO(client Client, restarts int) {
	a.enter(stateAwaitingSSO)
	flow, err := a.manager.sso.Begin(a.ctx, client.SSOURL)
	if errors.Is(err, sso.ErrInProgress) {
		client.Close()
		a.fail(MessageSSOInProgress)
		return
	}
	if err != nil {
		client.Close()
		a.failWith("Failed to start SSO login", err)
		return
	}
	a.logger.Info("sso login waiting for browser", "deadline", flow.Deadline)
	a.manager.currentListener().OnSSOURL(a.accountID, flow.AuthorizationURL)

	outcome := <-flow.Done()
	if outcome.Err != nil {
		client.Close()
		var timeout *sso.TimeoutError
		if errors.As(outcome.Err, &timeout) {
			a.fail(timeout.Error())
			return
		}
		a.failWith("SSO callback server failed", outcome.Err)
		return
	}

	a.enter(stateExchangingToken)
	record, err := client.LoginToken(a.ctx, outcome.Token)
	if err == nil {
		a.connect(client, record)
		return
	}
	if Classify(err) == ErrorAccountMismatch {
		if restarts <= 0 {
			client.Close()
			a.fail(MessageAccountMismatch)
			return
		}
		a.logger.Warn("sso token exchange hit account mismatch, starting a new sso round", "error", err)
		var ok bool
		if client, ok = a.recoverMismatch(client); !ok {
			return
		}
		a.loginSSO(client, restarts-1)
		return
	}
	client.Close()
	a.failWith("SSO Login Failed", err)
}

// connect persists record, registers the session, reports OnConnected
// and starts the sync watcher.
func (a *attempt) connect(client Client, record sessionstore.Record) {
	m := a.manager
	if err := m.sessions.Save(a.accountID, a.dataDir, record); err != nil {
		// Connected anyway; the next start needs a fresh login.
		a.logger.Error("saving session failed", "error", err)
	}

	syncCtx, cancel := context.WithCancel(m.ctx)
	session := &Session{
		AccountID:   a.accountID,
		Homeserver:  a.homeserver,
		DataDir:     a.dataDir,
		UserID:      record.UserID,
		ConnectedAt: m.clock.Now(),
		client:      client,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed || a.ctx.Err() != nil {
		m.mu.Unlock()
		cancel()
		client.Close()
		a.fail(MessageCancelled)
		return
	}
	if !m.registry.add(session) {
		m.mu.Unlock()
		cancel()
		client.Close()
		a.fail("Account is already connected.")
		return
	}
	m.tasks.Add(1)
	m.mu.Unlock()

	if m.beforeConnectReport != nil {
		m.beforeConnectReport(a.ctx, a.accountID)
	}

	// A Disconnect between registering and reporting cancels the attempt
	// and takes the session, so the attempt reports cancellation instead.
	connected := false
	a.reported.Do(func() {
		a.clearPending()
		current, ok := m.registry.Get(a.accountID)
		if a.ctx.Err() != nil || !ok || current != session {
			a.enter(stateFailed)
			a.logger.Info("login cancelled after connecting")
			m.currentListener().OnLoginFailed(a.accountID, MessageCancelled)
			return
		}
		connected = true
		a.enter(stateConnected)
		a.logger.Info("login succeeded", "user_id", record.UserID, "device_id", record.DeviceID)
		m.currentListener().OnConnected(a.accountID)
	})
	if !connected && m.registry.remove(session) {
		cancel()
		client.Close()
		m.tasks.Done()
		return
	}

	// Whoever took the session waits in stop for the watcher to exit.
	go func() {
		defer m.tasks.Done()
		m.watch(syncCtx, session)
	}()
}

// failWith reports err with a prefix, or MessageCancelled if the
// attempt was cancelled.
func (a *attempt) failWith(prefix string, err error) {
	if a.ctx.Err() != nil {
		a.fail(MessageCancelled)
		return
	}
	a.fail(fmt.Sprintf("%s: %v", prefix, err))
}

func (a *attempt) fail(message string) {
	a.reported.Do(func() {
		a.clearPending()
		a.enter(stateFailed)
		a.logger.Warn("login failed", "message", message)
		a.manager.currentListener().OnLoginFailed(a.accountID, message)
	})
}

func (a *attempt) clearPending() {
	m := a.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[a.accountID] == a {
		delete(m.pending, a.accountID)
	}
}
