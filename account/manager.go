// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/purple-matrix/lib/clock"
	"github.com/bureau-foundation/purple-matrix/lib/datadir"
	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
	"github.com/bureau-foundation/purple-matrix/lib/sso"
)

// Config holds the collaborators of a Manager. Engine and Sessions are
// required.
type Config struct {
	Engine   Engine
	Sessions *sessionstore.Store

	// SSO defaults to an sso.Server with default settings on Clock.
	SSO *sso.Server

	// Clock defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger

	// Listener may also be set later with SetListener.
	Listener Listener

	// DefaultHomeserver is used when a LoginRequest names none and the
	// account ID carries no usable domain.
	DefaultHomeserver string

	// DeviceDisplayName is passed to every Build.
	DeviceDisplayName string
}

// Manager coordinates login attempts and live sessions.
type Manager struct {
	engine            Engine
	sessions          *sessionstore.Store
	sso               *sso.Server
	clock             clock.Clock
	logger            *slog.Logger
	defaultHomeserver string
	deviceDisplayName string

	registry Registry
	paths    datadir.Paths

	listenerMu sync.RWMutex
	listener   Listener

	mu      sync.Mutex
	pending map[string]*attempt
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   sync.WaitGroup

	// beforeConnectReport, when set, runs after a session is registered
	// and before the attempt reports it. Tests use it to interleave
	// operations with a connecting login.
	beforeConnectReport func(ctx context.Context, accountID string)
}

// New returns a Manager with no accounts.
func New(config Config) (*Manager, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("account: Engine is required")
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("account: Sessions is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	ssoServer := config.SSO
	if ssoServer == nil {
		ssoServer = sso.New(sso.Config{Clock: clk, Logger: logger})
	}
	defaultHomeserver := config.DefaultHomeserver
	if defaultHomeserver == "" {
		defaultHomeserver = datadir.DefaultHomeserver
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		engine:            config.Engine,
		sessions:          config.Sessions,
		sso:               ssoServer,
		clock:             clk,
		logger:            logger,
		defaultHomeserver: defaultHomeserver,
		deviceDisplayName: config.DeviceDisplayName,
		pending:           make(map[string]*attempt),
		ctx:               ctx,
		cancel:            cancel,
	}
	manager.SetListener(config.Listener)
	return manager, nil
}

// SetListener replaces the listener. Nil silences notifications.
func (m *Manager) SetListener(listener Listener) {
	if listener == nil {
		listener = nopListener{}
	}
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = listener
}

func (m *Manager) currentListener() Listener {
	m.listenerMu.RLock()
	defer m.listenerMu.RUnlock()
	return m.listener
}

// Registry returns the live sessions.
func (m *Manager) Registry() *Registry { return &m.registry }

// DataPath returns the data directory the last login of accountID used.
func (m *Manager) DataPath(accountID string) (string, bool) {
	return m.paths.DataPath(accountID)
}

// Pending reports whether a login attempt for accountID is running.
func (m *Manager) Pending(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[accountID]
	return ok
}

// Close cancels every login attempt, stops every live session without
// logging out, and waits for background work to finish. Attempts that
// were cancelled report OnLoginFailed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	for _, session := range m.registry.takeAll() {
		session.stop()
	}
	m.tasks.Wait()
	// An attempt may have registered a session between takeAll and
	// its cancellation being observed.
	for _, session := range m.registry.takeAll() {
		session.stop()
	}
	m.logger.Info("account manager closed")
}

// goTask runs fn in a tracked goroutine.
func (m *Manager) goTask(fn func()) {
	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		fn()
	}()
}
