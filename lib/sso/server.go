// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/purple-matrix/lib/clock"
)

const (
	// DefaultTimeout bounds how long a flow waits for the browser.
	DefaultTimeout = 180 * time.Second

	// DefaultPollInterval is how often the deadline is checked.
	DefaultPollInterval = time.Second

	// DefaultListenAddress asks the OS for a free loopback port.
	DefaultListenAddress = "127.0.0.1:0"

	callbackPath = "/login"
)

// Response bodies served to the browser.
const (
	responseStateMismatch = "SSO verification failed (invalid state). Please retry login."
	responseSuccess       = "Login successful! You can close this window."
	responseWaiting       = "Waiting for login completion. Please finish login in the original browser tab."
)

var (
	// ErrInProgress is returned by Begin while another flow is active.
	ErrInProgress = errors.New("sso: a login flow is already in progress")

	// ErrTimeout matches the error delivered when no valid callback
	// arrives before the deadline. The concrete error is a
	// *TimeoutError.
	ErrTimeout = errors.New("sso: timed out")

	// ErrNoActiveFlow is returned by Complete when nothing is waiting.
	ErrNoActiveFlow = errors.New("sso: no login flow is waiting for a token")

	// ErrStateMismatch is returned by Complete for a pasted URL whose
	// state was issued for a different flow.
	ErrStateMismatch = errors.New("sso: state token does not match the active flow")

	// ErrInvalidToken is returned by Complete when no login token can
	// be extracted.
	ErrInvalidToken = errors.New("sso: completion token was empty or invalid")
)

// TimeoutError is the user-facing timeout. errors.Is(err, ErrTimeout)
// holds for it.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("SSO timed out after %d seconds. Please try login again.", int(e.Timeout/time.Second))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// URLBuilder turns the loopback redirect URL into the homeserver's SSO
// authorization URL.
type URLBuilder func(ctx context.Context, redirectURL string) (string, error)

// Config holds the parameters for New. Zero fields take defaults.
type Config struct {
	Clock         clock.Clock
	Logger        *slog.Logger
	Timeout       time.Duration
	PollInterval  time.Duration
	ListenAddress string
}

// Server admits at most one Flow at a time.
type Server struct {
	clock         clock.Clock
	logger        *slog.Logger
	timeout       time.Duration
	pollInterval  time.Duration
	listenAddress string

	inProgress atomic.Bool

	mu     sync.Mutex
	active *Flow
}

// New returns an idle Server.
func New(config Config) *Server {
	server := &Server{
		clock:         config.Clock,
		logger:        config.Logger,
		timeout:       config.Timeout,
		pollInterval:  config.PollInterval,
		listenAddress: config.ListenAddress,
	}
	if server.clock == nil {
		server.clock = clock.Real()
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.timeout <= 0 {
		server.timeout = DefaultTimeout
	}
	if server.pollInterval <= 0 {
		server.pollInterval = DefaultPollInterval
	}
	if server.listenAddress == "" {
		server.listenAddress = DefaultListenAddress
	}
	return server
}

// InProgress reports whether a flow is active.
func (s *Server) InProgress() bool { return s.inProgress.Load() }

// Outcome is the single result of a Flow. Exactly one of Token and Err
// is set.
type Outcome struct {
	Token string
	Err   error
}

// Flow is one active SSO round.
type Flow struct {
	// State is the anti-forgery token embedded in RedirectURL.
	State string

	// RedirectURL is the loopback URL the homeserver sends the browser
	// back to.
	RedirectURL string

	// AuthorizationURL is the page the user must open.
	AuthorizationURL string

	// Deadline is when the flow gives up.
	Deadline time.Time

	server     *Server
	logger     *slog.Logger
	httpServer *http.Server
	captured   chan string
	done       chan Outcome
}

// Done delivers the flow's Outcome and is then closed.
func (f *Flow) Done() <-chan Outcome { return f.done }

// Begin starts a flow. ctx bounds buildURL and the whole wait;
// cancelling it ends the flow with ctx.Err(). On any error the
// in-progress flag is released before returning, except for
// ErrInProgress, which has no side effects at all.
func (s *Server) Begin(ctx context.Context, buildURL URLBuilder) (*Flow, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.logger.Warn("SSO flow requested while one is already in progress; ignoring")
		return nil, ErrInProgress
	}

	flow, serveErrors, err := s.start(ctx, buildURL)
	if err != nil {
		s.inProgress.Store(false)
		return nil, err
	}

	s.mu.Lock()
	s.active = flow
	s.mu.Unlock()

	s.logger.Info("listening for SSO callback",
		"redirect_url", flow.RedirectURL,
		"deadline", flow.Deadline,
	)
	go flow.wait(ctx, serveErrors)
	return flow, nil
}

func (s *Server) start(ctx context.Context, buildURL URLBuilder) (*Flow, <-chan error, error) {
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("sso: starting local callback server: %w", err)
	}
	address, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, nil, fmt.Errorf("sso: callback listener bound to non-TCP address %s", listener.Addr())
	}

	state := newStateToken(s.clock.Now())
	redirectURL := fmt.Sprintf("http://localhost:%d%s?state=%s", address.Port, callbackPath, state)

	authorizationURL, err := buildURL(ctx, redirectURL)
	if err != nil {
		listener.Close()
		return nil, nil, fmt.Errorf("sso: building authorization URL: %w", err)
	}

	flow := &Flow{
		State:            state,
		RedirectURL:      redirectURL,
		AuthorizationURL: authorizationURL,
		Deadline:         s.clock.Now().Add(s.timeout),
		server:           s,
		logger:           s.logger,
		captured:         make(chan string, 1),
		done:             make(chan Outcome, 1),
	}
	flow.httpServer = &http.Server{
		Handler:           flow,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	serveErrors := make(chan error, 1)
	go func() {
		if err := flow.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrors <- err
		}
	}()
	return flow, serveErrors, nil
}

// ServeHTTP answers browser redirects to the loopback listener.
func (f *Flow) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writer.Header().Set("Cache-Control", "no-store")

	// Only the query carries a token here. The bare-token form is for
	// pasted input through Complete.
	query := request.URL.RawQuery
	token, ok := QueryParam(query, "loginToken")
	if !ok {
		writer.Write([]byte(responseWaiting))
		return
	}
	if returned, _ := QueryParam(query, "state"); returned != f.State {
		f.logger.Warn("SSO callback with mismatched state ignored")
		writer.Write([]byte(responseStateMismatch))
		return
	}

	writer.Write([]byte(responseSuccess))
	if flusher, ok := writer.(http.Flusher); ok {
		flusher.Flush()
	}
	f.logger.Info("captured SSO token from callback")
	f.capture(token)
}

// capture hands token to the waiter. Later tokens are dropped.
func (f *Flow) capture(token string) bool {
	select {
	case f.captured <- token:
		return true
	default:
		return false
	}
}

func (f *Flow) wait(ctx context.Context, serveErrors <-chan error) {
	ticker := f.server.clock.NewTicker(f.server.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case token := <-f.captured:
			f.finish(Outcome{Token: token})
			return
		case err := <-serveErrors:
			f.finish(Outcome{Err: fmt.Errorf("sso: callback server failed: %w", err)})
			return
		case <-ctx.Done():
			f.finish(Outcome{Err: ctx.Err()})
			return
		case <-ticker.C:
			if !f.server.clock.Now().Before(f.Deadline) {
				f.logger.Warn("SSO flow timed out", "timeout", f.server.timeout)
				f.finish(Outcome{Err: &TimeoutError{Timeout: f.server.timeout}})
				return
			}
		}
	}
}

// finish stops the listener, releases the server for the next flow,
// and only then publishes the outcome, so a receiver may Begin again
// immediately.
func (f *Flow) finish(outcome Outcome) {
	shutdownContext, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := f.httpServer.Shutdown(shutdownContext); err != nil {
		f.httpServer.Close()
	}
	cancel()

	s := f.server
	s.mu.Lock()
	if s.active == f {
		s.active = nil
	}
	s.mu.Unlock()
	s.inProgress.Store(false)

	f.done <- outcome
	close(f.done)
}

// Complete finishes the active flow out of band with a pasted redirect
// URL or bare token. A pasted URL that carries a state must carry the
// active flow's.
func (s *Server) Complete(input string) error {
	token, ok := ExtractLoginToken(input)
	if !ok {
		return ErrInvalidToken
	}

	s.mu.Lock()
	flow := s.active
	s.mu.Unlock()
	if flow == nil {
		return ErrNoActiveFlow
	}
	if returned, present := QueryParam(input, "state"); present && returned != flow.State {
		return ErrStateMismatch
	}
	if !flow.capture(token) {
		// A callback already captured a token for this flow.
		return ErrNoActiveFlow
	}
	s.logger.Info("SSO token supplied out of band")
	return nil
}
