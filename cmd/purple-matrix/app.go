// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/purple-matrix/account"
	"github.com/bureau-foundation/purple-matrix/engine"
	"github.com/bureau-foundation/purple-matrix/lib/config"
	"github.com/bureau-foundation/purple-matrix/lib/datadir"
	"github.com/bureau-foundation/purple-matrix/lib/keyring"
	"github.com/bureau-foundation/purple-matrix/lib/secret"
	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
	"github.com/bureau-foundation/purple-matrix/lib/sso"
)

type eventKind int

const (
	eventConnected eventKind = iota
	eventFailed
	eventSSOURL
	eventSync
)

// event is one Listener callback, delivered to the command goroutine.
type event struct {
	kind      eventKind
	accountID string
	message   string
	update    account.SyncUpdate
}

// app is one account command's wiring: config, logger, session store
// and account manager.
type app struct {
	config   *config.Config
	logger   *slog.Logger
	sessions *sessionstore.Store
	manager  *account.Manager
	events   chan event
	done     chan struct{}
	std      streams

	accountID  string
	homeserver string
	dataDir    string
}

func newApp(flags commonFlags, accountID string, std streams) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
	}
	logger := newLogger(std.stderr, level).With("command", binaryName)

	sessions, err := sessionstore.New(sessionstore.Config{
		Keyring: openKeyring(cfg.Keyring),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	insecure := engine.InsecureTLSFromEnv()
	manager, err := account.New(account.Config{
		Engine: engine.New(engine.Config{InsecureTLS: insecure, Logger: logger}),
		SSO: sso.New(sso.Config{
			Logger:       logger,
			Timeout:      cfg.SSO.Timeout,
			PollInterval: cfg.SSO.PollInterval,
		}),
		Sessions:          sessions,
		Logger:            logger,
		DefaultHomeserver: cfg.Homeserver,
		DeviceDisplayName: cfg.DeviceDisplayName,
	})
	if err != nil {
		return nil, err
	}

	dataDir := flags.dataDir
	if dataDir == "" {
		dataDir = datadir.AccountDir(cfg.DataRoot, accountID)
	}

	a := &app{
		config:     cfg,
		logger:     logger,
		sessions:   sessions,
		manager:    manager,
		events:     make(chan event, 64),
		done:       make(chan struct{}),
		std:        std,
		accountID:  accountID,
		homeserver: flags.homeserver,
		dataDir:    dataDir,
	}
	manager.SetListener(account.ListenerFuncs{
		Connected: func(id string) { a.deliver(event{kind: eventConnected, accountID: id}) },
		LoginFailed: func(id, message string) {
			a.deliver(event{kind: eventFailed, accountID: id, message: message})
		},
		SSOURL: func(id, url string) { a.deliver(event{kind: eventSSOURL, accountID: id, message: url}) },
		Sync: func(id string, update account.SyncUpdate) {
			a.deliver(event{kind: eventSync, accountID: id, update: update})
		},
	})
	return a, nil
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

func openKeyring(cfg config.KeyringConfig) keyring.Keyring {
	if cfg.Backend == config.BackendSealed {
		return keyring.Sealed(cfg.VaultPath, cfg.KeyPath)
	}
	return keyring.System()
}

// deliver drops sync updates when the buffer is full. Other events
// wait for room until close.
func (a *app) deliver(e event) {
	if e.kind == eventSync {
		select {
		case a.events <- e:
		default:
			a.logger.Debug("dropping sync update", "account_id", e.accountID)
		}
		return
	}
	select {
	case a.events <- e:
	case <-a.done:
		a.logger.Warn("dropping account event after close", "account_id", e.accountID, "kind", int(e.kind))
	}
}

// close unblocks pending deliveries before stopping the manager, which
// waits for the goroutines making them.
func (a *app) close() {
	close(a.done)
	a.manager.Close()
}

// connectMode selects what connect does when the homeserver asks for
// an interactive SSO login.
type connectMode int

const (
	// interactive prints the SSO URL and reads completions from stdin.
	interactive connectMode = iota

	// restoreOnly gives up: the command needs an existing session.
	restoreOnly
)

// connect starts a login and waits for its outcome.
func (a *app) connect(ctx context.Context, password *secret.Buffer, mode connectMode) error {
	_, err := a.manager.Login(account.LoginRequest{
		AccountID:  a.accountID,
		Password:   password,
		Homeserver: a.homeserver,
		DataDir:    a.dataDir,
	})
	if err != nil {
		return err
	}

	readingStdin := false
	for {
		select {
		case <-ctx.Done():
			a.manager.Disconnect(a.accountID)
			return ctx.Err()
		case e := <-a.events:
			if e.accountID != a.accountID {
				continue
			}
			switch e.kind {
			case eventConnected:
				return nil
			case eventFailed:
				return errors.New(e.message)
			case eventSSOURL:
				if mode == restoreOnly {
					a.manager.Disconnect(a.accountID)
					return fmt.Errorf("no usable saved session for %s; run '%s login %s' first",
						a.accountID, binaryName, a.accountID)
				}
				fmt.Fprintf(a.std.stdout, "Open this URL in a browser to sign in:\n\n  %s\n\n", e.message)
				fmt.Fprintf(a.std.stdout, "If the browser cannot reach this machine, paste the final redirect URL or login token here.\n")
				if !readingStdin {
					readingStdin = true
					go a.readSSOCompletions()
				}
			}
		}
	}
}

// readSSOCompletions feeds pasted lines to FinishSSO until no SSO round
// is waiting or stdin ends.
func (a *app) readSSOCompletions() {
	scanner := bufio.NewScanner(a.std.stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := a.manager.FinishSSO(line)
		switch {
		case err == nil:
		case errors.Is(err, sso.ErrInvalidToken):
			fmt.Fprintln(a.std.stdout, "That is not a login token or a redirect URL carrying one. Try again.")
		case errors.Is(err, account.ErrNoPendingSSO):
			return
		default:
			a.logger.Warn("completing SSO login failed", "error", err)
		}
	}
}

// readPassword returns nil when no password source is given, which
// selects SSO.
func readPassword(path string, prompt bool, std streams) (*secret.Buffer, error) {
	switch path {
	case "":
	case "-":
		return secret.ReadLine(std.stdin)
	default:
		return secret.ReadFromPath(path)
	}
	if !prompt {
		return nil, nil
	}
	if file, ok := std.stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(std.stderr, "Password: ")
		passwordBytes, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(std.stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		buffer, err := secret.NewFromBytes(passwordBytes)
		if err != nil {
			secret.Zero(passwordBytes)
			return nil, err
		}
		return buffer, nil
	}
	return secret.ReadLine(std.stdin)
}
