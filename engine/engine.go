// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/purple-matrix/account"
	"github.com/bureau-foundation/purple-matrix/lib/clock"
	"github.com/bureau-foundation/purple-matrix/messaging"
)

// Defaults for the sync loop.
const (
	DefaultSyncTimeout = 30 * time.Second
	DefaultMaxBackoff  = 30 * time.Second
)

// Config holds the parameters for New. Every field is optional.
type Config struct {
	// HTTPClient carries all homeserver traffic. Nil builds one with
	// NewHTTPClient(InsecureTLS).
	HTTPClient *http.Client

	// InsecureTLS disables certificate verification when HTTPClient is
	// nil.
	InsecureTLS bool

	Clock  clock.Clock
	Logger *slog.Logger

	// SyncTimeout is the long-poll timeout. Default DefaultSyncTimeout.
	SyncTimeout time.Duration

	// MaxBackoff caps the retry delay after transient sync errors.
	// Default DefaultMaxBackoff.
	MaxBackoff time.Duration

	// SyncFilter is an inline JSON filter or filter ID sent with every
	// sync.
	SyncFilter string
}

// Engine builds Matrix clients. It implements account.Engine.
type Engine struct {
	httpClient  *http.Client
	clock       clock.Clock
	logger      *slog.Logger
	syncTimeout time.Duration
	maxBackoff  time.Duration
	syncFilter  string
}

var _ account.Engine = (*Engine)(nil)

// New returns an Engine.
func New(config Config) *Engine {
	engine := &Engine{
		httpClient:  config.HTTPClient,
		clock:       config.Clock,
		logger:      config.Logger,
		syncTimeout: config.SyncTimeout,
		maxBackoff:  config.MaxBackoff,
		syncFilter:  config.SyncFilter,
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.httpClient == nil {
		if config.InsecureTLS {
			engine.logger.Warn(InsecureTLSEnvironment + " enabled: TLS certificate verification is disabled")
		}
		engine.httpClient = NewHTTPClient(config.InsecureTLS)
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.syncTimeout <= 0 {
		engine.syncTimeout = DefaultSyncTimeout
	}
	if engine.maxBackoff <= 0 {
		engine.maxBackoff = DefaultMaxBackoff
	}
	return engine
}

// Build resolves the homeserver, creates the Matrix client and opens
// the on-disk store in request.DataDir.
func (e *Engine) Build(ctx context.Context, request account.BuildRequest) (account.Client, error) {
	logger := e.logger.With("account_id", request.AccountID)

	baseURL, err := ResolveHomeserver(ctx, e.httpClient, request.Homeserver, logger)
	if err != nil {
		return nil, err
	}
	matrix, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: baseURL,
		HTTPClient:    e.httpClient,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	store, err := openStore(ctx, request.DataDir, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("matrix client built", "homeserver", baseURL, "data_dir", request.DataDir)
	return &Client{
		engine:            e,
		matrix:            matrix,
		store:             store,
		homeserver:        baseURL,
		accountID:         request.AccountID,
		deviceDisplayName: request.DeviceDisplayName,
		logger:            logger.With("homeserver", baseURL),
	}, nil
}
