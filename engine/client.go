// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/purple-matrix/account"
	"github.com/bureau-foundation/purple-matrix/lib/ref"
	"github.com/bureau-foundation/purple-matrix/lib/secret"
	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
	"github.com/bureau-foundation/purple-matrix/messaging"
)

// Client is one account's Matrix connection and on-disk store. It
// implements account.Client.
type Client struct {
	engine            *Engine
	matrix            *messaging.Client
	store             *store
	homeserver        string
	accountID         string
	deviceDisplayName string
	logger            *slog.Logger

	mu      sync.Mutex
	session *messaging.DirectSession

	closeOnce sync.Once
	closeErr  error
}

var _ account.Client = (*Client)(nil)

// Homeserver returns the resolved homeserver base URL.
func (c *Client) Homeserver() string { return c.homeserver }

// checkHomeserver fails with an account mismatch if the store was
// bound on a different homeserver. It returns the binding, if any.
func (c *Client) checkHomeserver(ctx context.Context) (binding, bool, error) {
	bound, found, err := c.store.binding(ctx)
	if err != nil {
		return binding{}, false, err
	}
	if found && bound.Homeserver != c.homeserver {
		return binding{}, false, account.Mismatch("engine: store in use by %s on %s, not %s",
			bound.UserID, bound.Homeserver, c.homeserver)
	}
	return bound, found, nil
}

// expectedUser is the user ID the account name refers to, when the
// name is fully qualified.
func (c *Client) expectedUser() (ref.UserID, bool) {
	name, err := ref.ParseAccountName(c.accountID)
	if err != nil {
		return ref.UserID{}, false
	}
	return name.UserID()
}

// loginOptions reuses the bound device when the store belongs to the
// account being logged in.
func (c *Client) loginOptions(bound binding, found bool) messaging.LoginOptions {
	options := messaging.LoginOptions{DeviceDisplayName: c.deviceDisplayName}
	if expected, ok := c.expectedUser(); ok && found && bound.UserID == expected.String() {
		options.DeviceID = bound.DeviceID
	}
	return options
}

// Restore validates record against the store and the homeserver.
func (c *Client) Restore(ctx context.Context, record sessionstore.Record) error {
	bound, found, err := c.checkHomeserver(ctx)
	if err != nil {
		return err
	}
	if found && bound.UserID != record.UserID {
		return account.Mismatch("engine: store in use by %s, not %s", bound.UserID, record.UserID)
	}
	userID, err := ref.ParseUserID(record.UserID)
	if err != nil {
		return fmt.Errorf("engine: restoring session: %w", err)
	}

	session, err := c.matrix.SessionFromToken(userID, record.DeviceID, record.AccessToken)
	if err != nil {
		return fmt.Errorf("engine: restoring session: %w", err)
	}
	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		if messaging.IsUnauthorized(err) {
			return account.Unauthorized(err)
		}
		return fmt.Errorf("engine: validating restored session: %w", err)
	}
	if whoami.UserID != userID {
		session.Close()
		return account.Mismatch("engine: saved token belongs to %s, not %s", whoami.UserID, userID)
	}
	return c.adopt(ctx, session)
}

// LoginPassword logs in with a password and binds the store.
func (c *Client) LoginPassword(ctx context.Context, user string, password *secret.Buffer) (sessionstore.Record, error) {
	bound, found, err := c.checkHomeserver(ctx)
	if err != nil {
		return sessionstore.Record{}, err
	}
	session, err := c.matrix.Login(ctx, user, password, c.loginOptions(bound, found))
	if err != nil {
		return sessionstore.Record{}, fmt.Errorf("engine: %w", err)
	}
	return c.finishLogin(ctx, session, bound, found)
}

// SSOURL checks that the homeserver offers SSO and returns its
// redirect URL.
func (c *Client) SSOURL(ctx context.Context, redirectURL string) (string, error) {
	flows, err := c.matrix.LoginFlows(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: %w", err)
	}
	if !flows.Supports(messaging.LoginTypeSSO) {
		return "", fmt.Errorf("engine: homeserver %s does not offer SSO login", c.homeserver)
	}
	return c.matrix.SSORedirectURL(redirectURL), nil
}

// LoginToken exchanges an SSO login token and binds the store.
func (c *Client) LoginToken(ctx context.Context, token string) (sessionstore.Record, error) {
	bound, found, err := c.checkHomeserver(ctx)
	if err != nil {
		return sessionstore.Record{}, err
	}
	session, err := c.matrix.LoginToken(ctx, token, c.loginOptions(bound, found))
	if err != nil {
		return sessionstore.Record{}, fmt.Errorf("engine: %w", err)
	}
	return c.finishLogin(ctx, session, bound, found)
}

// finishLogin rejects a fresh login for a user other than the one the
// store is bound to. The new server-side device is logged out again so
// it does not linger.
func (c *Client) finishLogin(ctx context.Context, session *messaging.DirectSession, bound binding, found bool) (sessionstore.Record, error) {
	if found && bound.UserID != session.UserID().String() {
		if err := session.Logout(ctx); err != nil {
			c.logger.Warn("logging out mismatched session failed", "error", err)
		}
		session.Close()
		return sessionstore.Record{}, account.Mismatch("engine: store in use by %s, login was for %s",
			bound.UserID, session.UserID())
	}
	if err := c.adopt(ctx, session); err != nil {
		return sessionstore.Record{}, err
	}
	record := sessionstore.Record{
		UserID:      session.UserID().String(),
		DeviceID:    session.DeviceID(),
		AccessToken: session.AccessToken(),
	}
	if refresh, ok := session.RefreshToken(); ok {
		record.RefreshToken = &refresh
	}
	return record, nil
}

// adopt binds the store to session and makes it the active session.
func (c *Client) adopt(ctx context.Context, session *messaging.DirectSession) error {
	err := c.store.bind(ctx, binding{
		UserID:     session.UserID().String(),
		DeviceID:   session.DeviceID(),
		Homeserver: c.homeserver,
	}, c.engine.clock.Now())
	if err != nil {
		session.Close()
		return err
	}

	c.mu.Lock()
	previous := c.session
	c.session = session
	c.mu.Unlock()
	if previous != nil {
		previous.Close()
	}
	return nil
}

func (c *Client) activeSession() (*messaging.DirectSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errors.New("engine: not logged in")
	}
	return c.session, nil
}

// Logout invalidates the session on the server and forgets the sync
// token, since the next session gets a new device.
func (c *Client) Logout(ctx context.Context) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}
	if err := session.Logout(ctx); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.store.clearSync(ctx); err != nil {
		c.logger.Warn("clearing sync token after logout failed", "error", err)
	}
	return nil
}

// Close releases the session memory and the store. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		session := c.session
		c.session = nil
		c.mu.Unlock()
		if session != nil {
			session.Close()
		}
		c.closeErr = c.store.close()
	})
	return c.closeErr
}
