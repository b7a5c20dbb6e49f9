// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/purple-matrix/lib/datadir"
	"github.com/bureau-foundation/purple-matrix/lib/sso"
)

// FinishSSO completes the waiting SSO round with a pasted redirect URL
// or raw login token. The login itself is reported through the
// Listener. An unusable token returns sso.ErrInvalidToken and leaves
// the round waiting.
func (m *Manager) FinishSSO(input string) error {
	err := m.sso.Complete(input)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sso.ErrNoActiveFlow):
		return ErrNoPendingSSO
	default:
		return err
	}
}

// Logout invalidates the account's session on the server and drops the
// live session. The saved session record is kept; the next Login tries
// it and falls back to a fresh login. The session is dropped even when
// the server call fails.
func (m *Manager) Logout(ctx context.Context, accountID string) error {
	session, ok := m.registry.take(accountID)
	if !ok {
		return ErrNotConnected
	}
	logoutErr := session.client.Logout(ctx)
	session.stop()
	if logoutErr != nil {
		m.logger.Warn("server logout failed", "account_id", accountID, "error", logoutErr)
		return fmt.Errorf("account: logging out %s: %w", accountID, logoutErr)
	}
	m.logger.Info("logged out", "account_id", accountID)
	return nil
}

// Disconnect drops the account's live session and cancels any login
// attempt for it, without contacting the server or touching the saved
// session.
func (m *Manager) Disconnect(accountID string) error {
	found := false
	m.mu.Lock()
	if attempt, ok := m.pending[accountID]; ok {
		attempt.cancel()
		found = true
	}
	m.mu.Unlock()

	if session, ok := m.registry.take(accountID); ok {
		session.stop()
		found = true
	}
	if !found {
		return ErrNotConnected
	}
	m.logger.Info("disconnected", "account_id", accountID)
	return nil
}

// DestroySession logs the account out on the server if it is connected
// and deletes its saved session. It works on a disconnected account
// whose data directory is known from an earlier Login.
func (m *Manager) DestroySession(ctx context.Context, accountID string) error {
	dataDir, known := m.paths.DataPath(accountID)
	session, connected := m.registry.take(accountID)
	if !connected && !known {
		return ErrNotConnected
	}

	var errs []error
	if connected {
		dataDir = session.DataDir
		if err := session.client.Logout(ctx); err != nil {
			errs = append(errs, fmt.Errorf("account: logging out %s: %w", accountID, err))
		}
		session.stop()
	}
	if err := m.sessions.Delete(accountID, dataDir); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("destroy session incomplete", "account_id", accountID, "error", err)
		return err
	}
	m.logger.Info("session destroyed", "account_id", accountID)
	return nil
}

// DeactivateAccount logs out the only connected account. With
// eraseData its saved session and data directory are removed too; a
// data directory that fails the wipe safety checks is reported as
// datadir.ErrUnsafePath.
func (m *Manager) DeactivateAccount(ctx context.Context, eraseData bool) error {
	session, err := m.registry.takeOnly()
	if err != nil {
		return err
	}
	logger := m.logger.With("account_id", session.AccountID, "data_dir", session.DataDir)

	var errs []error
	if err := session.client.Logout(ctx); err != nil {
		errs = append(errs, fmt.Errorf("account: logging out %s: %w", session.AccountID, err))
	}
	session.stop()

	if eraseData {
		if err := m.sessions.Delete(session.AccountID, session.DataDir); err != nil {
			errs = append(errs, err)
		}
		if err := datadir.Wipe(logger, session.DataDir); err != nil {
			errs = append(errs, err)
		} else {
			m.paths.Forget(session.AccountID)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("deactivate incomplete", "error", err)
		return err
	}
	logger.Info("account deactivated", "erase_data", eraseData)
	return nil
}
