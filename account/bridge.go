// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import "context"

// watch runs the session's sync loop until ctx ends or the engine gives
// up. An authentication failure clears the account: it leaves the
// registry, its saved session is deleted and the listener is asked to
// re-login. Any other failure is only logged.
func (m *Manager) watch(ctx context.Context, session *Session) {
	defer close(session.done)
	logger := m.logger.With("account_id", session.AccountID)
	logger.Debug("sync watcher started")

	err := session.client.Sync(ctx, func(update SyncUpdate) {
		if syncListener, ok := m.currentListener().(SyncListener); ok {
			syncListener.OnSync(session.AccountID, update)
		}
	})
	if ctx.Err() != nil {
		logger.Debug("sync watcher stopped")
		return
	}

	kind := Classify(err)
	if kind != ErrorUnauthorized {
		logger.Error("sync ended", "error", err, "kind", kind)
		return
	}

	// Whoever removes the session owns its teardown.
	if !m.registry.remove(session) {
		return
	}
	logger.Warn("sync rejected the session credentials, clearing saved session", "error", err)
	if deleteErr := m.sessions.Delete(session.AccountID, session.DataDir); deleteErr != nil {
		logger.Error("deleting saved session failed", "error", deleteErr)
	}
	session.cancel()
	session.client.Close()
	m.currentListener().OnLoginFailed(session.AccountID, MessageSessionExpired)
}
