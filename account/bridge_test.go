// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/purple-matrix/lib/sessionstore"
	"github.com/bureau-foundation/purple-matrix/lib/testutil"
)

func TestSyncUpdatesReachListener(t *testing.T) {
	h := newHarness(t)
	h.login(t, "@alice:example.org", "a")
	h.requireConnected(t, "@alice:example.org")

	update := testutil.RequireReceive(t, h.listener.syncs, receiveTimeout, "waiting for OnSync")
	if update.NextBatch != "s1" || update.JoinedRooms != 2 || update.InvitedRooms != 1 {
		t.Errorf("update = %+v", update)
	}
}

func TestSyncUnauthorizedClearsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t, "@alice:example.org", "a")
	h.requireConnected(t, "@alice:example.org")
	marker := filepath.Join(h.dataDir("@alice:example.org"), sessionstore.MarkerFile)

	testutil.RequireSend(t, h.engine.syncEnd, errUnauthorized(), receiveTimeout, "ending sync")

	if message := h.requireFailed(t, "@alice:example.org"); message != MessageSessionExpired {
		t.Errorf("message = %q", message)
	}
	if h.manager.Registry().Len() != 0 {
		t.Error("account still registered")
	}
	if _, err := h.sessions.Load("@alice:example.org", h.dataDir("@alice:example.org")); !errors.Is(err, sessionstore.ErrNoSession) {
		t.Errorf("Load = %v, want ErrNoSession", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("marker survived: %v", err)
	}
	if h.engine.openClients() != 0 {
		t.Error("client not closed")
	}
	h.listener.expectNoReport(t)

	// The next login starts from scratch.
	h.login(t, "@alice:example.org", "a")
	h.requireConnected(t, "@alice:example.org")
	if h.engine.restores != 0 {
		t.Errorf("restores = %d; the cleared session must not be restored", h.engine.restores)
	}
}

func TestSyncLegacyUnauthorizedMessage(t *testing.T) {
	h := newHarness(t)
	h.login(t, "@alice:example.org", "a")
	h.requireConnected(t, "@alice:example.org")

	testutil.RequireSend(t, h.engine.syncEnd, errors.New("http status 401 from /sync"), receiveTimeout, "ending sync")
	if message := h.requireFailed(t, "@alice:example.org"); message != MessageSessionExpired {
		t.Errorf("message = %q", message)
	}
}

func TestSyncOtherErrorIsNotDestructive(t *testing.T) {
	h := newHarness(t)
	h.login(t, "@alice:example.org", "a")
	h.requireConnected(t, "@alice:example.org")

	testutil.RequireSend(t, h.engine.syncEnd, errors.New("engine gave up: disk full"), receiveTimeout, "ending sync")
	testutil.RequireReceive(t, h.engine.syncReturned, receiveTimeout, "waiting for sync to return")

	session, ok := h.manager.Registry().Get("@alice:example.org")
	if !ok {
		t.Fatal("non-auth sync error removed the session")
	}
	testutil.RequireClosed(t, session.done, receiveTimeout, "waiting for the sync watcher to exit")
	if _, err := h.sessions.Load("@alice:example.org", h.dataDir("@alice:example.org")); err != nil {
		t.Errorf("non-auth sync error deleted the saved session: %v", err)
	}
	h.listener.expectNoReport(t)

	// The dead session can still be torn down.
	if err := h.manager.Disconnect("@alice:example.org"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if h.engine.openClients() != 0 {
		t.Error("client not closed")
	}
}
