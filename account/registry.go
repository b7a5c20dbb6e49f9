// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Session is a live, connected account.
type Session struct {
	AccountID   string
	Homeserver  string
	DataDir     string
	UserID      string
	ConnectedAt time.Time

	client Client
	cancel context.CancelFunc
	done   chan struct{}
}

// stop ends the sync watcher, waits for it to exit and closes the
// client. Only the goroutine that removed s from the Registry calls
// stop.
func (s *Session) stop() {
	s.cancel()
	<-s.done
	s.client.Close()
}

// Registry maps account IDs to live sessions. At most one session per
// account. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// Get returns the session for accountID.
func (r *Registry) Get(accountID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[accountID]
	return session, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// AccountIDs returns the connected account IDs in sorted order.
func (r *Registry) AccountIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// add inserts session unless its account already has one.
func (r *Registry) add(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.AccountID]; exists {
		return false
	}
	if r.sessions == nil {
		r.sessions = make(map[string]*Session)
	}
	r.sessions[session.AccountID] = session
	return true
}

// take removes and returns the session for accountID.
func (r *Registry) take(accountID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[accountID]
	if ok {
		delete(r.sessions, accountID)
	}
	return session, ok
}

// remove deletes session only if it is still the registered one.
func (r *Registry) remove(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[session.AccountID] != session {
		return false
	}
	delete(r.sessions, session.AccountID)
	return true
}

// takeOnly removes and returns the single live session.
func (r *Registry) takeOnly() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch len(r.sessions) {
	case 0:
		return nil, ErrNoActiveAccount
	case 1:
		for id, session := range r.sessions {
			delete(r.sessions, id)
			return session, nil
		}
	}
	return nil, ErrAmbiguousAccount
}

// takeAll empties the registry.
func (r *Registry) takeAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.sessions = nil
	return sessions
}
