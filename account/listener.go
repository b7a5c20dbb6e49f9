// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

// Listener receives lifecycle notifications. Calls are made from
// background goroutines and must not block for long; they must not
// call back into the Manager synchronously.
type Listener interface {
	OnConnected(accountID string)
	OnLoginFailed(accountID, message string)
	OnSSOURL(accountID, url string)
}

// SyncListener is optionally implemented by a Listener to receive
// each sync batch of a connected account.
type SyncListener interface {
	OnSync(accountID string, update SyncUpdate)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Connected   func(accountID string)
	LoginFailed func(accountID, message string)
	SSOURL      func(accountID, url string)
	Sync        func(accountID string, update SyncUpdate)
}

func (f ListenerFuncs) OnConnected(accountID string) {
	if f.Connected != nil {
		f.Connected(accountID)
	}
}

func (f ListenerFuncs) OnLoginFailed(accountID, message string) {
	if f.LoginFailed != nil {
		f.LoginFailed(accountID, message)
	}
}

func (f ListenerFuncs) OnSSOURL(accountID, url string) {
	if f.SSOURL != nil {
		f.SSOURL(accountID, url)
	}
}

func (f ListenerFuncs) OnSync(accountID string, update SyncUpdate) {
	if f.Sync != nil {
		f.Sync(accountID, update)
	}
}

type nopListener struct{}

func (nopListener) OnConnected(string)           {}
func (nopListener) OnLoginFailed(string, string) {}
func (nopListener) OnSSOURL(string, string)      {}
