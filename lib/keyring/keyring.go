// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Get and Delete when no entry exists.
var ErrNotFound = errors.New("keyring: entry not found")

// Keyring stores one secret per (service, account).
type Keyring interface {
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
	Delete(service, account string) error
}

// Memory returns an empty in-process Keyring.
func Memory() *MemoryKeyring {
	return &MemoryKeyring{entries: make(map[entryKey]string)}
}

// MemoryKeyring is safe for concurrent use. FailSet, when non-nil, is
// returned by Set without storing anything.
type MemoryKeyring struct {
	mu      sync.Mutex
	entries map[entryKey]string
	FailSet error
}

type entryKey struct {
	service string
	account string
}

func (m *MemoryKeyring) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secret, ok := m.entries[entryKey{service, account}]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *MemoryKeyring) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	m.entries[entryKey{service, account}] = secret
	return nil
}

func (m *MemoryKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entryKey{service, account}
	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

// Len returns the number of entries.
func (m *MemoryKeyring) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
