// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datadir

import (
	"path/filepath"
	"strings"
	"sync"
)

// Paths maps account IDs to the data directory their login used. The
// zero value is ready to use and safe for concurrent use.
type Paths struct {
	mu    sync.RWMutex
	paths map[string]string
}

// Set records path for accountID, replacing any earlier entry.
func (p *Paths) Set(accountID, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paths == nil {
		p.paths = make(map[string]string)
	}
	p.paths[accountID] = path
}

// DataPath returns the recorded path for accountID.
func (p *Paths) DataPath(accountID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	path, ok := p.paths[accountID]
	return path, ok
}

// Forget drops the entry for accountID.
func (p *Paths) Forget(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.paths, accountID)
}

// AccountDir returns <root>/matrix_rust_data/<accountID> with ':', '/'
// and '\' in accountID replaced by '_'.
func AccountDir(root, accountID string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\':
			return '_'
		}
		return r
	}, accountID)
	return filepath.Join(root, Sentinel, safe)
}
