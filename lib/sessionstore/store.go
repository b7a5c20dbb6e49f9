// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/purple-matrix/lib/atomicfile"
	"github.com/bureau-foundation/purple-matrix/lib/keyring"
)

// DefaultNamespace is the keyring service name for session records.
const DefaultNamespace = "purple-matrix-rust"

// MarkerFile is the name of the per-account marker inside the data
// directory.
const MarkerFile = "session.json"

var markerContents = []byte(`{"keyring": true}`)

// ErrNoSession is returned by Load when neither the keyring nor a
// legacy file holds a record.
var ErrNoSession = errors.New("sessionstore: no saved session")

// Config holds the parameters for New.
type Config struct {
	// Keyring is required.
	Keyring keyring.Keyring

	// Namespace defaults to DefaultNamespace.
	Namespace string

	Logger *slog.Logger
}

// Store reads and writes session records. Safe for concurrent use to
// the extent the Keyring is.
type Store struct {
	keyring   keyring.Keyring
	namespace string
	logger    *slog.Logger
}

// New returns a Store.
func New(config Config) (*Store, error) {
	if config.Keyring == nil {
		return nil, fmt.Errorf("sessionstore: Keyring is required")
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{keyring: config.Keyring, namespace: namespace, logger: logger}, nil
}

// Save stores record in the keyring and then writes the marker into
// dataDir with mode 0600, replacing any legacy plaintext file. If the
// keyring write fails nothing is written to disk: a marker must never
// claim the keyring holds a record it does not.
func (s *Store) Save(accountID, dataDir string, record Record) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sessionstore: encoding record: %w", err)
	}
	if err := s.keyring.Set(s.namespace, accountID, string(encoded)); err != nil {
		return fmt.Errorf("sessionstore: saving %s to keyring: %w", accountID, err)
	}
	if err := atomicfile.Write(filepath.Join(dataDir, MarkerFile), markerContents, 0600); err != nil {
		return fmt.Errorf("sessionstore: writing marker: %w", err)
	}
	s.logger.Info("session saved to keyring", "account_id", accountID)
	return nil
}

// Load returns the saved record for accountID. The keyring is
// consulted first; a legacy plaintext session.json in dataDir is read
// only when the keyring has no entry or cannot be reached.
func (s *Store) Load(accountID, dataDir string) (Record, error) {
	encoded, err := s.keyring.Get(s.namespace, accountID)
	switch {
	case err == nil:
		var record Record
		if err := json.Unmarshal([]byte(encoded), &record); err != nil {
			return Record{}, fmt.Errorf("sessionstore: decoding keyring record for %s: %w", accountID, err)
		}
		s.logger.Debug("session loaded from keyring", "account_id", accountID)
		return record, nil
	case !errors.Is(err, keyring.ErrNotFound):
		s.logger.Warn("keyring unavailable, checking legacy session file",
			"account_id", accountID,
			"error", err,
		)
	}
	return s.loadLegacy(dataDir)
}

func (s *Store) loadLegacy(dataDir string) (Record, error) {
	path := filepath.Join(dataDir, MarkerFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNoSession
	}
	if err != nil {
		return Record{}, fmt.Errorf("sessionstore: reading %s: %w", path, err)
	}
	if isMarker(data) {
		// The keyring lost the entry the marker points at.
		return Record{}, ErrNoSession
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("sessionstore: decoding legacy %s: %w", path, err)
	}
	s.logger.Info("session loaded from legacy plaintext file", "path", path)
	return record, nil
}

// Delete removes the keyring entry and the file in dataDir. Missing
// entries are not errors.
func (s *Store) Delete(accountID, dataDir string) error {
	var errs []error
	if err := s.keyring.Delete(s.namespace, accountID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		errs = append(errs, fmt.Errorf("sessionstore: deleting keyring entry for %s: %w", accountID, err))
	}
	if dataDir != "" {
		path := filepath.Join(dataDir, MarkerFile)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("sessionstore: removing %s: %w", path, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("saved session deleted", "account_id", accountID)
	return nil
}

func isMarker(data []byte) bool {
	var marker struct {
		Keyring bool `json:"keyring"`
	}
	return json.Unmarshal(data, &marker) == nil && marker.Keyring
}
