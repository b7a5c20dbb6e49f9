// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/purple-matrix/lib/atomicfile"
	"github.com/bureau-foundation/purple-matrix/lib/codec"
	"github.com/bureau-foundation/purple-matrix/lib/sealed"
	"github.com/bureau-foundation/purple-matrix/lib/secret"
)

// SealedKeyring is a Keyring persisted as a single age-encrypted
// file. Every operation decrypts the vault, and Set and Delete
// re-encrypt and atomically replace it. Safe for concurrent use within
// one process; concurrent processes sharing a vault race on write.
type SealedKeyring struct {
	mu        sync.Mutex
	vaultPath string
	keyPath   string
}

// vaultContents is the CBOR payload inside the age envelope.
type vaultContents struct {
	Version int                          `cbor:"version"`
	Entries map[string]map[string]string `cbor:"entries"`
}

const vaultVersion = 1

// Sealed returns a vault at vaultPath encrypted to the identity at
// keyPath. Neither file needs to exist yet.
func Sealed(vaultPath, keyPath string) *SealedKeyring {
	return &SealedKeyring{vaultPath: vaultPath, keyPath: keyPath}
}

func (s *SealedKeyring) Get(service, account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	privateKey, err := s.loadKey(false)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, statErr := os.Stat(s.vaultPath); statErr == nil {
			return "", fmt.Errorf("keyring: vault %s exists but key %s is missing", s.vaultPath, s.keyPath)
		}
		return "", ErrNotFound
	}
	defer privateKey.Close()

	contents, err := s.read(privateKey)
	if err != nil {
		return "", err
	}
	value, ok := contents.Entries[service][account]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *SealedKeyring) Set(service, account, value string) error {
	return s.update(func(contents *vaultContents) error {
		accounts := contents.Entries[service]
		if accounts == nil {
			accounts = make(map[string]string)
			contents.Entries[service] = accounts
		}
		accounts[account] = value
		return nil
	})
}

func (s *SealedKeyring) Delete(service, account string) error {
	return s.update(func(contents *vaultContents) error {
		accounts := contents.Entries[service]
		if _, ok := accounts[account]; !ok {
			return ErrNotFound
		}
		delete(accounts, account)
		if len(accounts) == 0 {
			delete(contents.Entries, service)
		}
		return nil
	})
}

func (s *SealedKeyring) update(mutate func(*vaultContents) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	privateKey, err := s.loadKey(true)
	if err != nil {
		return err
	}
	defer privateKey.Close()

	contents, err := s.read(privateKey)
	if err != nil {
		return err
	}
	if err := mutate(contents); err != nil {
		return err
	}

	publicKey, err := sealed.PublicKey(privateKey)
	if err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	payload, err := codec.Marshal(contents)
	if err != nil {
		return fmt.Errorf("keyring: encoding vault: %w", err)
	}
	ciphertext, err := sealed.Encrypt(payload, []string{publicKey})
	secret.Zero(payload)
	if err != nil {
		return fmt.Errorf("keyring: sealing vault: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.vaultPath), 0700); err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	if err := atomicfile.Write(s.vaultPath, []byte(ciphertext+"\n"), 0600); err != nil {
		return fmt.Errorf("keyring: writing vault: %w", err)
	}
	return nil
}

// read returns an empty vault when the file does not exist.
func (s *SealedKeyring) read(privateKey *secret.Buffer) (*vaultContents, error) {
	contents := &vaultContents{Version: vaultVersion, Entries: make(map[string]map[string]string)}

	data, err := os.ReadFile(s.vaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return contents, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: reading vault: %w", err)
	}

	plaintext, err := sealed.Decrypt(strings.TrimSpace(string(data)), privateKey)
	if err != nil {
		return nil, fmt.Errorf("keyring: opening vault %s: %w", s.vaultPath, err)
	}
	defer plaintext.Close()

	if err := codec.Unmarshal(plaintext.Bytes(), contents); err != nil {
		return nil, fmt.Errorf("keyring: decoding vault: %w", err)
	}
	if contents.Version != vaultVersion {
		return nil, fmt.Errorf("keyring: vault %s has version %d, want %d", s.vaultPath, contents.Version, vaultVersion)
	}
	if contents.Entries == nil {
		contents.Entries = make(map[string]map[string]string)
	}
	return contents, nil
}

// loadKey reads the identity, generating it when create is set and
// the key file does not exist.
func (s *SealedKeyring) loadKey(create bool) (*secret.Buffer, error) {
	privateKey, err := secret.ReadFromPath(s.keyPath)
	switch {
	case err == nil:
		return privateKey, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("keyring: reading vault key: %w", err)
	case !create:
		return nil, err
	}
	if _, statErr := os.Stat(s.vaultPath); statErr == nil {
		return nil, fmt.Errorf("keyring: vault %s exists but key %s is missing", s.vaultPath, s.keyPath)
	}

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		keypair.Close()
		return nil, fmt.Errorf("keyring: %w", err)
	}
	if err := atomicfile.Write(s.keyPath, keypair.PrivateKey.Bytes(), 0600); err != nil {
		keypair.Close()
		return nil, fmt.Errorf("keyring: writing vault key: %w", err)
	}
	return keypair.PrivateKey, nil
}
