// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"errors"
	"fmt"

	gokeyring "github.com/zalando/go-keyring"
)

// System returns the platform credential store.
func System() Keyring { return systemKeyring{} }

type systemKeyring struct{}

func (systemKeyring) Get(service, account string) (string, error) {
	secret, err := gokeyring.Get(service, account)
	if err != nil {
		return "", translate("get", err)
	}
	return secret, nil
}

func (systemKeyring) Set(service, account, secret string) error {
	if err := gokeyring.Set(service, account, secret); err != nil {
		return translate("set", err)
	}
	return nil
}

func (systemKeyring) Delete(service, account string) error {
	if err := gokeyring.Delete(service, account); err != nil {
		return translate("delete", err)
	}
	return nil
}

func translate(operation string, err error) error {
	if errors.Is(err, gokeyring.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("keyring: system %s: %w", operation, err)
}
