// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/purple-matrix/lib/ref"
)

// Record is the credential bundle needed to resume a session without
// logging in again. The JSON form is the on-disk and in-keyring format.
type Record struct {
	UserID       string  `json:"user_id"`
	DeviceID     string  `json:"device_id"`
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
}

// Validate checks that the record can be handed to a restore: a
// well-formed user ID and non-empty device and access token.
func (r Record) Validate() error {
	var errs []error
	if _, err := ref.ParseUserID(r.UserID); err != nil {
		errs = append(errs, err)
	}
	if r.DeviceID == "" {
		errs = append(errs, errors.New("device_id is empty"))
	}
	if r.AccessToken == "" {
		errs = append(errs, errors.New("access_token is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sessionstore: invalid record: %w", err)
	}
	return nil
}

// Equal compares every field, including the optional refresh token.
func (r Record) Equal(other Record) bool {
	if r.UserID != other.UserID || r.DeviceID != other.DeviceID || r.AccessToken != other.AccessToken {
		return false
	}
	if (r.RefreshToken == nil) != (other.RefreshToken == nil) {
		return false
	}
	return r.RefreshToken == nil || *r.RefreshToken == *other.RefreshToken
}
