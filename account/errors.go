// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLoginPending is returned by Login while an attempt for the
	// same account is running.
	ErrLoginPending = errors.New("account: login already in progress")

	// ErrAlreadyConnected is returned by Login for a connected account.
	ErrAlreadyConnected = errors.New("account: already connected")

	// ErrNotConnected is returned by operations on an account with no
	// live session.
	ErrNotConnected = errors.New("account: not connected")

	// ErrNoActiveAccount is returned by DeactivateAccount when nothing
	// is connected.
	ErrNoActiveAccount = errors.New("account: no active account")

	// ErrAmbiguousAccount is returned by DeactivateAccount when more
	// than one account is connected.
	ErrAmbiguousAccount = errors.New("account: more than one account is connected")

	// ErrNoPendingSSO is returned by FinishSSO when no attempt is
	// waiting for a login token.
	ErrNoPendingSSO = errors.New("account: no SSO login is waiting for a token")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("account: manager closed")
)

// ErrorKind classifies engine failures by their effect on the
// lifecycle.
type ErrorKind int

const (
	// ErrorOther is any failure with no special handling.
	ErrorOther ErrorKind = iota

	// ErrorAccountMismatch means the on-disk store belongs to another
	// account or homeserver. It is the only trigger for wiping a data
	// directory.
	ErrorAccountMismatch

	// ErrorUnauthorized means the server no longer accepts the
	// session's credentials.
	ErrorUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorAccountMismatch:
		return "account_mismatch"
	case ErrorUnauthorized:
		return "unauthorized"
	default:
		return "other"
	}
}

// EngineError is a classified engine failure.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error { return e.Err }

// Mismatch returns an ErrorAccountMismatch with a formatted message.
func Mismatch(format string, args ...any) error {
	return &EngineError{Kind: ErrorAccountMismatch, Err: fmt.Errorf(format, args...)}
}

// Unauthorized wraps err as an ErrorUnauthorized.
func Unauthorized(err error) error {
	return &EngineError{Kind: ErrorUnauthorized, Err: err}
}

// Classify returns the kind of err. Typed *EngineError values are
// authoritative. Untyped errors fall back to matching the messages Matrix
// SDKs and homeservers produce, for engines that cannot type their
// failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorOther
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	message := err.Error()
	switch {
	case strings.Contains(message, "Mismatched"):
		return ErrorAccountMismatch
	case strings.Contains(message, "M_UNKNOWN_TOKEN"), strings.Contains(message, "401"):
		return ErrorUnauthorized
	}
	return ErrorOther
}
