// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datadir

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel must appear in any path Wipe is willing to delete.
const Sentinel = "matrix_rust_data"

// minComponents is the component count a path must exceed. The root
// of an absolute path counts as one component, so "/matrix_rust_data"
// has two and "/home/u/matrix_rust_data" four.
const minComponents = 3

// ErrUnsafePath is returned when Wipe refuses a path.
var ErrUnsafePath = errors.New("datadir: refusing to wipe unsafe path")

// IsSafeToWipe reports whether path passes the sentinel and depth
// checks. It does not touch the filesystem.
func IsSafeToWipe(path string) bool {
	if !strings.Contains(path, Sentinel) {
		return false
	}
	return components(path) > minComponents
}

// components counts path elements after cleaning, with the root of an
// absolute path counted as its own element.
func components(path string) int {
	cleaned := filepath.Clean(path)
	count := 0
	if filepath.IsAbs(cleaned) {
		count++
	}
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part != "" && part != "." {
			count++
		}
	}
	return count
}

// Wipe removes path and everything under it. A refused path is logged
// and reported as ErrUnsafePath with nothing touched. A missing path is
// not an error.
func Wipe(logger *slog.Logger, path string) error {
	if logger == nil {
		logger = slog.Default()
	}
	if !IsSafeToWipe(path) {
		logger.Error("safe wipe blocked", "data_dir", path)
		return fmt.Errorf("%w: %q", ErrUnsafePath, path)
	}
	logger.Warn("safe wipe: deleting data directory", "data_dir", path)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("datadir: wiping %s: %w", path, err)
	}
	return nil
}

// WipeAndRecreate wipes path and creates it again, empty and
// owner-only.
func WipeAndRecreate(logger *slog.Logger, path string) error {
	if err := Wipe(logger, path); err != nil {
		return err
	}
	return Ensure(path)
}

// Ensure creates path with mode 0700 if it does not exist.
func Ensure(path string) error {
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("datadir: creating %s: %w", path, err)
	}
	return nil
}
