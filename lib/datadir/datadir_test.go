// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datadir

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bureau-foundation/purple-matrix/lib/testutil"
)

func TestIsSafeToWipe(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/tmp/not_ours", false},
		{"/matrix_rust_data", false},
		{"/home/matrix_rust_data", false},
		{"/home/u/matrix_rust_data", true},
		{"/home/u/.cache/matrix_rust_data/acct1", true},
		{"matrix_rust_data/a/b", false},
		{"x/matrix_rust_data/a/b", true},
		{"/", false},
		{"", false},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			if got := IsSafeToWipe(test.path); got != test.want {
				t.Errorf("IsSafeToWipe(%q) = %v, want %v", test.path, got, test.want)
			}
		})
	}
}

func TestWipeRefusesWithoutTouchingFilesystem(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "not_ours")
	if err := os.MkdirAll(directory, 0700); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(directory, "keep")
	if err := os.WriteFile(marker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	err := Wipe(testutil.Logger(t), directory)
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Wipe err = %v, want ErrUnsafePath", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("refused wipe touched the filesystem: %v", err)
	}
}

func TestWipeRemovesAccountDirectory(t *testing.T) {
	directory := AccountDir(t.TempDir(), "@alice:example.org")
	if err := Ensure(filepath.Join(directory, "nested")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(directory, "engine.db"), []byte("db"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := Wipe(testutil.Logger(t), directory); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if _, err := os.Stat(directory); !os.IsNotExist(err) {
		t.Errorf("directory still exists: %v", err)
	}

	// A second wipe of the now-missing directory is a no-op.
	if err := Wipe(testutil.Logger(t), directory); err != nil {
		t.Errorf("Wipe of missing directory: %v", err)
	}
}

func TestWipeAndRecreate(t *testing.T) {
	directory := AccountDir(t.TempDir(), "bob:example.org")
	if err := Ensure(directory); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(directory, "stale"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := WipeAndRecreate(testutil.Logger(t), directory); err != nil {
		t.Fatalf("WipeAndRecreate: %v", err)
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("recreated directory has %d entries", len(entries))
	}
	info, err := os.Stat(directory)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("mode = %v, want 0700", info.Mode().Perm())
	}
}

func TestAccountDir(t *testing.T) {
	got := AccountDir("/home/u/.purple", `@alice:example.org/x\y`)
	want := "/home/u/.purple/matrix_rust_data/@alice_example.org_x_y"
	if got != want {
		t.Errorf("AccountDir = %q, want %q", got, want)
	}
	if !IsSafeToWipe(got) {
		t.Errorf("AccountDir result %q is not wipeable", got)
	}
}

func TestPathsConcurrent(t *testing.T) {
	var paths Paths
	if _, ok := paths.DataPath("alice"); ok {
		t.Fatal("zero Paths returned an entry")
	}

	var group sync.WaitGroup
	for index := 0; index < 16; index++ {
		group.Add(1)
		go func() {
			defer group.Done()
			paths.Set("alice", "/data/alice")
			paths.DataPath("alice")
		}()
	}
	group.Wait()

	if path, ok := paths.DataPath("alice"); !ok || path != "/data/alice" {
		t.Errorf("DataPath = %q, %v", path, ok)
	}
	paths.Forget("alice")
	if _, ok := paths.DataPath("alice"); ok {
		t.Error("Forget left the entry")
	}
}

func TestDeriveHomeserver(t *testing.T) {
	tests := []struct {
		account    string
		configured string
		want       string
	}{
		{"alice:example.org", "", "https://example.org"},
		{"@alice:example.org", "https://matrix.org", "https://example.org"},
		{"alice:example.org", "https://hs.internal", "https://hs.internal"},
		{"alice:matrix.org", "", "https://matrix.org"},
		{"alice:Matrix.Org", "", "https://matrix.org"},
		{"alice", "", "https://matrix.org"},
		{"alice:", "", "https://matrix.org"},
	}
	for _, test := range tests {
		if got := DeriveHomeserver(test.account, test.configured); got != test.want {
			t.Errorf("DeriveHomeserver(%q, %q) = %q, want %q", test.account, test.configured, got, test.want)
		}
	}
}
