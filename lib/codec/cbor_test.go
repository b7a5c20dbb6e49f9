// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type vaultEntry struct {
	Service string `json:"service"`
	Account string `json:"account"`
	Secret  string `json:"secret,omitempty"`
}

func TestMarshalDeterministicMaps(t *testing.T) {
	first := map[string]string{"b": "2", "a": "1", "c": "3"}
	second := map[string]string{"c": "3", "a": "1", "b": "2"}

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("equal maps encoded differently: %x vs %x", firstBytes, secondBytes)
	}
}

func TestJSONTagFallbackAndOmitempty(t *testing.T) {
	encoded, err := Marshal(vaultEntry{Service: "purple-matrix", Account: "alice"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["service"] != "purple-matrix" || decoded["account"] != "alice" {
		t.Errorf("decoded = %v, want json tag keys", decoded)
	}
	if _, present := decoded["secret"]; present {
		t.Error("empty secret was encoded despite omitempty")
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var target vaultEntry
	if err := Unmarshal([]byte{0xff, 0xff}, &target); err == nil {
		t.Fatal("Unmarshal of garbage succeeded")
	}
}
