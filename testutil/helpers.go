// Package testutil holds fixtures shared across package tests.
package testutil

import (
	"encoding/hex"
	"testing"
)

// MustDecodeHex decodes hex or fails the test.
func MustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}

// HashFromHex converts a display-order hex string to a [32]byte in internal
// byte order.
func HashFromHex(t *testing.T, s string) [32]byte {
	t.Helper()
	b := MustDecodeHex(t, s)
	if len(b) != 32 {
		t.Fatalf("hash %q is %d bytes, want 32", s, len(b))
	}
	var h [32]byte
	for i, v := range b {
		h[31-i] = v
	}
	return h
}
