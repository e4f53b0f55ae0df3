package util

import (
	"bytes"
	"testing"
)

func TestDoubleSHA256(t *testing.T) {
	// Known Bitcoin double-SHA256 of "hello"
	data := []byte("hello")
	hash := DoubleSHA256(data)
	hex := BytesToHex(hash[:])
	expected := "9595c9df90075148eb06860365df33584b75bff782a510c6cd4883a419833d50"
	if hex != expected {
		t.Errorf("DoubleSHA256(\"hello\") = %s, want %s", hex, expected)
	}
}

func TestReverseBytes(t *testing.T) {
	input := []byte{0x01, 0x02, 0x03, 0x04}
	result := ReverseBytes(input)
	expected := []byte{0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(result, expected) {
		t.Errorf("ReverseBytes = %x, want %x", result, expected)
	}
	// Original should not be modified
	if input[0] != 0x01 {
		t.Error("ReverseBytes modified original slice")
	}
}

func TestReverseBytesInvolution(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0xab},
		{0x01, 0x02},
		bytes.Repeat([]byte{0x00, 0xff, 0x7f}, 11),
	}
	for _, c := range cases {
		twice := ReverseBytes(ReverseBytes(c))
		if !bytes.Equal(twice, c) && len(c) > 0 {
			t.Errorf("double reverse of %x = %x", c, twice)
		}
	}
}

func TestHashHexRoundTrip(t *testing.T) {
	displayHex := "0000000000000003fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f39"

	h, err := HexToHash(displayHex)
	if err != nil {
		t.Fatalf("HexToHash: %v", err)
	}
	// Internal order is reversed: first byte of the array is the last
	// display byte.
	if h[0] != 0x39 {
		t.Errorf("internal order byte 0 = %02x, want 39", h[0])
	}
	if got := HashToHex(h); got != displayHex {
		t.Errorf("round trip = %s, want %s", got, displayHex)
	}
}

func TestHexToHash_Invalid(t *testing.T) {
	if _, err := HexToHash("zzzz"); err == nil {
		t.Error("expected error for non-hex input")
	}
	if _, err := HexToHash("deadbeef"); err == nil {
		t.Error("expected error for short input")
	}
}

func TestUint32ToBytes(t *testing.T) {
	b := Uint32ToBytes(0x20000000)
	expected := []byte{0x00, 0x00, 0x00, 0x20}
	if !bytes.Equal(b, expected) {
		t.Errorf("Uint32ToBytes = %x, want %x", b, expected)
	}
}
