package coinbase

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/djkazic/solominer/pkg/util"
)

// Addresses from the btcsuite test vectors.
const (
	mainnetP2PKH  = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa" // genesis reward address
	mainnetBech32 = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	testnetP2PKH  = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"
)

func TestBuild_Layout(t *testing.T) {
	b := NewBuilder(&chaincfg.MainNetParams)

	tx, err := b.Build(840000, 312500000, mainnetP2PKH, 7)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw := tx.Bytes()

	// Version 1, little-endian.
	if !bytes.Equal(raw[0:4], []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("version bytes = %x", raw[0:4])
	}
	// One input with a null outpoint.
	if raw[4] != 0x01 {
		t.Errorf("input count = %d, want 1", raw[4])
	}
	if !bytes.Equal(raw[5:37], make([]byte, 32)) {
		t.Error("previous output hash must be all zeros")
	}
	if !bytes.Equal(raw[37:41], []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Error("previous output index must be 0xffffffff")
	}
	// Locktime is the final four bytes, zero.
	if !bytes.Equal(raw[len(raw)-4:], []byte{0x00, 0x00, 0x00, 0x00}) {
		t.Error("locktime must be zero")
	}
}

func TestBuild_SubsidyIsCallerSupplied(t *testing.T) {
	b := NewBuilder(&chaincfg.MainNetParams)

	for _, subsidy := range []int64{0, 1, 625000000, 5000000000} {
		tx, err := b.Build(100, subsidy, mainnetP2PKH, 0)
		if err != nil {
			t.Fatalf("Build(subsidy=%d): %v", subsidy, err)
		}
		raw := tx.Bytes()

		want := make([]byte, 8)
		binary.LittleEndian.PutUint64(want, uint64(subsidy))
		if !bytes.Contains(raw, want) {
			t.Errorf("subsidy %d not serialized into output", subsidy)
		}
	}
}

func TestBuild_AddressForms(t *testing.T) {
	tests := []struct {
		name    string
		params  *chaincfg.Params
		address string
	}{
		{"mainnet p2pkh", &chaincfg.MainNetParams, mainnetP2PKH},
		{"mainnet bech32", &chaincfg.MainNetParams, mainnetBech32},
		{"testnet p2pkh", &chaincfg.TestNet3Params, testnetP2PKH},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(tt.params)
			tx, err := b.Build(800000, 625000000, tt.address, 0)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if len(tx.Bytes()) == 0 {
				t.Error("empty transaction")
			}
		})
	}
}

func TestBuild_InvalidAddress(t *testing.T) {
	b := NewBuilder(&chaincfg.MainNetParams)

	tests := []struct {
		name    string
		address string
	}{
		{"empty", ""},
		{"garbage", "not-an-address"},
		{"wrong network", testnetP2PKH},
		{"truncated", mainnetP2PKH[:10]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(800000, 625000000, tt.address, 0)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Build(%q) error = %v, want ErrInvalidAddress", tt.address, err)
			}
		})
	}
}

func TestSetExtraNonce(t *testing.T) {
	b := NewBuilder(&chaincfg.MainNetParams)

	tx, err := b.Build(800000, 625000000, mainnetP2PKH, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	before := tx.Bytes()
	digestBefore := tx.Digest()

	tx.SetExtraNonce(2)
	after := tx.Bytes()
	digestAfter := tx.Digest()

	if len(before) != len(after) {
		t.Fatal("SetExtraNonce changed transaction length")
	}
	diff := 0
	for i := range before {
		if before[i] != after[i] {
			diff++
			if i < tx.ExtraNonceOffset() || i >= tx.ExtraNonceOffset()+ExtraNonceSize {
				t.Errorf("byte %d changed outside the extra-nonce slot", i)
			}
		}
	}
	if diff == 0 {
		t.Error("SetExtraNonce changed nothing")
	}
	if digestBefore == digestAfter {
		t.Error("digest did not change with the extra nonce")
	}

	// Re-stamping the original value restores the original digest.
	tx.SetExtraNonce(1)
	if tx.Digest() != digestBefore {
		t.Error("restoring the extra nonce did not restore the digest")
	}
}

func TestBuild_ExtraNonceStamped(t *testing.T) {
	b := NewBuilder(&chaincfg.MainNetParams)

	tx, err := b.Build(800000, 625000000, mainnetP2PKH, 0xdeadbeefcafef00d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw := tx.Bytes()
	got := binary.LittleEndian.Uint64(raw[tx.ExtraNonceOffset():])
	if got != 0xdeadbeefcafef00d {
		t.Errorf("extra nonce in script = %x", got)
	}
}

func TestEncodeHeight(t *testing.T) {
	tests := []struct {
		height int64
		want   []byte
	}{
		{0, []byte{}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x00}}, // high bit needs a padding byte
		{800000, []byte{0x00, 0x35, 0x0c}},
		{840000, []byte{0x40, 0xd1, 0x0c}},
	}

	for _, tt := range tests {
		if got := encodeHeight(tt.height); !bytes.Equal(got, tt.want) {
			t.Errorf("encodeHeight(%d) = %x, want %x", tt.height, got, tt.want)
		}
	}
}

func TestDigest_MatchesDoubleSHA(t *testing.T) {
	b := NewBuilder(&chaincfg.MainNetParams)
	tx, err := b.Build(800000, 625000000, mainnetP2PKH, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tx.Digest() != util.DoubleSHA256(tx.Bytes()) {
		t.Error("digest != double SHA-256 of raw bytes")
	}
}
