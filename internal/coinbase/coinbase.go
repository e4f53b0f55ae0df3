// Package coinbase builds the coinbase transaction paying the block reward
// to the miner's address.
//
// The transaction is deliberately minimal: one null-outpoint input whose
// script carries the BIP 34 height, an extra-nonce slot, and a tag; one
// output paying the reward address. The extra-nonce slot lets the engine
// vary the coinbase digest (and so the Merkle root) without requesting a
// new template once the header's own nonce range is exhausted.
package coinbase

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/djkazic/solominer/pkg/util"
)

// ErrInvalidAddress is returned when a reward address cannot be decoded
// into a locking script for the configured network.
var ErrInvalidAddress = errors.New("invalid reward address")

// ExtraNonceSize is the width of the extra-nonce slot in the input script.
const ExtraNonceSize = 8

// DefaultTag is appended to the input script after the extra nonce.
var DefaultTag = []byte("/solominer/")

const (
	txVersion     = 1
	sequenceFinal = 0xffffffff
)

// Builder constructs coinbase transactions for one network.
type Builder struct {
	params *chaincfg.Params
	tag    []byte
}

// NewBuilder creates a Builder for the given chain parameters.
func NewBuilder(params *chaincfg.Params) *Builder {
	return &Builder{params: params, tag: DefaultTag}
}

// Tx is a built coinbase transaction. The extra nonce can be re-stamped in
// place; everything else is fixed at build time.
type Tx struct {
	raw              []byte
	extraNonceOffset int
}

// Build assembles a coinbase transaction paying subsidySats to
// rewardAddress. The subsidy is supplied by the caller (template coinbase
// value, i.e. block subsidy plus fees) and never hardcoded here.
func (b *Builder) Build(height int64, subsidySats int64, rewardAddress string, extraNonce uint64) (*Tx, error) {
	if rewardAddress == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	addr, err := btcutil.DecodeAddress(rewardAddress, b.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, rewardAddress, err)
	}
	if !addr.IsForNet(b.params) {
		return nil, fmt.Errorf("%w: %q is not a %s address", ErrInvalidAddress, rewardAddress, b.params.Name)
	}
	lockingScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, rewardAddress, err)
	}

	scriptSig, nonceOffsetInScript := b.buildScriptSig(height, extraNonce)

	var buf bytes.Buffer
	buf.Write(util.Uint32ToBytes(txVersion))

	// Single input with a null previous outpoint.
	buf.Write(util.WriteVarInt(1))
	buf.Write(make([]byte, 32))
	buf.Write(util.Uint32ToBytes(0xffffffff))

	buf.Write(util.WriteVarInt(uint64(len(scriptSig))))
	scriptSigStart := buf.Len()
	buf.Write(scriptSig)
	buf.Write(util.Uint32ToBytes(sequenceFinal))

	// Single output paying the reward.
	buf.Write(util.WriteVarInt(1))
	buf.Write(util.Uint64ToBytes(uint64(subsidySats)))
	buf.Write(util.WriteVarInt(uint64(len(lockingScript))))
	buf.Write(lockingScript)

	// Locktime
	buf.Write(util.Uint32ToBytes(0))

	return &Tx{
		raw:              buf.Bytes(),
		extraNonceOffset: scriptSigStart + nonceOffsetInScript,
	}, nil
}

// buildScriptSig assembles the input script: BIP 34 height push, extra-nonce
// push, tag push. Returns the script and the byte offset of the extra-nonce
// value within it.
func (b *Builder) buildScriptSig(height int64, extraNonce uint64) ([]byte, int) {
	var script bytes.Buffer

	heightPush := encodeHeight(height)
	script.Write(util.WriteScriptLen(len(heightPush)))
	script.Write(heightPush)

	script.Write(util.WriteScriptLen(ExtraNonceSize))
	offset := script.Len()
	script.Write(util.Uint64ToBytes(extraNonce))

	if len(b.tag) > 0 {
		script.Write(util.WriteScriptLen(len(b.tag)))
		script.Write(b.tag)
	}

	return script.Bytes(), offset
}

// encodeHeight serializes a block height as a minimal little-endian script
// number, per BIP 34. A trailing zero byte keeps the value positive when the
// high bit of the top byte is set.
func encodeHeight(height int64) []byte {
	if height == 0 {
		return []byte{}
	}
	var out []byte
	v := height
	for v > 0 {
		out = append(out, byte(v&0xff))
		v >>= 8
	}
	if out[len(out)-1]&0x80 != 0 {
		out = append(out, 0x00)
	}
	return out
}

// Bytes returns a copy of the raw transaction.
func (tx *Tx) Bytes() []byte {
	out := make([]byte, len(tx.raw))
	copy(out, tx.raw)
	return out
}

// Digest returns the transaction id: double SHA-256 of the raw bytes, in
// internal byte order.
func (tx *Tx) Digest() [32]byte {
	return util.DoubleSHA256(tx.raw)
}

// SetExtraNonce re-stamps the extra-nonce slot in place. Only the eight
// slot bytes change; the transaction layout is otherwise untouched.
func (tx *Tx) SetExtraNonce(n uint64) {
	binary.LittleEndian.PutUint64(tx.raw[tx.extraNonceOffset:tx.extraNonceOffset+ExtraNonceSize], n)
}

// ExtraNonceOffset returns the byte offset of the extra-nonce slot within
// the raw transaction.
func (tx *Tx) ExtraNonceOffset() int {
	return tx.extraNonceOffset
}
