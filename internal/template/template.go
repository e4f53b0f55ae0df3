// Package template defines the validated block-template input consumed by
// the mining engine, decoupled from however the template was obtained.
package template

import (
	"errors"
	"fmt"

	"github.com/djkazic/solominer/internal/bitcoin"
	"github.com/djkazic/solominer/pkg/util"
)

// ErrMalformedTemplate is returned when a required template field is absent
// or has the wrong shape. Detected before any hashing starts.
var ErrMalformedTemplate = errors.New("malformed block template")

// Block is one mining attempt's immutable input. Hash fields are in internal
// byte order. The engine reads it; nothing mutates it.
type Block struct {
	Version       int32
	PrevBlockHash [32]byte
	TxDigests     [][32]byte // non-coinbase transaction digests, block order
	Bits          uint32
	RewardAddress string
	CoinbaseValue int64 // subsidy plus fees, satoshis
	CurTime       uint32
	Height        int64
}

// Validate checks the boundary invariants: a present previous hash, a
// nonzero compact difficulty encoding, and a non-empty reward address.
func (b *Block) Validate() error {
	if b.Bits == 0 {
		return fmt.Errorf("%w: compact difficulty encoding is zero", ErrMalformedTemplate)
	}
	if b.RewardAddress == "" {
		return fmt.Errorf("%w: empty reward address", ErrMalformedTemplate)
	}
	if b.CurTime == 0 {
		return fmt.Errorf("%w: zero timestamp", ErrMalformedTemplate)
	}
	if b.Height < 0 {
		return fmt.Errorf("%w: negative height %d", ErrMalformedTemplate, b.Height)
	}
	return nil
}

// FromRPC converts a getblocktemplate response into a validated Block.
// Hex fields are decoded and hashes reversed from display to internal order;
// any field of the wrong shape fails with ErrMalformedTemplate.
func FromRPC(tmpl *bitcoin.BlockTemplate, rewardAddress string) (*Block, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("%w: nil template", ErrMalformedTemplate)
	}

	prevHash, err := util.HexToHash(tmpl.PreviousBlockHash)
	if err != nil {
		return nil, fmt.Errorf("%w: previous block hash %q: %v", ErrMalformedTemplate, tmpl.PreviousBlockHash, err)
	}

	bitsBytes, err := util.HexToBytes(tmpl.Bits)
	if err != nil || len(bitsBytes) != 4 {
		return nil, fmt.Errorf("%w: bits %q must be 4 hex bytes", ErrMalformedTemplate, tmpl.Bits)
	}
	bits := uint32(bitsBytes[0])<<24 | uint32(bitsBytes[1])<<16 | uint32(bitsBytes[2])<<8 | uint32(bitsBytes[3])

	digests := make([][32]byte, len(tmpl.Transactions))
	for i, tx := range tmpl.Transactions {
		// getblocktemplate txids are display order; the merkle tree wants
		// internal order.
		d, err := util.HexToHash(tx.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: txid %q at index %d: %v", ErrMalformedTemplate, tx.TxID, i, err)
		}
		digests[i] = d
	}

	b := &Block{
		Version:       tmpl.Version,
		PrevBlockHash: prevHash,
		TxDigests:     digests,
		Bits:          bits,
		RewardAddress: rewardAddress,
		CoinbaseValue: tmpl.CoinbaseValue,
		CurTime:       uint32(tmpl.CurTime),
		Height:        tmpl.Height,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
