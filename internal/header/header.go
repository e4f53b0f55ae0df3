// Package header implements the 80-byte Bitcoin block header.
package header

import (
	"encoding/binary"
	"fmt"

	"github.com/djkazic/solominer/pkg/util"
)

// Size is the serialized length of a block header.
const Size = 80

// BlockHeader holds the canonical header fields. Hash fields are in internal
// byte order (the reverse of display order).
type BlockHeader struct {
	Version       int32
	PrevBlockHash [32]byte
	MerkleRoot    [32]byte
	Timestamp     uint32
	Bits          uint32
	Nonce         uint32
}

// Serialize produces the fixed 80-byte wire layout: version, previous hash,
// merkle root, timestamp, nBits, nonce, with every integer little-endian.
func (h *BlockHeader) Serialize() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlockHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// WithNonce returns a copy of the header with only the nonce replaced.
// Serializations of the two headers differ only in the last four bytes.
func (h *BlockHeader) WithNonce(nonce uint32) BlockHeader {
	out := *h
	out.Nonce = nonce
	return out
}

// Hash computes the double-SHA256 of the serialized header (the block hash,
// internal byte order).
func (h *BlockHeader) Hash() [32]byte {
	return util.DoubleSHA256(h.Serialize())
}

// HashHex returns the block hash in display order.
func (h *BlockHeader) HashHex() string {
	return util.HashToHex(h.Hash())
}

// Parse decodes an 80-byte serialized header.
func Parse(data []byte) (*BlockHeader, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("header must be %d bytes, got %d", Size, len(data))
	}

	h := &BlockHeader{
		Version:   int32(binary.LittleEndian.Uint32(data[0:4])),
		Timestamp: binary.LittleEndian.Uint32(data[68:72]),
		Bits:      binary.LittleEndian.Uint32(data[72:76]),
		Nonce:     binary.LittleEndian.Uint32(data[76:80]),
	}
	copy(h.PrevBlockHash[:], data[4:36])
	copy(h.MerkleRoot[:], data[36:68])
	return h, nil
}
