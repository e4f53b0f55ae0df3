// Package target decodes Bitcoin's compact difficulty encoding (nBits) and
// answers whether a block hash satisfies the decoded 256-bit target.
package target

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/djkazic/solominer/pkg/util"
)

// ErrInvalidEncoding is returned when a compact encoding cannot represent a
// valid proof-of-work target.
var ErrInvalidEncoding = errors.New("invalid compact target encoding")

// maxTargetBytes is the widest representable target (256 bits).
const maxTargetBytes = 32

// MainnetMaxTarget is Bitcoin mainnet's maximum target (difficulty 1).
var MainnetMaxTarget = mustValue(0x1d00ffff)

// Target is a decoded 256-bit proof-of-work target. It is immutable after
// Decode and safe to share across mining workers.
type Target struct {
	value   *big.Int
	compact uint32
}

// Decode converts a compact (nBits) encoding to a Target.
//
// The encoding is a base-256 float: the high byte is the total byte length
// of the target, the low three bytes are the mantissa. It fails if the
// mantissa sign bit is set (negative targets are meaningless for PoW) or the
// indicated length exceeds 32 bytes. A zero encoding decodes to the zero
// target, which no hash can meet.
func Decode(compact uint32) (*Target, error) {
	if compact&0x00800000 != 0 {
		return nil, fmt.Errorf("%w: mantissa sign bit set in 0x%08x", ErrInvalidEncoding, compact)
	}

	exponent := compact >> 24
	if exponent > maxTargetBytes {
		return nil, fmt.Errorf("%w: length %d exceeds %d bytes", ErrInvalidEncoding, exponent, maxTargetBytes)
	}

	return &Target{value: decodeValue(compact), compact: compact}, nil
}

func decodeValue(compact uint32) *big.Int {
	exponent := compact >> 24
	mantissa := compact & 0x007fffff

	value := new(big.Int).SetUint64(uint64(mantissa))
	if exponent <= 3 {
		value.Rsh(value, uint(8*(3-exponent)))
	} else {
		value.Lsh(value, uint(8*(exponent-3)))
	}
	return value
}

func mustValue(compact uint32) *big.Int {
	return decodeValue(compact)
}

// Meets reports whether a block hash (internal byte order, as produced by
// DoubleSHA256) satisfies the target. The hash bytes are reversed to the
// protocol's numeric order before comparison; equality satisfies. The zero
// target is never met.
func (t *Target) Meets(hash [32]byte) bool {
	if t.value.Sign() == 0 {
		return false
	}
	hashInt := new(big.Int).SetBytes(util.ReverseBytes(hash[:]))
	return hashInt.Cmp(t.value) <= 0
}

// Compact returns the encoding this target was decoded from.
func (t *Target) Compact() uint32 {
	return t.compact
}

// Value returns a copy of the target as a big integer.
func (t *Target) Value() *big.Int {
	return new(big.Int).Set(t.value)
}

// Difficulty returns the target's difficulty relative to mainnet's maximum
// target (difficulty 1).
func (t *Target) Difficulty() float64 {
	if t.value.Sign() == 0 {
		return 0
	}
	maxFloat := new(big.Float).SetInt(MainnetMaxTarget)
	targetFloat := new(big.Float).SetInt(t.value)
	diff, _ := new(big.Float).Quo(maxFloat, targetFloat).Float64()
	return diff
}

// FromValue builds a Target directly from a 256-bit value, re-deriving the
// compact encoding. Used by the difficulty-override path, where the caller
// supplies a target rather than the template's nBits.
func FromValue(value *big.Int) (*Target, error) {
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative target", ErrInvalidEncoding)
	}
	if len(value.Bytes()) > maxTargetBytes {
		return nil, fmt.Errorf("%w: value wider than %d bytes", ErrInvalidEncoding, maxTargetBytes)
	}
	return &Target{value: new(big.Int).Set(value), compact: encodeCompact(value)}, nil
}

// FromDifficulty builds a Target from a difficulty relative to mainnet's
// maximum target. Difficulty 0 maps to the maximum target.
func FromDifficulty(difficulty float64) (*Target, error) {
	if difficulty < 0 {
		return nil, fmt.Errorf("%w: negative difficulty", ErrInvalidEncoding)
	}
	if difficulty == 0 {
		return FromValue(MainnetMaxTarget)
	}
	maxFloat := new(big.Float).SetInt(MainnetMaxTarget)
	diffFloat := new(big.Float).SetFloat64(difficulty)
	value, _ := new(big.Float).Quo(maxFloat, diffFloat).Int(nil)
	return FromValue(value)
}

// encodeCompact converts a target value to the compact (nBits) encoding.
// Inverse of decodeValue for canonically-encoded values.
func encodeCompact(value *big.Int) uint32 {
	if value.Sign() == 0 {
		return 0
	}

	b := value.Bytes()
	size := uint32(len(b))

	var mantissa uint32
	if size <= 3 {
		for i, v := range b {
			mantissa |= uint32(v) << uint(8*(2-uint32(i)-(3-size)))
		}
	} else {
		mantissa = (uint32(b[0]) << 16) | (uint32(b[1]) << 8) | uint32(b[2])
	}

	// Shift right if the mantissa high bit is set, so the encoding is not
	// interpreted as negative.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}

	return (size << 24) | (mantissa & 0x007fffff)
}
