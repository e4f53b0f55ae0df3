// Package merkle computes Bitcoin Merkle roots over transaction digests.
//
// Digests are handled in internal byte order throughout (raw DoubleSHA256
// output, the reverse of display order). An odd element count at any level
// duplicates the last element — a protocol quirk that must be reproduced
// exactly for hash compatibility.
package merkle

import (
	"errors"

	"github.com/djkazic/solominer/pkg/util"
)

// ErrEmptyInput is returned when a root is requested over zero digests.
// A block always contains at least the coinbase transaction.
var ErrEmptyInput = errors.New("merkle root over empty digest list")

// Root computes the Merkle root of an ordered digest list, coinbase first.
// A single digest is its own root.
func Root(digests [][32]byte) ([32]byte, error) {
	if len(digests) == 0 {
		return [32]byte{}, ErrEmptyInput
	}

	level := make([][32]byte, len(digests))
	copy(level, digests)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}

	return level[0], nil
}

// Branches returns the sibling path from the coinbase leaf to the root,
// given the non-coinbase transaction digests in block order. With the path
// precomputed, RootFromBranches recomputes the root after a coinbase change
// in O(log n) hashes instead of rebuilding the whole tree.
func Branches(txDigests [][32]byte) [][32]byte {
	if len(txDigests) == 0 {
		return nil
	}

	hashes := make([][32]byte, len(txDigests))
	copy(hashes, txDigests)

	var branches [][32]byte
	for len(hashes) > 0 {
		// hashes[0] is the sibling of the coinbase-path node at this level.
		branches = append(branches, hashes[0])
		if len(hashes) == 1 {
			break
		}

		remaining := hashes[1:]
		var next [][32]byte
		for i := 0; i < len(remaining); i += 2 {
			left := remaining[i]
			right := left
			if i+1 < len(remaining) {
				right = remaining[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		hashes = next
	}

	return branches
}

// RootFromBranches folds a coinbase digest through a sibling path produced
// by Branches, yielding the same root as Root over the full digest list.
func RootFromBranches(coinbaseDigest [32]byte, branches [][32]byte) [32]byte {
	current := coinbaseDigest
	for _, branch := range branches {
		current = hashPair(current, branch)
	}
	return current
}

func hashPair(left, right [32]byte) [32]byte {
	combined := make([]byte, 0, 64)
	combined = append(combined, left[:]...)
	combined = append(combined, right[:]...)
	return util.DoubleSHA256(combined)
}
