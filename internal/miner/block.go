package miner

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/djkazic/solominer/internal/bitcoin"
	"github.com/djkazic/solominer/internal/header"
	"github.com/djkazic/solominer/internal/merkle"
	"github.com/djkazic/solominer/pkg/util"
)

// AssembleBlock builds the full serialized block for submission: the solved
// 80-byte header, a transaction count, the coinbase, then every template
// transaction in order. Returns the hex string submitblock expects.
func AssembleBlock(headerBytes []byte, coinbaseTx []byte, txs []bitcoin.TemplateTransaction) (string, error) {
	if len(headerBytes) != header.Size {
		return "", fmt.Errorf("header must be %d bytes, got %d", header.Size, len(headerBytes))
	}

	var buf bytes.Buffer
	buf.Write(headerBytes)
	buf.Write(util.WriteVarInt(uint64(1 + len(txs))))
	buf.Write(coinbaseTx)

	for _, tx := range txs {
		txBytes, err := hex.DecodeString(tx.Data)
		if err != nil {
			return "", fmt.Errorf("decode template tx %s: %w", tx.TxID, err)
		}
		buf.Write(txBytes)
	}

	return hex.EncodeToString(buf.Bytes()), nil
}

// VerifyMerkleRoot independently recomputes the Merkle root from the
// coinbase and transaction digests and compares it against the solved
// header. A mismatch means the block would be rejected; catching it here
// keeps a bad submission off the wire.
func VerifyMerkleRoot(headerBytes []byte, coinbaseTx []byte, txDigests [][32]byte) error {
	parsed, err := header.Parse(headerBytes)
	if err != nil {
		return err
	}

	digests := append([][32]byte{util.DoubleSHA256(coinbaseTx)}, txDigests...)
	expected, err := merkle.Root(digests)
	if err != nil {
		return err
	}

	if parsed.MerkleRoot != expected {
		return fmt.Errorf("merkle root mismatch: header=%x expected=%x tx_count=%d",
			parsed.MerkleRoot, expected, len(txDigests))
	}
	return nil
}
