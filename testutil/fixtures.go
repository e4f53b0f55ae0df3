package testutil

import (
	"math/big"

	"github.com/djkazic/solominer/internal/bitcoin"
	"github.com/djkazic/solominer/internal/target"
)

// RewardAddress is the mainnet genesis address, valid for fixture templates.
const RewardAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

// SampleBlockTemplate returns a minimal mainnet-difficulty template with one
// non-coinbase transaction.
func SampleBlockTemplate() *bitcoin.BlockTemplate {
	return &bitcoin.BlockTemplate{
		Version:           536870912,
		PreviousBlockHash: "0000000000000003fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f39",
		Transactions: []bitcoin.TemplateTransaction{
			{TxID: "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"},
		},
		CoinbaseValue: 625000000,
		CurTime:       1700000000,
		Bits:          "1d00ffff",
		Height:        800000,
	}
}

// EasyTarget returns a target every possible hash meets.
func EasyTarget() *target.Target {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	tgt, err := target.FromValue(max)
	if err != nil {
		panic(err)
	}
	return tgt
}
