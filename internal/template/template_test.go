package template

import (
	"errors"
	"testing"

	"github.com/djkazic/solominer/internal/bitcoin"
	"github.com/djkazic/solominer/pkg/util"
	"github.com/djkazic/solominer/testutil"
)

const rewardAddr = testutil.RewardAddress

func sampleRPCTemplate() *bitcoin.BlockTemplate {
	return testutil.SampleBlockTemplate()
}

func TestFromRPC(t *testing.T) {
	b, err := FromRPC(sampleRPCTemplate(), rewardAddr)
	if err != nil {
		t.Fatalf("FromRPC: %v", err)
	}

	if b.Bits != 0x1d00ffff {
		t.Errorf("bits = 0x%08x, want 0x1d00ffff", b.Bits)
	}
	if b.Height != 800000 {
		t.Errorf("height = %d", b.Height)
	}

	// Hashes must be converted to internal byte order.
	wantPrev, _ := util.HexToHash("0000000000000003fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f39")
	if b.PrevBlockHash != wantPrev {
		t.Error("prev hash not in internal byte order")
	}
	if len(b.TxDigests) != 1 {
		t.Fatalf("tx digests = %d, want 1", len(b.TxDigests))
	}
	wantTx, _ := util.HexToHash("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")
	if b.TxDigests[0] != wantTx {
		t.Error("tx digest not in internal byte order")
	}
}

func TestFromRPC_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*bitcoin.BlockTemplate)
		addr   string
	}{
		{"nil template", nil, rewardAddr},
		{"short prev hash", func(b *bitcoin.BlockTemplate) { b.PreviousBlockHash = "deadbeef" }, rewardAddr},
		{"bad prev hash hex", func(b *bitcoin.BlockTemplate) { b.PreviousBlockHash = "zz" + b.PreviousBlockHash[2:] }, rewardAddr},
		{"bits wrong width", func(b *bitcoin.BlockTemplate) { b.Bits = "ffff" }, rewardAddr},
		{"bits not hex", func(b *bitcoin.BlockTemplate) { b.Bits = "1g00ffff" }, rewardAddr},
		{"bad txid", func(b *bitcoin.BlockTemplate) { b.Transactions[0].TxID = "00" }, rewardAddr},
		{"empty reward address", func(*bitcoin.BlockTemplate) {}, ""},
		{"zero timestamp", func(b *bitcoin.BlockTemplate) { b.CurTime = 0 }, rewardAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tmpl *bitcoin.BlockTemplate
			if tt.mutate != nil {
				tmpl = sampleRPCTemplate()
				tt.mutate(tmpl)
			}
			_, err := FromRPC(tmpl, tt.addr)
			if !errors.Is(err, ErrMalformedTemplate) {
				t.Errorf("error = %v, want ErrMalformedTemplate", err)
			}
		})
	}
}

func TestValidate_ZeroBits(t *testing.T) {
	b := &Block{
		RewardAddress: rewardAddr,
		CurTime:       1700000000,
	}
	if err := b.Validate(); !errors.Is(err, ErrMalformedTemplate) {
		t.Errorf("error = %v, want ErrMalformedTemplate", err)
	}
}
