package miner

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/djkazic/solominer/internal/bitcoin"
	"github.com/djkazic/solominer/internal/engine"
	"github.com/djkazic/solominer/internal/header"
	"github.com/djkazic/solominer/internal/journal"
	"github.com/djkazic/solominer/internal/merkle"
	"github.com/djkazic/solominer/internal/target"
	"github.com/djkazic/solominer/internal/template"
	"github.com/djkazic/solominer/pkg/util"
	"github.com/djkazic/solominer/testutil"
)

const rewardAddr = testutil.RewardAddress

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func testStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// easyOpts finds a block within a handful of hashes: the regtest-style mock
// template decodes to a target half of all hashes meet.
func easyOpts() Options {
	return Options{
		RewardAddress:      rewardAddr,
		Workers:            2,
		MaxExtraNonceRolls: 2,
	}
}

func TestRunOnce_FoundAndSubmitted(t *testing.T) {
	mock := bitcoin.NewMockRPC()
	store := testStore(t)
	m := New(mock, store, easyOpts(), testLogger())

	res, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Status != engine.StatusFound {
		t.Fatalf("status = %s, want found", res.Status)
	}

	submitted := mock.Submitted()
	if len(submitted) != 1 {
		t.Fatalf("submitted blocks = %d, want 1", len(submitted))
	}

	// The submitted block must start with the solved header, followed by a
	// one-transaction count and the coinbase.
	raw := testutil.MustDecodeHex(t, submitted[0])
	parsed, err := header.Parse(raw[:header.Size])
	if err != nil {
		t.Fatalf("submitted header: %v", err)
	}
	if parsed.Nonce != res.Nonce {
		t.Errorf("submitted nonce = %d, want %d", parsed.Nonce, res.Nonce)
	}
	if raw[header.Size] != 0x01 {
		t.Errorf("tx count = %d, want 1", raw[header.Size])
	}

	// Journal holds the solution, marked submitted.
	rec, ok := store.Get(res.Hash)
	if !ok {
		t.Fatal("solution not journaled")
	}
	if !rec.Submitted || rec.RejectReason != "" {
		t.Errorf("journal outcome = %+v, want accepted", rec)
	}
}

func TestRunOnce_TemplateFetchError(t *testing.T) {
	mock := bitcoin.NewMockRPC()
	mock.GetBlockTemplateErr = errors.New("connection refused")
	m := New(mock, nil, easyOpts(), zap.NewNop())

	if _, err := m.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error from template fetch")
	}
}

func TestRunOnce_MalformedTemplate(t *testing.T) {
	mock := bitcoin.NewMockRPC()
	mock.BlockTemplate.Bits = "zzzz"
	m := New(mock, nil, easyOpts(), zap.NewNop())

	_, err := m.RunOnce(context.Background())
	if !errors.Is(err, template.ErrMalformedTemplate) {
		t.Fatalf("error = %v, want ErrMalformedTemplate", err)
	}
}

func TestRunOnce_SubmissionRejected(t *testing.T) {
	mock := bitcoin.NewMockRPC()
	mock.SubmitBlockErr = &bitcoin.BlockRejectedError{Reason: "high-hash"}
	store := testStore(t)
	m := New(mock, store, easyOpts(), zap.NewNop())

	res, err := m.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if res == nil || res.Status != engine.StatusFound {
		t.Fatal("rejection should still return the found result")
	}

	rec, ok := store.Get(res.Hash)
	if !ok {
		t.Fatal("rejected solution should still be journaled")
	}
	if rec.RejectReason == "" {
		t.Error("journal record missing rejection reason")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	unit, err := target.FromValue(big.NewInt(1))
	if err != nil {
		t.Fatal(err)
	}
	opts := easyOpts()
	opts.TargetOverride = unit // never found, keeps Run searching

	mock := bitcoin.NewMockRPC()
	m := New(mock, nil, opts, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestAssembleBlock(t *testing.T) {
	headerBytes := make([]byte, header.Size)
	coinbaseTx := []byte{0xaa, 0xbb}
	txs := []bitcoin.TemplateTransaction{
		{TxID: "tx1", Data: "ccdd"},
		{TxID: "tx2", Data: "eeff"},
	}

	blockHex, err := AssembleBlock(headerBytes, coinbaseTx, txs)
	if err != nil {
		t.Fatalf("AssembleBlock: %v", err)
	}
	raw := testutil.MustDecodeHex(t, blockHex)

	wantLen := header.Size + 1 + 2 + 2 + 2 // header, varint(3), coinbase, two txs
	if len(raw) != wantLen {
		t.Fatalf("block length = %d, want %d", len(raw), wantLen)
	}
	if raw[header.Size] != 0x03 {
		t.Errorf("tx count = %d, want 3", raw[header.Size])
	}
	if raw[header.Size+1] != 0xaa {
		t.Error("coinbase not directly after the tx count")
	}
}

func TestAssembleBlock_Errors(t *testing.T) {
	if _, err := AssembleBlock(make([]byte, 79), nil, nil); err == nil {
		t.Error("expected error for short header")
	}

	headerBytes := make([]byte, header.Size)
	txs := []bitcoin.TemplateTransaction{{TxID: "bad", Data: "zz"}}
	if _, err := AssembleBlock(headerBytes, []byte{0x00}, txs); err == nil {
		t.Error("expected error for non-hex transaction data")
	}
}

func TestVerifyMerkleRoot(t *testing.T) {
	coinbaseTx := []byte{0x01, 0x02, 0x03}
	txDigest := util.DoubleSHA256([]byte("other-tx"))

	h := header.BlockHeader{Version: 1, Timestamp: 1700000000, Bits: 0x207fffff}
	root, err := merkle.Root([][32]byte{util.DoubleSHA256(coinbaseTx), txDigest})
	if err != nil {
		t.Fatal(err)
	}
	h.MerkleRoot = root

	if err := VerifyMerkleRoot(h.Serialize(), coinbaseTx, [][32]byte{txDigest}); err != nil {
		t.Errorf("correct root rejected: %v", err)
	}

	// A different coinbase must fail verification.
	if err := VerifyMerkleRoot(h.Serialize(), []byte{0xff}, [][32]byte{txDigest}); err == nil {
		t.Error("wrong coinbase accepted")
	}
}

func TestBackoffDuration(t *testing.T) {
	if backoffDuration(1) != retryInterval {
		t.Errorf("backoff(1) = %v", backoffDuration(1))
	}
	if backoffDuration(2) != 2*retryInterval {
		t.Errorf("backoff(2) = %v", backoffDuration(2))
	}
	if backoffDuration(20) != 60*time.Second {
		t.Errorf("backoff(20) = %v, want 60s cap", backoffDuration(20))
	}
}
