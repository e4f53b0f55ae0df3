// Package miner drives mining invocations end to end: fetch a template,
// run the engine, and submit and journal anything it finds.
package miner

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"github.com/djkazic/solominer/internal/bitcoin"
	"github.com/djkazic/solominer/internal/engine"
	"github.com/djkazic/solominer/internal/journal"
	"github.com/djkazic/solominer/internal/metrics"
	"github.com/djkazic/solominer/internal/target"
	"github.com/djkazic/solominer/internal/template"
	"github.com/djkazic/solominer/pkg/util"
)

// retryInterval is the base delay before re-fetching a template after an
// RPC failure.
const retryInterval = 5 * time.Second

// Options configures the mining loop.
type Options struct {
	RewardAddress      string
	ChainParams        *chaincfg.Params
	Workers            int
	MaxExtraNonceRolls int

	// TargetOverride replaces the template difficulty for hash acceptance
	// when set. See engine.Config.
	TargetOverride *target.Target
}

// Miner owns the template→engine→submission loop.
type Miner struct {
	rpc     bitcoin.RPC
	journal *journal.Store
	opts    Options
	logger  *zap.Logger
}

// New creates a Miner. The journal may be nil to skip solution persistence.
func New(rpc bitcoin.RPC, store *journal.Store, opts Options, logger *zap.Logger) *Miner {
	if opts.ChainParams == nil {
		opts.ChainParams = &chaincfg.MainNetParams
	}
	return &Miner{
		rpc:     rpc,
		journal: store,
		opts:    opts,
		logger:  logger,
	}
}

// Run mines until the context is cancelled. Each iteration is one engine
// invocation against a fresh template; exhausted invocations simply start
// over, which also picks up the latest chain tip and timestamp.
func (m *Miner) Run(ctx context.Context) error {
	var consecutiveFailures int

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := m.RunOnce(ctx)
		if err != nil {
			consecutiveFailures++
			delay := backoffDuration(consecutiveFailures)
			m.logger.Warn("mining invocation failed",
				zap.Error(err),
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Duration("next_retry", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		if consecutiveFailures > 0 {
			m.logger.Info("recovered", zap.Int("after_failures", consecutiveFailures))
			consecutiveFailures = 0
		}

		if res.Status == engine.StatusCancelled {
			return ctx.Err()
		}
		// Found or exhausted: refetch and go again.
	}
}

// RunOnce performs a single invocation: template fetch, engine search, and,
// on success, block assembly, journaling, and submission.
func (m *Miner) RunOnce(ctx context.Context) (*engine.Result, error) {
	tmpl, err := m.rpc.GetBlockTemplate(ctx)
	if err != nil {
		return nil, err
	}
	metrics.TemplatesFetched.Inc()

	blk, err := template.FromRPC(tmpl, m.opts.RewardAddress)
	if err != nil {
		return nil, err
	}

	m.logger.Info("mining new template",
		zap.Int64("height", blk.Height),
		zap.String("prevhash", tmpl.PreviousBlockHash[:16]+"..."),
		zap.Int("transactions", len(blk.TxDigests)),
	)

	eng, err := engine.New(blk, engine.Config{
		Workers:            m.opts.Workers,
		MaxExtraNonceRolls: m.opts.MaxExtraNonceRolls,
		TargetOverride:     m.opts.TargetOverride,
		ChainParams:        m.opts.ChainParams,
		Logger:             m.logger,
	})
	if err != nil {
		return nil, err
	}

	res := eng.Mine(ctx)
	if res.Status == engine.StatusFound {
		if err := m.handleFound(ctx, eng, res, tmpl, blk); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (m *Miner) handleFound(ctx context.Context, eng *engine.Engine, res *engine.Result, tmpl *bitcoin.BlockTemplate, blk *template.Block) error {
	coinbaseTx := eng.Coinbase(res.ExtraNonce)

	if err := VerifyMerkleRoot(res.Header, coinbaseTx, blk.TxDigests); err != nil {
		metrics.BlockSubmissions.WithLabelValues("verify_failed").Inc()
		return err
	}

	rec := &journal.Record{
		Hash:       res.Hash,
		Header:     res.Header,
		Nonce:      res.Nonce,
		ExtraNonce: res.ExtraNonce,
		Height:     blk.Height,
		CoinbaseTx: coinbaseTx,
		FoundAt:    time.Now().Unix(),
	}
	m.journalAdd(rec)

	blockHex, err := AssembleBlock(res.Header, coinbaseTx, tmpl.Transactions)
	if err != nil {
		metrics.BlockSubmissions.WithLabelValues("assemble_failed").Inc()
		return err
	}

	err = m.rpc.SubmitBlock(ctx, blockHex)
	switch {
	case err == nil:
		metrics.BlockSubmissions.WithLabelValues("accepted").Inc()
		m.logger.Info("block submitted",
			zap.String("hash", util.HashToHex(res.Hash)),
			zap.Int64("height", blk.Height),
		)
		rec.Submitted = true
	default:
		metrics.BlockSubmissions.WithLabelValues("rejected").Inc()
		m.logger.Error("block submission failed",
			zap.String("hash", util.HashToHex(res.Hash)),
			zap.Error(err),
		)
		rec.Submitted = true
		rec.RejectReason = err.Error()
	}
	m.journalAdd(rec)
	return err
}

func (m *Miner) journalAdd(rec *journal.Record) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Add(rec); err != nil {
		m.logger.Warn("journal write failed", zap.Error(err))
	}
}

// backoffDuration computes exponential backoff capped at 60s.
func backoffDuration(failures int) time.Duration {
	if failures <= 0 {
		return retryInterval
	}
	d := retryInterval
	for i := 1; i < failures; i++ {
		d *= 2
		if d > 60*time.Second {
			return 60 * time.Second
		}
	}
	return d
}
