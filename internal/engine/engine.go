// Package engine runs the proof-of-work nonce search.
//
// One Engine serves one invocation: it is handed a validated template, builds
// the coinbase and Merkle data up front (failing fast on anything malformed),
// then sweeps the 32-bit nonce range across CPU workers. When a sweep
// exhausts the range, the coordinator rolls the coinbase extra nonce, which
// yields a fresh Merkle root and an uncorrelated search space, and sweeps
// again until a solution, the attempt budget, or cancellation ends it.
package engine

import (
	"context"
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"github.com/djkazic/solominer/internal/coinbase"
	"github.com/djkazic/solominer/internal/header"
	"github.com/djkazic/solominer/internal/merkle"
	"github.com/djkazic/solominer/internal/metrics"
	"github.com/djkazic/solominer/internal/target"
	"github.com/djkazic/solominer/internal/template"
	"github.com/djkazic/solominer/pkg/util"
)

const (
	// defaultCheckInterval is how many nonces a worker hashes between polls
	// of the shared stop flag. Bounds cancellation latency.
	defaultCheckInterval = 4096

	// defaultMaxRolls is how many extra-nonce spaces to sweep before
	// reporting exhaustion.
	defaultMaxRolls = 4

	// hashrateInterval is how often the reporter logs and publishes the
	// observed hashrate.
	hashrateInterval = 10 * time.Second

	nonceSpace = uint64(1) << 32
)

// Config tunes one mining invocation. The zero value is usable.
type Config struct {
	// Workers is the number of concurrent sweep goroutines.
	// Defaults to GOMAXPROCS.
	Workers int

	// CheckInterval is the nonce count between stop-flag polls.
	CheckInterval uint32

	// MaxExtraNonceRolls bounds how many coinbase variants are swept before
	// the invocation reports StatusExhausted.
	MaxExtraNonceRolls int

	// MaxAttempts caps total hashes across all workers and rolls.
	// Zero means no cap beyond MaxExtraNonceRolls.
	MaxAttempts uint64

	// ExtraNonceStart seeds the coinbase extra nonce for the first sweep.
	ExtraNonceStart uint64

	// TargetOverride, when set, replaces the template's decoded target for
	// hash comparison. The header still carries the template's nBits; this
	// only changes what the engine accepts, which is useful for dry runs
	// against an easier difficulty.
	TargetOverride *target.Target

	// ChainParams selects the network for reward-address decoding.
	// Defaults to mainnet.
	ChainParams *chaincfg.Params

	Logger *zap.Logger

	// now is the clock used for timestamp refresh on extra-nonce rolls.
	now func() time.Time
}

// Engine holds the precomputed state for one invocation.
type Engine struct {
	tmpl     *template.Block
	cb       *coinbase.Tx
	branches [][32]byte
	tgt      *target.Target
	targetBE [32]byte // big-endian target value for the hot-loop compare

	workers       int
	checkInterval uint32
	maxRolls      int
	maxAttempts   uint64
	extraNonce    uint64

	logger *zap.Logger
	now    func() time.Time
}

// New validates the template and builds everything the hash loop needs.
// All four template failure modes (malformed template, invalid difficulty
// encoding, invalid reward address, empty Merkle input) surface here, before
// any hashing.
func New(tmpl *template.Block, cfg Config) (*Engine, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	tgt := cfg.TargetOverride
	if tgt == nil {
		decoded, err := target.Decode(tmpl.Bits)
		if err != nil {
			return nil, err
		}
		tgt = decoded
	}

	params := cfg.ChainParams
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	cb, err := coinbase.NewBuilder(params).Build(tmpl.Height, tmpl.CoinbaseValue, tmpl.RewardAddress, cfg.ExtraNonceStart)
	if err != nil {
		return nil, err
	}

	// Probe the Merkle computation once so an impossible digest set fails
	// here rather than mid-search.
	if _, err := merkle.Root(append([][32]byte{cb.Digest()}, tmpl.TxDigests...)); err != nil {
		return nil, err
	}

	e := &Engine{
		tmpl:          tmpl,
		cb:            cb,
		branches:      merkle.Branches(tmpl.TxDigests),
		tgt:           tgt,
		workers:       cfg.Workers,
		checkInterval: cfg.CheckInterval,
		maxRolls:      cfg.MaxExtraNonceRolls,
		maxAttempts:   cfg.MaxAttempts,
		extraNonce:    cfg.ExtraNonceStart,
		logger:        cfg.Logger,
		now:           cfg.now,
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	if e.checkInterval == 0 {
		e.checkInterval = defaultCheckInterval
	}
	if e.maxRolls <= 0 {
		e.maxRolls = defaultMaxRolls
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	tgt.Value().FillBytes(e.targetBE[:])

	return e, nil
}

// Mine runs the search to a terminal state. The coordinator alone rolls the
// extra nonce between sweeps; workers never touch the coinbase.
func (e *Engine) Mine(ctx context.Context) *Result {
	start := time.Now()
	var attempts atomic.Uint64

	reporterCtx, stopReporter := context.WithCancel(context.Background())
	defer stopReporter()
	go e.reportHashrate(reporterCtx, &attempts)

	timestamp := e.tmpl.CurTime

	for roll := 0; roll < e.maxRolls; roll++ {
		extraNonce := e.extraNonce + uint64(roll)
		e.cb.SetExtraNonce(extraNonce)
		root := merkle.RootFromBranches(e.cb.Digest(), e.branches)

		if roll > 0 {
			// A fresh search space also deserves a fresh timestamp; within
			// a sweep only the nonce varies.
			if now := uint32(e.now().Unix()); now > timestamp {
				timestamp = now
			}
			metrics.ExtraNonceRolls.Inc()
		}

		hdr := header.BlockHeader{
			Version:       e.tmpl.Version,
			PrevBlockHash: e.tmpl.PrevBlockHash,
			MerkleRoot:    root,
			Timestamp:     timestamp,
			Bits:          e.tmpl.Bits,
		}

		e.logger.Info("starting nonce sweep",
			zap.Int("roll", roll),
			zap.Uint64("extra_nonce", extraNonce),
			zap.Int("workers", e.workers),
			zap.String("merkle_root", util.HashToHex(root)),
		)

		if res := e.sweep(ctx, &hdr, extraNonce, 0, nonceSpace, &attempts); res != nil {
			res.Elapsed = time.Since(start)
			e.logResult(res)
			return res
		}

		e.logger.Info("nonce range exhausted, rolling extra nonce",
			zap.Int("roll", roll),
			zap.Uint64("attempts", attempts.Load()),
		)
	}

	res := &Result{
		Status:   StatusExhausted,
		Attempts: attempts.Load(),
		Elapsed:  time.Since(start),
	}
	e.logResult(res)
	return res
}

// sweep searches [nonceStart, nonceEnd) split across workers against a fixed
// header. It returns nil when the range is exhausted without a solution,
// budget stop, or cancellation.
func (e *Engine) sweep(ctx context.Context, hdr *header.BlockHeader, extraNonce uint64, nonceStart, nonceEnd uint64, attempts *atomic.Uint64) *Result {
	var (
		stop           atomic.Bool
		hit            atomic.Pointer[Result]
		budgetExceeded atomic.Bool
		wg             sync.WaitGroup
	)

	span := nonceEnd - nonceStart
	workers := e.workers
	if span < uint64(workers) {
		workers = int(span)
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (span + uint64(workers) - 1) / uint64(workers)

	for w := 0; w < workers; w++ {
		lo := nonceStart + uint64(w)*chunk
		hi := lo + chunk
		if hi > nonceEnd {
			hi = nonceEnd
		}
		if lo >= hi {
			continue
		}

		wg.Add(1)
		go func(lo, hi uint64) {
			defer wg.Done()
			e.searchRange(ctx, hdr, extraNonce, lo, hi, attempts, &stop, &hit, &budgetExceeded)
		}(lo, hi)
	}
	wg.Wait()

	if res := hit.Load(); res != nil {
		return res
	}
	if ctx.Err() != nil {
		return &Result{Status: StatusCancelled, Attempts: attempts.Load()}
	}
	if budgetExceeded.Load() {
		return &Result{Status: StatusExhausted, Attempts: attempts.Load()}
	}
	return nil
}

// searchRange is the hot loop. It owns a private header buffer, patches only
// the trailing nonce bytes per attempt, and holds no lock; the shared stop
// flag is polled every checkInterval nonces.
func (e *Engine) searchRange(
	ctx context.Context,
	hdr *header.BlockHeader,
	extraNonce uint64,
	lo, hi uint64,
	attempts *atomic.Uint64,
	stop *atomic.Bool,
	hit *atomic.Pointer[Result],
	budgetExceeded *atomic.Bool,
) {
	hdrWithNonce := hdr.WithNonce(uint32(lo))
	buf := hdrWithNonce.Serialize()
	interval := uint64(e.checkInterval)
	var local uint64

	flush := func() {
		attempts.Add(local)
		metrics.HashesTotal.Add(float64(local))
		local = 0
	}
	defer flush()

	for n := lo; n < hi; n++ {
		binary.LittleEndian.PutUint32(buf[76:80], uint32(n))
		hash := util.DoubleSHA256(buf)
		local++

		if meetsTargetBE(&hash, &e.targetBE) {
			headerCopy := make([]byte, len(buf))
			copy(headerCopy, buf)
			res := &Result{
				Status:     StatusFound,
				Nonce:      uint32(n),
				ExtraNonce: extraNonce,
				Header:     headerCopy,
				Hash:       hash,
			}
			// First writer wins; late solutions from other workers are
			// discarded.
			if hit.CompareAndSwap(nil, res) {
				flush()
				res.Attempts = attempts.Load()
				stop.Store(true)
			}
			return
		}

		if local >= interval {
			flush()
			if stop.Load() || ctx.Err() != nil {
				return
			}
			if e.maxAttempts > 0 && attempts.Load() >= e.maxAttempts {
				budgetExceeded.Store(true)
				stop.Store(true)
				return
			}
		}
	}
}

// meetsTargetBE compares a little-endian hash against a big-endian target
// without allocating. Equality satisfies; a zero target satisfies nothing.
func meetsTargetBE(hash *[32]byte, targetBE *[32]byte) bool {
	zero := true
	for i := 0; i < 32; i++ {
		hb := hash[31-i]
		tb := targetBE[i]
		if tb != 0 {
			zero = false
		}
		if hb < tb {
			return true
		}
		if hb > tb {
			return false
		}
	}
	return !zero
}

func (e *Engine) reportHashrate(ctx context.Context, attempts *atomic.Uint64) {
	ticker := time.NewTicker(hashrateInterval)
	defer ticker.Stop()

	last := uint64(0)
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			total := attempts.Load()
			rate := float64(total-last) / now.Sub(lastTime).Seconds()
			metrics.Hashrate.Set(rate)
			e.logger.Info("hashrate",
				zap.Float64("hashes_per_second", rate),
				zap.Uint64("total_attempts", total),
			)
			last = total
			lastTime = now
		}
	}
}

func (e *Engine) logResult(res *Result) {
	switch res.Status {
	case StatusFound:
		metrics.BlocksFound.Inc()
		e.logger.Info("solution found",
			zap.String("hash", util.HashToHex(res.Hash)),
			zap.Uint32("nonce", res.Nonce),
			zap.Uint64("extra_nonce", res.ExtraNonce),
			zap.Uint64("attempts", res.Attempts),
			zap.Duration("elapsed", res.Elapsed),
		)
	case StatusCancelled:
		e.logger.Info("search cancelled",
			zap.Uint64("attempts", res.Attempts),
			zap.Duration("elapsed", res.Elapsed),
		)
	default:
		e.logger.Info("search space exhausted",
			zap.Uint64("attempts", res.Attempts),
			zap.Duration("elapsed", res.Elapsed),
		)
	}
}

// Target returns the target this invocation compares hashes against.
func (e *Engine) Target() *target.Target {
	return e.tgt
}

// Coinbase returns the invocation's coinbase transaction bytes with the
// given extra nonce stamped, as needed for block assembly after a Found
// result.
func (e *Engine) Coinbase(extraNonce uint64) []byte {
	e.cb.SetExtraNonce(extraNonce)
	return e.cb.Bytes()
}
