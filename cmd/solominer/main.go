package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"github.com/djkazic/solominer/internal/bitcoin"
	"github.com/djkazic/solominer/internal/config"
	"github.com/djkazic/solominer/internal/journal"
	"github.com/djkazic/solominer/internal/metrics"
	"github.com/djkazic/solominer/internal/miner"
	"github.com/djkazic/solominer/internal/target"
)

func main() {
	configPath := flag.String("config", "solominer.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger, err := buildLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", configPath, err)
	}

	params, err := chainParams(cfg.Network)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := journal.Open(cfg.JournalPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}
	go trackUptime(ctx)

	opts := miner.Options{
		RewardAddress:      cfg.RewardAddress,
		ChainParams:        params,
		Workers:            cfg.Workers,
		MaxExtraNonceRolls: cfg.MaxExtraNonceRolls,
	}
	if cfg.TargetDifficultyOverride > 0 {
		override, err := target.FromDifficulty(cfg.TargetDifficultyOverride)
		if err != nil {
			return fmt.Errorf("target_difficulty_override: %w", err)
		}
		opts.TargetOverride = override
		logger.Warn("difficulty override active, sub-difficulty blocks will be rejected by the network",
			zap.Float64("difficulty", cfg.TargetDifficultyOverride),
		)
	}

	rpc := bitcoin.NewClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPass)
	logger.Info("starting",
		zap.String("network", cfg.Network),
		zap.String("rpc_url", cfg.RPCURL),
		zap.Int("workers", cfg.Workers),
		zap.Int("journaled_solutions", store.Count()),
	)

	m := miner.New(rpc, store, opts, logger)
	if err := m.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func chainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

func trackUptime(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UptimeSeconds.Set(time.Since(start).Seconds())
		}
	}
}
