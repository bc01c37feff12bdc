// Command testnet boots a local Petronet network from scratch.
//
// Usage: go run ./cmd/testnet/
//
// It starts three in-process seed registries and two mining nodes in
// temporary data directories. The first node registers, seeds its
// mempool, and starts mining; the second joins late so its initial
// block download and pending-queue drain run against a chain that is
// already growing. The harness then watches both chains until they
// converge on the same tip. Ctrl+C for early shutdown.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/petronet-labs/petronet-chain/config"
	klog "github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/internal/node"
	"github.com/petronet-labs/petronet-chain/internal/p2p"
	"github.com/petronet-labs/petronet-chain/internal/storage"
)

const (
	numSeeds    = 3
	runDuration = 90 * time.Second
)

// seedBundle groups one in-process seed registry.
type seedBundle struct {
	p2p      *p2p.Node
	registry *p2p.Registry
	db       storage.DB
}

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== Petronet Local Testnet: 3 seeds + 2 miners ===")

	rootDir, err := os.MkdirTemp("", "petronet-testnet-")
	if err != nil {
		logger.Fatal().Err(err).Msg("create temp dir")
	}
	defer os.RemoveAll(rootDir)

	// ── Phase 1: Seed registries ────────────────────────────────────

	genesis := config.TestnetGenesis()
	seeds := make([]*seedBundle, 0, numSeeds)
	seedAddrs := make([]string, 0, numSeeds)

	for i := 0; i < numSeeds; i++ {
		sb, err := startSeed(rootDir, i, genesis.ChainID)
		if err != nil {
			logger.Fatal().Err(err).Int("seed", i).Msg("start seed")
		}
		seeds = append(seeds, sb)
		seedAddrs = append(seedAddrs, sb.p2p.Addrs()...)
	}
	defer func() {
		for _, sb := range seeds {
			sb.p2p.Stop()
			sb.db.Close()
		}
	}()

	logger.Info().Int("seeds", numSeeds).Msg("seed registries listening")

	// ── Phase 2: Node A registers, seeds its mempool, and mines ────

	nodeA, err := node.New(nodeConfig(rootDir, "node-a", seedAddrs, 60), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-a")
	}
	if err := nodeA.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start node-a")
	}
	defer nodeA.Stop()

	logger.Info().
		Str("address", nodeA.Address().Short()).
		Int("peers", nodeA.PeerCount()).
		Msg("node-a running")

	// Let node A get ahead so node B has real blocks to download.
	waitForHeight(nodeA, 1, 60*time.Second)
	logger.Info().Uint64("height", nodeA.Height()).Msg("node-a mined its first block")

	// ── Phase 3: Node B joins late and must catch up ────────────────

	nodeB, err := node.New(nodeConfig(rootDir, "node-b", seedAddrs, 40), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-b")
	}
	if err := nodeB.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start node-b")
	}
	defer nodeB.Stop()

	logger.Info().
		Str("address", nodeB.Address().Short()).
		Uint64("height", nodeB.Height()).
		Msg("node-b joined and synced")

	// ── Phase 4: Watch for convergence ──────────────────────────────

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	deadline := time.After(runDuration)

	converged := false
	for !converged {
		select {
		case <-sigCh:
			logger.Warn().Msg("interrupted")
			return
		case <-deadline:
			logger.Error().
				Uint64("a", nodeA.Height()).
				Uint64("b", nodeB.Height()).
				Msg("RESULT: nodes did not converge in time")
			os.Exit(1)
		case <-ticker.C:
			ha, hb := nodeA.Height(), nodeB.Height()
			logger.Info().
				Uint64("a_height", ha).
				Str("a_tip", nodeA.TipHash().Short()).
				Uint64("b_height", hb).
				Str("b_tip", nodeB.TipHash().Short()).
				Int("a_pool", nodeA.PoolCount()).
				Int("b_pool", nodeB.PoolCount()).
				Msg("network status")
			if ha > 0 && ha == hb && nodeA.TipHash() == nodeB.TipHash() {
				converged = true
			}
		}
	}

	logger.Info().
		Uint64("height", nodeA.Height()).
		Str("tip", nodeA.TipHash().Short()).
		Msg("RESULT: chains converged")
}

// startSeed boots one in-process seed registry on an ephemeral port.
func startSeed(rootDir string, index int, networkID string) (*seedBundle, error) {
	dataDir := filepath.Join(rootDir, fmt.Sprintf("seed-%d", index))
	db, err := storage.NewBadger(filepath.Join(dataDir, "db"))
	if err != nil {
		return nil, fmt.Errorf("open seed db: %w", err)
	}

	p2pNode := p2p.New(p2p.Config{
		ListenAddr: "127.0.0.1",
		Port:       0,
		NoDiscover: true,
		DB:         db,
		NetworkID:  networkID,
		DataDir:    dataDir,
	})
	if err := p2pNode.Start(); err != nil {
		db.Close()
		return nil, fmt.Errorf("start seed p2p: %w", err)
	}

	registry := p2p.NewRegistry(p2pNode)
	registry.Serve()

	liveness := p2p.NewLiveness(p2pNode, 13*time.Second, 3)
	liveness.RegisterHandler()

	return &seedBundle{p2p: p2pNode, registry: registry, db: db}, nil
}

// nodeConfig builds a hermetic node configuration: local-only
// networking, fast mining, and a brisk transaction generator.
func nodeConfig(rootDir, name string, seedAddrs []string, hashPower float64) *config.Config {
	cfg := config.DefaultTestnet()
	cfg.DataDir = filepath.Join(rootDir, name)
	cfg.P2P.ListenAddr = "127.0.0.1"
	cfg.P2P.Port = 0
	cfg.P2P.Seeds = seedAddrs
	cfg.P2P.NoDiscover = true
	cfg.Mining.HashPower = hashPower
	cfg.Mining.Interarrival = 3 * time.Second
	cfg.Mempool.GenInterval = 5 * time.Second
	cfg.Log.Level = "info"
	return cfg
}

// waitForHeight blocks until the node's chain reaches height or the
// timeout expires.
func waitForHeight(n *node.Node, height uint64, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for n.Height() < height && time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
	}
}
