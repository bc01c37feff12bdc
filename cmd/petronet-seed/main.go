// Petronet seed registry daemon.
//
// A seed is the bootstrap directory for the network: nodes REGISTER
// with it to obtain the current peer list, and send it DEAD_NODE
// reports when a peer stops answering pings. Seeds hold no chain
// state and never mine.
//
// Usage:
//
//	petronet-seed [--port 31500] [--datadir ~/.petronet-seed]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/petronet-labs/petronet-chain/config"
	klog "github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/internal/p2p"
	"github.com/petronet-labs/petronet-chain/internal/storage"
)

func main() {
	var (
		listenAddr = flag.String("listen", "0.0.0.0", "Listen address")
		port       = flag.Int("port", 31500, "Listen port")
		dataDir    = flag.String("datadir", defaultDataDir(), "Data directory")
		network    = flag.String("network", "mainnet", "Network type (mainnet or testnet)")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		logJSON    = flag.Bool("log-json", false, "Output logs as JSON")
	)
	flag.Parse()

	if err := klog.Init(*logLevel, *logJSON, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("seed")

	if err := os.MkdirAll(*dataDir, 0700); err != nil {
		logger.Fatal().Err(err).Msg("create data dir")
	}

	db, err := storage.NewBadger(filepath.Join(*dataDir, "db"))
	if err != nil {
		logger.Fatal().Err(err).Msg("open registry database")
	}
	defer db.Close()

	genesis := config.GenesisFor(config.NetworkType(*network))

	// The seed is an ordinary p2p host running the registry stream
	// protocols. It serves the DHT so nodes using supplementary
	// discovery can bootstrap through it.
	p2pNode := p2p.New(p2p.Config{
		ListenAddr: *listenAddr,
		Port:       *port,
		DB:         db,
		DHTServer:  true,
		NetworkID:  genesis.ChainID,
		DataDir:    *dataDir,
	})
	if err := p2pNode.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start p2p")
	}
	defer p2pNode.Stop()

	registry := p2p.NewRegistry(p2pNode)
	registry.Serve()

	// Answer liveness pings so nodes do not report the seed dead.
	// The seed only responds; it never probes, so Run is not started.
	liveness := p2p.NewLiveness(p2pNode, 13*time.Second, 3)
	liveness.RegisterHandler()

	for _, addr := range p2pNode.Addrs() {
		logger.Info().Str("addr", addr).Msg("seed listening")
	}
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Int("known_peers", registry.PeerCount()).
		Msg("registry serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("seed shutting down")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".petronet-seed"
	}
	return filepath.Join(home, ".petronet-seed")
}
