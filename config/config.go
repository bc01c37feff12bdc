// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: Defined in genesis, immutable, must match across all nodes
//   - Node settings: Runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// P2P networking
	P2P P2PConfig

	// Block production
	Mining MiningConfig

	// Transaction pool and generator
	Mempool MempoolConfig

	// Peer liveness tracking
	Liveness LivenessConfig

	// Node identity keyfile
	Key KeyConfig

	// Logging
	Log LogConfig
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"` // Run DHT in server mode (for seed/registry nodes)
}

// MiningConfig holds block production settings.
// HashPower is this node's share of total network hash power in percent;
// together with Interarrival it sets the simulated PoW rate.
type MiningConfig struct {
	Enabled      bool          `conf:"mining.enabled"`
	HashPower    float64       `conf:"mining.hashpower"`
	Interarrival time.Duration `conf:"mining.interarrival"`
}

// MempoolConfig holds transaction pool and generator settings.
type MempoolConfig struct {
	MaxSize     int           `conf:"mempool.maxsize"`
	SeedCount   int           `conf:"mempool.seedcount"`
	Generate    bool          `conf:"mempool.generate"`
	GenInterval time.Duration `conf:"mempool.geninterval"`
}

// LivenessConfig holds peer liveness probe settings.
type LivenessConfig struct {
	PingInterval  time.Duration `conf:"liveness.interval"`
	MissThreshold int           `conf:"liveness.misses"`
}

// KeyConfig holds the node identity keyfile settings.
type KeyConfig struct {
	File string `conf:"key.file"` // Path to encrypted keyfile ("" = ephemeral identity)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.petronet
//	macOS:   ~/Library/Application Support/Petronet
//	Windows: %APPDATA%\Petronet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".petronet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Petronet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Petronet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Petronet")
	default:
		return filepath.Join(home, ".petronet")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the block and peer database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.ChainDataDir(), "db")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "petronet.conf")
}
