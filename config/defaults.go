package config

import "time"

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       31410,
			MaxPeers:   50,
			// Seeds are registry nodes that admit new peers into the network.
			// Format: multiaddr strings, e.g.:
			//   "/ip4/203.0.113.1/tcp/31410/p2p/12D3KooW..."
			//   "/dns4/seed1.petronet.example/tcp/31410/p2p/12D3KooW..."
			// Real addresses will be filled when seed servers are provisioned.
			Seeds: []string{},
		},
		Mining: MiningConfig{
			Enabled:      true,
			HashPower:    20,
			Interarrival: 15 * time.Second,
		},
		Mempool: MempoolConfig{
			MaxSize:     500,
			SeedCount:   5,
			Generate:    true,
			GenInterval: 20 * time.Second,
		},
		Liveness: LivenessConfig{
			PingInterval:  13 * time.Second,
			MissThreshold: 3,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.P2P.Port = 31411
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
