package config

import "fmt"

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxPeers < 1 {
		return fmt.Errorf("p2p.maxpeers must be at least 1")
	}

	if cfg.Mining.Enabled {
		if cfg.Mining.HashPower <= 0 || cfg.Mining.HashPower > 100 {
			return fmt.Errorf("mining.hashpower must be in (0, 100]")
		}
		if cfg.Mining.Interarrival <= 0 {
			return fmt.Errorf("mining.interarrival must be positive")
		}
	}

	if cfg.Mempool.MaxSize < 1 {
		return fmt.Errorf("mempool.maxsize must be at least 1")
	}
	if cfg.Mempool.Generate && cfg.Mempool.GenInterval <= 0 {
		return fmt.Errorf("mempool.geninterval must be positive")
	}
	if cfg.Mempool.SeedCount < 0 {
		return fmt.Errorf("mempool.seedcount must not be negative")
	}

	if cfg.Liveness.PingInterval <= 0 {
		return fmt.Errorf("liveness.interval must be positive")
	}
	if cfg.Liveness.MissThreshold < 1 {
		return fmt.Errorf("liveness.misses must be at least 1")
	}

	return nil
}
