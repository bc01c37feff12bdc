package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// TxPerBlock is the number of transactions a miner pulls from the pool
// into each block. Fewer may be included when the pool runs dry.
const TxPerBlock = 5

// TimestampWindow is the maximum allowed drift between a block's
// timestamp and the local clock, in either direction.
const TimestampWindow = time.Hour

// Genesis holds the genesis block configuration and protocol rules.
// This is immutable after chain launch - changes require a hard fork.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`

	// Genesis block
	Timestamp int64  `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Protocol rules
	Protocol ProtocolConfig `json:"protocol"`
}

// ProtocolConfig holds consensus-critical rules.
// All nodes MUST agree on these values.
type ProtocolConfig struct {
	// Transactions taken into each mined block.
	TxPerBlock int `json:"tx_per_block"`

	// Timestamp acceptance window in seconds (each direction).
	TimestampWindowSecs int64 `json:"timestamp_window_secs"`

	// Block format version produced and accepted.
	BlockVersion uint32 `json:"block_version"`
}

// TimestampWindow returns the window as a duration.
func (p *ProtocolConfig) TimestampWindow() time.Duration {
	return time.Duration(p.TimestampWindowSecs) * time.Second
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "petronet-mainnet-1",
		ChainName: "Petronet Mainnet",
		Timestamp: 1767225600, // 2026-01-01
		ExtraData: "Petronet Genesis",
		Protocol: ProtocolConfig{
			TxPerBlock:          TxPerBlock,
			TimestampWindowSecs: int64(TimestampWindow / time.Second),
			BlockVersion:        1,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "petronet-testnet-1"
	g.ChainName = "Petronet Testnet"
	g.ExtraData = "Petronet Testnet Genesis"
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	if g.Protocol.TxPerBlock < 1 {
		return fmt.Errorf("tx_per_block must be at least 1")
	}
	if g.Protocol.TimestampWindowSecs < 1 {
		return fmt.Errorf("timestamp_window_secs must be at least 1")
	}
	if g.Protocol.BlockVersion < 1 {
		return fmt.Errorf("block_version must be at least 1")
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches on handshake.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
