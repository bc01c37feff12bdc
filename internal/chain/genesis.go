package chain

import (
	"fmt"

	"github.com/petronet-labs/petronet-chain/config"
	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis
// configuration. Genesis has height 0, a zero PrevHash and producer,
// no transactions, and takes its timestamp from the configuration so
// every node derives the identical block.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("genesis config: %w", err)
	}

	return &block.Block{
		Header: &block.Header{
			Version:    gen.Protocol.BlockVersion,
			Height:     0,
			PrevHash:   types.Hash{},
			MerkleRoot: types.Hash{},
			Timestamp:  gen.Timestamp,
			Producer:   types.Address{},
			Nonce:      0,
		},
	}, nil
}
