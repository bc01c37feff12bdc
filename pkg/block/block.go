// Package block defines block types and validation.
package block

import (
	"time"

	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// Block is a batch of supply-chain transactions under a single header.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock assembles a block extending prev with the given transactions,
// computing the merkle root and stamping the current time.
func NewBlock(prevHash types.Hash, height uint64, producer types.Address, txs []*tx.Transaction, nonce uint64) *Block {
	txIDs := make([]types.Hash, len(txs))
	for i, t := range txs {
		txIDs[i] = t.ID()
	}
	return &Block{
		Header: &Header{
			Version:    CurrentVersion,
			Height:     height,
			PrevHash:   prevHash,
			MerkleRoot: ComputeMerkleRoot(txIDs),
			Timestamp:  time.Now().Unix(),
			Producer:   producer,
			Nonce:      nonce,
		},
		Transactions: txs,
	}
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// TxIDs returns the IDs of all transactions in the block.
func (b *Block) TxIDs() []types.Hash {
	ids := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		ids[i] = t.ID()
	}
	return ids
}
