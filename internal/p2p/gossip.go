package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
)

// BroadcastTx publishes a transaction to the gossip network. The tx is
// pre-marked seen so the local validator does not hand it back.
func (n *Node) BroadcastTx(t *tx.Transaction) error {
	if n.topicTx == nil {
		return fmt.Errorf("p2p node not started")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tx: %w", err)
	}

	n.MarkTxSeen(t.ID())
	return n.topicTx.Publish(n.ctx, data)
}

// BroadcastBlock publishes a block to the gossip network.
func (n *Node) BroadcastBlock(b *block.Block) error {
	if n.topicBlock == nil {
		return fmt.Errorf("p2p node not started")
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}

	n.MarkBlockSeen(b.Hash())
	return n.topicBlock.Publish(n.ctx, data)
}
