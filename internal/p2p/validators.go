package p2p

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/peer"

	klog "github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// contentMessageID derives the pubsub message id from the payload hash,
// so the same transaction or block relayed via different peers collapses
// to one message.
func contentMessageID(msg *pb.Message) string {
	h := crypto.Hash(msg.Data)
	return string(h[:])
}

// gossipValidators holds the per-topic duplicate-suppression caches.
// Validation runs in GossipSub before a message is relayed, so a
// message rejected here is never re-broadcast by this node.
type gossipValidators struct {
	seenTx    *lru.Cache[types.Hash, struct{}]
	seenBlock *lru.Cache[types.Hash, struct{}]
}

func newGossipValidators() (*gossipValidators, error) {
	seenTx, err := lru.New[types.Hash, struct{}](seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tx seen cache: %w", err)
	}
	seenBlock, err := lru.New[types.Hash, struct{}](seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("block seen cache: %w", err)
	}
	return &gossipValidators{seenTx: seenTx, seenBlock: seenBlock}, nil
}

// markSeen records a payload id. Returns false if it was already seen.
func markSeen(cache *lru.Cache[types.Hash, struct{}], id types.Hash) bool {
	if _, ok := cache.Get(id); ok {
		return false
	}
	cache.Add(id, struct{}{})
	return true
}

func (n *Node) registerValidators() error {
	if err := n.pubsub.RegisterTopicValidator(TopicTransactions, n.validateTxMessage); err != nil {
		return fmt.Errorf("register tx validator: %w", err)
	}
	if err := n.pubsub.RegisterTopicValidator(TopicBlocks, n.validateBlockMessage); err != nil {
		return fmt.Errorf("register block validator: %w", err)
	}
	return nil
}

// validateTxMessage vets a gossiped transaction before relay: it must
// parse, carry a valid signature, and not have been seen before.
func (n *Node) validateTxMessage(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
	var transaction tx.Transaction
	if err := json.Unmarshal(msg.Data, &transaction); err != nil {
		klog.P2P.Debug().Str("from", shortID(from)).Err(err).Msg("malformed gossip tx")
		return pubsub.ValidationReject
	}
	if err := transaction.Verify(); err != nil {
		klog.P2P.Debug().
			Str("from", shortID(from)).
			Err(err).
			Msg("gossip tx failed verification, not relaying")
		return pubsub.ValidationReject
	}
	if !markSeen(n.validators.seenTx, transaction.ID()) {
		return pubsub.ValidationIgnore
	}
	return pubsub.ValidationAccept
}

// validateBlockMessage vets a gossiped block before relay: structure
// and every contained signature must check out, and the block hash must
// be novel.
func (n *Node) validateBlockMessage(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
	var blk block.Block
	if err := json.Unmarshal(msg.Data, &blk); err != nil {
		klog.P2P.Debug().Str("from", shortID(from)).Err(err).Msg("malformed gossip block")
		return pubsub.ValidationReject
	}
	if err := blk.Validate(); err != nil {
		klog.P2P.Debug().
			Str("from", shortID(from)).
			Err(err).
			Msg("gossip block failed validation, not relaying")
		return pubsub.ValidationReject
	}
	if !markSeen(n.validators.seenBlock, blk.Hash()) {
		return pubsub.ValidationIgnore
	}
	return pubsub.ValidationAccept
}

// MarkTxSeen pre-marks a locally produced transaction so the node's own
// broadcast is not handed back to it.
func (n *Node) MarkTxSeen(id types.Hash) {
	if n.validators != nil {
		n.validators.seenTx.Add(id, struct{}{})
	}
}

// MarkBlockSeen pre-marks a locally produced block.
func (n *Node) MarkBlockSeen(hash types.Hash) {
	if n.validators != nil {
		n.validators.seenBlock.Add(hash, struct{}{})
	}
}
