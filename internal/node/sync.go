package node

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/petronet-labs/petronet-chain/internal/chain"
	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// syncBatchSize is how many blocks one CHAIN_REQUEST asks for.
	syncBatchSize = 500

	// heightQueryTimeout bounds a single best-height probe.
	heightQueryTimeout = 5 * time.Second

	// syncCheckInterval is how often a running node re-checks whether
	// a peer has pulled ahead.
	syncCheckInterval = 30 * time.Second
)

// peerHeight pairs a peer with its reported chain height.
type peerHeight struct {
	id     peer.ID
	height uint64
}

// runSyncLoop periodically probes peer heights and triggers a resync
// when someone is ahead. Catches the node up after partitions that
// gossip alone cannot repair.
func (n *Node) runSyncLoop() {
	ticker := time.NewTicker(syncCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.syncIfBehind()
		}
	}
}

// syncIfBehind probes peer heights and triggers a resync only when a
// peer is strictly ahead, so an up-to-date node never aborts a mining
// round over a routine check.
func (n *Node) syncIfBehind() {
	if n.p2pNode.PeerCount() == 0 || n.syncing.Load() {
		return
	}
	best := n.bestPeerHeights()
	if len(best) > 0 && best[0].height > n.ch.Height() {
		n.triggerResync()
	}
}

// triggerResync starts a background sync unless one is running.
// Mining stays suspended for the duration: the mine loop checks the
// syncing flag and the round in flight is aborted.
func (n *Node) triggerResync() {
	if n.p2pNode == nil || n.syncer == nil {
		return
	}
	if !n.syncing.CompareAndSwap(false, true) {
		return // sync already in progress
	}
	n.abortMining()
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runSync()
		n.drainPending()
		n.syncing.Store(false)
		n.drainPending()
	}()
}

// runSync performs an initial block download: it asks peers for their
// heights and downloads ranges from the best one, falling back to the
// next peer when a download stalls. Indefinite partial sync is
// tolerated; the chain just stays where it got to.
func (n *Node) runSync() {
	for _, ph := range n.bestPeerHeights() {
		local := n.ch.Height()
		if ph.height <= local {
			n.logger.Info().Uint64("height", local).Msg("chain is up to date")
			return
		}

		n.logger.Info().
			Uint64("local", local).
			Uint64("remote", ph.height).
			Str("peer", ph.id.String()).
			Msg("syncing chain")

		if n.syncFrom(ph.id, ph.height) {
			n.logger.Info().
				Uint64("height", n.ch.Height()).
				Str("tip", n.ch.TipHash().Short()).
				Msg("sync complete")
			return
		}
		n.logger.Warn().
			Str("peer", ph.id.String()).
			Uint64("height", n.ch.Height()).
			Msg("sync attempt failed, trying next peer")
	}
}

// bestPeerHeights probes every connected peer and returns the
// responses sorted by height, best first. Unresponsive peers are
// skipped rather than waited on.
func (n *Node) bestPeerHeights() []peerHeight {
	peers := n.p2pNode.PeerList()
	out := make([]peerHeight, 0, len(peers))
	for _, p := range peers {
		ctx, cancel := context.WithTimeout(n.ctx, heightQueryTimeout)
		resp, err := n.syncer.RequestHeight(ctx, p.ID)
		cancel()
		if err != nil {
			continue
		}
		out = append(out, peerHeight{id: p.ID, height: resp.Height})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].height > out[j].height })
	return out
}

// syncFrom downloads blocks [local+1, target] from one peer in ranged
// batches and appends them in order. Returns true when the chain
// reached the target height.
func (n *Node) syncFrom(peerID peer.ID, target uint64) bool {
	for from := n.ch.Height() + 1; from <= target; {
		max := uint32(syncBatchSize)
		if from+uint64(max)-1 > target {
			max = uint32(target - from + 1)
		}

		ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
		blocks, err := n.syncer.RequestBlocks(ctx, peerID, from, max)
		cancel()
		if err != nil {
			n.logger.Warn().Err(err).Uint64("from", from).Msg("sync request failed")
			return false
		}
		if len(blocks) == 0 {
			return false // peer has no more blocks despite its advertised height
		}

		for _, blk := range blocks {
			if err := n.applySyncBlock(blk); err != nil {
				return false
			}
		}
		from = n.ch.Height() + 1

		n.logger.Info().
			Uint64("height", n.ch.Height()).
			Uint64("target", target).
			Msg("syncing")
	}
	return n.ch.Height() >= target
}

// applySyncBlock appends one downloaded block. History downloaded in
// catch-up is exempt from the gossip staleness window, otherwise a
// node joining late could never complete its initial download. Fork
// blocks go through resolution: the peer's chain diverged from ours
// below the tip.
func (n *Node) applySyncBlock(blk *block.Block) error {
	err := n.ch.AppendSynced(blk)
	switch {
	case err == nil:
		n.pool.Remove(blk.TxIDs())
		return nil
	case errors.Is(err, chain.ErrKnownBlock):
		return nil
	case errors.Is(err, chain.ErrForkBlock):
		n.resolveFork(blk)
		return nil
	default:
		n.logger.Warn().Err(err).Uint64("height", blk.Header.Height).Msg("sync block rejected")
		return err
	}
}

// drainPending applies blocks buffered during sync in arrival order
// until the queue is empty.
func (n *Node) drainPending() {
	drained := 0
	for {
		blk := n.pending.Pop()
		if blk == nil {
			break
		}
		n.applyBlock(blk)
		drained++
	}
	if drained > 0 {
		n.logger.Info().
			Int("blocks", drained).
			Uint64("height", n.ch.Height()).
			Msg("pending queue drained")
	}
}
