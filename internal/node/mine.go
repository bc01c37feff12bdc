package node

import (
	"context"
	"time"

	"github.com/petronet-labs/petronet-chain/internal/miner"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// syncPollInterval is how long the mine loop sleeps while suspended
// during a chain sync.
const syncPollInterval = 500 * time.Millisecond

// runMineLoop runs mining rounds until shutdown. The loop suspends,
// not merely idles, while a sync is in progress: no block may be
// produced atop a chain known to be stale.
func (n *Node) runMineLoop() {
	for {
		select {
		case <-n.ctx.Done():
			n.logger.Info().Msg("block production stopped")
			return
		default:
		}

		if n.syncing.Load() {
			select {
			case <-n.ctx.Done():
				return
			case <-time.After(syncPollInterval):
			}
			continue
		}

		n.mineRound()
	}
}

// mineRound runs one simulated proof-of-work round. Transactions are
// reserved non-destructively up front; an aborted round therefore
// leaves them in the pool and the next round draws a fresh wait time.
func (n *Node) mineRound() {
	roundCtx, cancel := context.WithCancel(n.ctx)
	n.setMineCancel(cancel)
	defer func() {
		n.setMineCancel(nil)
		cancel()
	}()

	reserved := n.pool.Take(n.genesis.Protocol.TxPerBlock)

	outcome := n.mn.Mine(roundCtx)
	if outcome == miner.Aborted {
		// Take does not remove, so every reserved transaction is
		// still in the pool for the next round.
		draw := n.mn.LastDraw()
		n.logger.Debug().
			Dur("tau", draw.Tau).
			Int("reserved", len(reserved)).
			Msg("mining round aborted")
		return
	}

	if n.syncing.Load() {
		return // a sync started while the timer was running
	}

	// A gossip block may have committed some reserved txs while the
	// timer ran. Drop those from the round and from the pool; the
	// chain would reject a block that ledgers an id twice.
	fresh := reserved[:0]
	var committed []types.Hash
	for _, t := range reserved {
		if id := t.ID(); n.ch.HasTx(id) {
			committed = append(committed, id)
			continue
		}
		fresh = append(fresh, t)
	}
	if len(committed) > 0 {
		n.pool.Remove(committed)
		n.logger.Debug().
			Int("dropped", len(committed)).
			Msg("reserved transactions committed elsewhere during wait")
	}

	// The timer fired: assemble and append. Append holds the chain
	// mutex, so once it starts no concurrent resolution can interleave.
	prevHash := n.ch.TipHash()
	height := n.ch.Height() + 1
	blk := n.mn.BuildBlock(prevHash, height, fresh)

	if err := n.ch.Append(blk); err != nil {
		// Typically the tip moved after the timer fired and before
		// assembly. The block is discarded; nothing was removed from
		// the pool.
		n.logger.Debug().Err(err).Uint64("height", height).Msg("own block not appended")
		return
	}

	n.pool.Remove(blk.TxIDs())

	n.logger.Info().
		Uint64("height", height).
		Str("hash", blk.Hash().Short()).
		Int("txs", len(blk.Transactions)).
		Dur("waited", n.mn.LastDraw().Tau).
		Msg("block mined")

	if n.p2pNode != nil {
		if err := n.p2pNode.BroadcastBlock(blk); err != nil {
			n.logger.Warn().Err(err).Msg("block broadcast failed")
		}
	}
}

// abortMining cancels the mining round in flight, if any. The next
// round draws a fresh exponential sample.
func (n *Node) abortMining() {
	n.mineMu.Lock()
	if n.mineCancel != nil {
		n.mineCancel()
	}
	n.mineMu.Unlock()
}

func (n *Node) setMineCancel(cancel context.CancelFunc) {
	n.mineMu.Lock()
	n.mineCancel = cancel
	n.mineMu.Unlock()
}
