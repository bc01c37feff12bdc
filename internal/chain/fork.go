package chain

import (
	"fmt"
	"time"

	"github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// Resolve adopts a competing branch if and only if it is strictly
// longer than the active chain. The branch must be a contiguous run of
// valid blocks whose first block attaches to the active chain. Equal
// height never reorgs: the incumbent tip wins ties.
//
// Transactions committed in reverted blocks but absent from the new
// branch are handed to the reverted-tx handler for re-queueing.
func (c *Chain) Resolve(branch []*block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(branch) == 0 {
		return fmt.Errorf("empty branch")
	}
	if err := c.checkBranch(branch); err != nil {
		return err
	}

	tipHeight := branch[len(branch)-1].Header.Height
	if tipHeight <= c.height {
		return fmt.Errorf("%w: branch tip %d, current %d", ErrNotLonger, tipHeight, c.height)
	}

	forkHeight := branch[0].Header.Height - 1
	attach, err := c.store.GetBlockByHeight(forkHeight)
	if err != nil || attach.Hash() != branch[0].Header.PrevHash {
		return fmt.Errorf("%w: parent %s at height %d",
			ErrUnknownForkPoint, branch[0].Header.PrevHash.Short(), forkHeight)
	}

	// A branch tx committed at or below the fork point would end up
	// ledgered twice; check before any state is touched. Commitments
	// above the fork point are reverted and re-indexed with the branch.
	for _, blk := range branch {
		for _, id := range blk.TxIDs() {
			height, at, err := c.store.GetTxLocation(id)
			if err != nil || height > forkHeight {
				continue
			}
			return fmt.Errorf("%w: tx %s at height %d in block %s",
				ErrDuplicateTx, id.Short(), height, at.Short())
		}
	}

	reverted, err := c.revertAbove(forkHeight, branch)
	if err != nil {
		return err
	}

	for _, blk := range branch {
		if err := c.store.PutBlock(blk); err != nil {
			return fmt.Errorf("apply branch block at height %d: %w", blk.Header.Height, err)
		}
	}

	tip := branch[len(branch)-1]
	hash := tip.Hash()
	if err := c.store.SetTip(hash, tip.Header.Height); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	oldHeight := c.height
	c.tipHash = hash
	c.height = tip.Header.Height
	c.tipTimestamp = tip.Header.Timestamp

	log.Chain.Info().
		Uint64("old_height", oldHeight).
		Uint64("new_height", c.height).
		Uint64("fork_height", forkHeight).
		Int("reverted_txs", len(reverted)).
		Msg("fork resolved: longer branch adopted")

	if len(reverted) > 0 && c.revertedTxHandler != nil {
		c.revertedTxHandler(reverted)
	}
	return nil
}

// checkBranch validates every branch block and the linkage between them.
func (c *Chain) checkBranch(branch []*block.Block) error {
	if branch[0].Header.Height == 0 {
		return fmt.Errorf("branch would replace genesis")
	}
	now := time.Now()
	seen := make(map[types.Hash]bool)
	for i, blk := range branch {
		if err := blk.Validate(); err != nil {
			return fmt.Errorf("branch block %d invalid: %w", i, err)
		}
		if err := blk.CheckTimestamp(now, c.window); err != nil {
			return fmt.Errorf("branch block %d invalid: %w", i, err)
		}
		for _, id := range blk.TxIDs() {
			if seen[id] {
				return fmt.Errorf("%w: tx %s repeated within branch", ErrDuplicateTx, id.Short())
			}
			seen[id] = true
		}
		if i == 0 {
			continue
		}
		prev := branch[i-1]
		if blk.Header.Height != prev.Header.Height+1 || blk.Header.PrevHash != prev.Hash() {
			return fmt.Errorf("%w: block %d does not extend block %d", ErrBadLink, i, i-1)
		}
	}
	return nil
}

// revertAbove unlinks active blocks above forkHeight and returns their
// transactions that the new branch does not carry.
func (c *Chain) revertAbove(forkHeight uint64, branch []*block.Block) ([]*tx.Transaction, error) {
	inBranch := make(map[types.Hash]bool)
	for _, blk := range branch {
		for _, id := range blk.TxIDs() {
			inBranch[id] = true
		}
	}

	var reverted []*tx.Transaction
	for h := c.height; h > forkHeight; h-- {
		blk, err := c.store.GetBlockByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("read reverted block at height %d: %w", h, err)
		}
		for _, t := range blk.Transactions {
			id := t.ID()
			if err := c.store.DeleteTxIndex(id); err != nil {
				return nil, fmt.Errorf("unindex tx %s: %w", id.Short(), err)
			}
			if !inBranch[id] {
				reverted = append(reverted, t)
			}
		}
		// Block data stays around as a side block.
		if err := c.store.DeleteHeightIndex(h); err != nil {
			return nil, fmt.Errorf("unindex height %d: %w", h, err)
		}
	}
	return reverted, nil
}
