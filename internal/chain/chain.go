// Package chain implements the petroleum ledger state machine: an
// append-only chain of signed supply-chain event blocks with
// longest-chain fork resolution.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petronet-labs/petronet-chain/config"
	"github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/internal/storage"
	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

var (
	// ErrKnownBlock indicates the block is already stored.
	ErrKnownBlock = errors.New("block already known")
	// ErrOrphanBlock indicates the block's parent is unknown.
	ErrOrphanBlock = errors.New("orphan block: parent unknown")
	// ErrForkBlock indicates a valid block that does not extend the tip.
	// It is stored as a side block; the caller decides whether to sync.
	ErrForkBlock = errors.New("block does not extend current tip")
	// ErrNotLonger rejects a competing branch that does not strictly
	// exceed the current chain height.
	ErrNotLonger = errors.New("branch not longer than current chain")
	// ErrBadLink indicates a branch with broken parent linkage.
	ErrBadLink = errors.New("branch blocks do not link")
	// ErrUnknownForkPoint indicates a branch that does not attach to
	// any block on the active chain.
	ErrUnknownForkPoint = errors.New("branch fork point not on active chain")
	// ErrGenesisMismatch indicates the stored genesis differs from the
	// configured one. The node must not continue on the wrong chain.
	ErrGenesisMismatch = errors.New("stored genesis does not match configuration")
	// ErrDuplicateTx indicates a block carries a transaction already
	// committed on the active chain. Event ids are ledgered once.
	ErrDuplicateTx = errors.New("transaction already committed")
)

// RevertedTxHandler receives transactions from reverted blocks that are
// absent from the adopted branch, so the node can re-queue them.
type RevertedTxHandler func(txs []*tx.Transaction)

// Chain is the active petroleum ledger.
type Chain struct {
	mu    sync.Mutex // Protects all state mutations.
	store *BlockStore

	height       uint64
	tipHash      types.Hash
	tipTimestamp int64
	genesisHash  types.Hash

	window time.Duration // Accepted block timestamp drift.

	revertedTxHandler RevertedTxHandler
}

// New opens a chain over the given database, recovering the tip from
// storage. window bounds how far a block timestamp may drift from
// local time in either direction.
func New(db storage.DB, window time.Duration) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	store := NewBlockStore(db)

	tipHash, height, err := store.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}

	c := &Chain{
		store:  store,
		height: height,
		window: window,
	}
	c.tipHash = tipHash

	if !tipHash.IsZero() {
		tip, err := store.GetBlock(tipHash)
		if err != nil {
			return nil, fmt.Errorf("recover tip block: %w", err)
		}
		c.tipTimestamp = tip.Header.Timestamp

		gen, err := store.GetBlockByHeight(0)
		if err != nil {
			return nil, fmt.Errorf("recover genesis: %w", err)
		}
		c.genesisHash = gen.Hash()
	}

	return c, nil
}

// SetRevertedTxHandler registers the callback invoked after fork
// resolution with transactions the adopted branch dropped.
func (c *Chain) SetRevertedTxHandler(h RevertedTxHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertedTxHandler = h
}

// InitFromGenesis applies the configured genesis block to a fresh
// chain, or verifies it against the stored one. A mismatch is fatal:
// the node is pointed at a database for a different network.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return err
	}
	hash := blk.Hash()

	if !c.tipHash.IsZero() {
		if c.genesisHash != hash {
			return fmt.Errorf("%w: stored %s, configured %s", ErrGenesisMismatch, c.genesisHash, hash)
		}
		return nil
	}

	if err := c.store.PutBlock(blk); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}
	if err := c.store.SetTip(hash, 0); err != nil {
		return fmt.Errorf("set genesis tip: %w", err)
	}
	c.tipHash = hash
	c.height = 0
	c.tipTimestamp = blk.Header.Timestamp
	c.genesisHash = hash

	log.Chain.Info().
		Str("hash", hash.Short()).
		Str("chain_id", gen.ChainID).
		Msg("genesis block applied")
	return nil
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// TipHash returns the current tip block hash.
func (c *Chain) TipHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipHash
}

// TipTimestamp returns the current tip block timestamp.
func (c *Chain) TipTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipTimestamp
}

// GenesisHash returns the genesis block hash, zero before init.
func (c *Chain) GenesisHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.genesisHash
}

// GetBlock retrieves a block by hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.store.GetBlock(hash)
}

// GetBlockByHeight retrieves an active-chain block by height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	return c.store.GetBlockByHeight(height)
}

// HasTx reports whether a transaction is committed on the active chain.
func (c *Chain) HasTx(id types.Hash) bool {
	ok, err := c.store.HasTx(id)
	return err == nil && ok
}

// Append validates blk and appends it if it extends the current tip.
// A valid block that attaches elsewhere is kept as a side block and
// reported via ErrForkBlock so the caller can trigger a sync.
func (c *Chain) Append(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(blk, false)
}

// AppendSynced appends a block obtained through chain sync. Downloaded
// history is legitimately older than the gossip acceptance window, so
// only the future bound of the timestamp check applies.
func (c *Chain) AppendSynced(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(blk, true)
}

func (c *Chain) appendLocked(blk *block.Block, synced bool) error {
	if err := c.checkBlock(blk, synced); err != nil {
		return err
	}

	hash := blk.Hash()
	if known, err := c.store.HasBlock(hash); err != nil {
		return fmt.Errorf("block lookup: %w", err)
	} else if known {
		return ErrKnownBlock
	}

	if blk.Header.PrevHash == c.tipHash && blk.Header.Height == c.height+1 {
		// Commitment is where tx uniqueness is enforced: an id already
		// on the active chain must not be ledgered at a second height.
		for _, id := range blk.TxIDs() {
			height, at, err := c.store.GetTxLocation(id)
			if err != nil {
				continue
			}
			return fmt.Errorf("%w: tx %s at height %d in block %s",
				ErrDuplicateTx, id.Short(), height, at.Short())
		}
		return c.extendTip(blk, hash)
	}

	// Not a tip extension. Keep the block so fork resolution can use
	// it, and tell the caller which case this is.
	parentKnown, err := c.store.HasBlock(blk.Header.PrevHash)
	if err != nil {
		return fmt.Errorf("parent lookup: %w", err)
	}
	if err := c.store.StoreBlock(blk); err != nil {
		return fmt.Errorf("store side block: %w", err)
	}
	if !parentKnown {
		return fmt.Errorf("%w: block %s at height %d", ErrOrphanBlock, hash.Short(), blk.Header.Height)
	}
	return fmt.Errorf("%w: block %s at height %d, tip height %d",
		ErrForkBlock, hash.Short(), blk.Header.Height, c.height)
}

func (c *Chain) checkBlock(blk *block.Block, synced bool) error {
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("block invalid: %w", err)
	}
	if blk.Header.Height == 0 {
		return fmt.Errorf("block invalid: genesis can only be applied via InitFromGenesis")
	}
	now := time.Now()
	if synced {
		if ts := time.Unix(blk.Header.Timestamp, 0); ts.After(now.Add(c.window)) {
			return fmt.Errorf("block invalid: synced block timestamp %s is in the future",
				ts.UTC().Format(time.RFC3339))
		}
		return nil
	}
	if err := blk.CheckTimestamp(now, c.window); err != nil {
		return fmt.Errorf("block invalid: %w", err)
	}
	return nil
}

func (c *Chain) extendTip(blk *block.Block, hash types.Hash) error {
	if err := c.store.PutBlock(blk); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := c.store.SetTip(hash, blk.Header.Height); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	c.tipHash = hash
	c.height = blk.Header.Height
	c.tipTimestamp = blk.Header.Timestamp

	log.Chain.Info().
		Uint64("height", blk.Header.Height).
		Str("hash", hash.Short()).
		Int("txs", len(blk.Transactions)).
		Str("producer", blk.Header.Producer.Short()).
		Msg("block appended")
	return nil
}

// BlocksFrom returns up to max active-chain blocks starting at height
// from, in ascending order. Used to serve sync requests.
func (c *Chain) BlocksFrom(from uint64, max int) ([]*block.Block, error) {
	c.mu.Lock()
	tip := c.height
	c.mu.Unlock()

	if from > tip {
		return nil, nil
	}

	blocks := make([]*block.Block, 0, max)
	for h := from; h <= tip && len(blocks) < max; h++ {
		blk, err := c.store.GetBlockByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("read block at height %d: %w", h, err)
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}
