package chain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/petronet-labs/petronet-chain/config"
	"github.com/petronet-labs/petronet-chain/internal/storage"
	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

func testChain(t *testing.T) *Chain {
	t.Helper()
	c, err := New(storage.NewMemory(), time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.InitFromGenesis(config.TestnetGenesis()); err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}
	return c
}

func testID(t *testing.T) *crypto.Identity {
	t.Helper()
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	return id
}

func signedTxs(t *testing.T, id *crypto.Identity, n int, tag string) []*tx.Transaction {
	t.Helper()
	txs := make([]*tx.Transaction, n)
	for i := range txs {
		transaction, err := tx.NewSigned(id, tx.KindMidstream,
			fmt.Sprintf("Tanker MT-%s-%d loaded: 9000 barrels", tag, i), types.Address{0x0f})
		if err != nil {
			t.Fatalf("NewSigned: %v", err)
		}
		txs[i] = transaction
	}
	return txs
}

// nextBlock builds a valid block extending the given parent.
func nextBlock(t *testing.T, id *crypto.Identity, prevHash types.Hash, height uint64, txs []*tx.Transaction) *block.Block {
	t.Helper()
	return block.NewBlock(prevHash, height, id.Addr, txs, uint64(height)*7)
}

func TestInitFromGenesis(t *testing.T) {
	c := testChain(t)
	if c.Height() != 0 {
		t.Errorf("Height = %d, want 0", c.Height())
	}
	if c.GenesisHash().IsZero() {
		t.Error("genesis hash is zero after init")
	}
	if c.TipHash() != c.GenesisHash() {
		t.Error("tip is not genesis on a fresh chain")
	}
}

func TestInitFromGenesisMismatch(t *testing.T) {
	db := storage.NewMemory()
	c, err := New(db, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.InitFromGenesis(config.TestnetGenesis()); err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}

	// Reopen the same database against a different network.
	c2, err := New(db, time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	err = c2.InitFromGenesis(config.MainnetGenesis())
	if !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("InitFromGenesis on wrong network: err = %v, want ErrGenesisMismatch", err)
	}
}

func TestAppendExtendsTip(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	blk := nextBlock(t, id, c.TipHash(), 1, signedTxs(t, id, 2, "a"))
	if err := c.Append(blk); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c.Height() != 1 {
		t.Errorf("Height = %d, want 1", c.Height())
	}
	if c.TipHash() != blk.Hash() {
		t.Error("tip hash not updated")
	}
	for _, transaction := range blk.Transactions {
		if !c.HasTx(transaction.ID()) {
			t.Errorf("tx %s not indexed", transaction.ID().Short())
		}
	}
}

func TestAppendDuplicate(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	blk := nextBlock(t, id, c.TipHash(), 1, nil)
	if err := c.Append(blk); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Append(blk); !errors.Is(err, ErrKnownBlock) {
		t.Fatalf("second Append: err = %v, want ErrKnownBlock", err)
	}
}

func TestAppendOrphan(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	blk := nextBlock(t, id, types.Hash{0xff}, 5, nil)
	err := c.Append(blk)
	if !errors.Is(err, ErrOrphanBlock) {
		t.Fatalf("Append orphan: err = %v, want ErrOrphanBlock", err)
	}
	// The orphan is retained for later fork resolution.
	if ok, _ := c.store.HasBlock(blk.Hash()); !ok {
		t.Error("orphan block not stored as side block")
	}
	if c.Height() != 0 {
		t.Errorf("Height = %d after orphan, want 0", c.Height())
	}
}

func TestAppendFork(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	b1 := nextBlock(t, id, c.TipHash(), 1, nil)
	if err := c.Append(b1); err != nil {
		t.Fatalf("Append b1: %v", err)
	}

	// A competing child of genesis arrives.
	rival := nextBlock(t, id, c.GenesisHash(), 1, signedTxs(t, id, 1, "rival"))
	err := c.Append(rival)
	if !errors.Is(err, ErrForkBlock) {
		t.Fatalf("Append rival: err = %v, want ErrForkBlock", err)
	}
	if c.TipHash() != b1.Hash() {
		t.Error("tip changed on a same-height rival")
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	txs := signedTxs(t, id, 1, "bad")
	blk := nextBlock(t, id, c.TipHash(), 1, txs)
	blk.Transactions[0].Payload = "tampered"

	if err := c.Append(blk); err == nil {
		t.Fatal("Append accepted a block with a tampered transaction")
	}
}

func TestAppendRejectsStaleTimestamp(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	blk := nextBlock(t, id, c.TipHash(), 1, nil)
	blk.Header.Timestamp = time.Now().Add(-2 * time.Hour).Unix()

	err := c.Append(blk)
	if !errors.Is(err, block.ErrTimestampDrift) {
		t.Fatalf("Append stale block: err = %v, want ErrTimestampDrift", err)
	}
}

func TestBlocksFrom(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	for h := uint64(1); h <= 5; h++ {
		blk := nextBlock(t, id, c.TipHash(), h, nil)
		if err := c.Append(blk); err != nil {
			t.Fatalf("Append height %d: %v", h, err)
		}
	}

	blocks, err := c.BlocksFrom(2, 3)
	if err != nil {
		t.Fatalf("BlocksFrom: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("BlocksFrom returned %d blocks, want 3", len(blocks))
	}
	for i, blk := range blocks {
		if want := uint64(2 + i); blk.Header.Height != want {
			t.Errorf("blocks[%d].Height = %d, want %d", i, blk.Header.Height, want)
		}
	}

	// Past the tip returns nothing.
	blocks, err = c.BlocksFrom(100, 10)
	if err != nil || len(blocks) != 0 {
		t.Errorf("BlocksFrom past tip: blocks = %v, err = %v", blocks, err)
	}
}

func TestAppendRejectsCommittedTx(t *testing.T) {
	c := testChain(t)
	id := testID(t)
	txs := signedTxs(t, id, 1, "ONCE")

	b1 := nextBlock(t, id, c.TipHash(), 1, txs)
	if err := c.Append(b1); err != nil {
		t.Fatalf("Append b1: %v", err)
	}

	// Same event id atop the new tip must be refused.
	b2 := nextBlock(t, id, c.TipHash(), 2, txs)
	err := c.Append(b2)
	if !errors.Is(err, ErrDuplicateTx) {
		t.Fatalf("Append duplicate tx: err = %v, want ErrDuplicateTx", err)
	}
	if c.Height() != 1 {
		t.Fatalf("height = %d, want 1", c.Height())
	}

	// The original commitment record is untouched.
	height, at, err := c.store.GetTxLocation(txs[0].ID())
	if err != nil {
		t.Fatalf("GetTxLocation: %v", err)
	}
	if height != 1 || at != b1.Hash() {
		t.Fatalf("tx location = height %d block %s, want height 1 block %s",
			height, at.Short(), b1.Hash().Short())
	}
}

func TestAppendSyncedAcceptsOldBlock(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	blk := nextBlock(t, id, c.TipHash(), 1, nil)
	blk.Header.Timestamp = time.Now().Add(-3 * time.Hour).Unix()

	if err := c.Append(blk); err == nil {
		t.Fatal("Append should refuse a block outside the drift window")
	}
	if err := c.AppendSynced(blk); err != nil {
		t.Fatalf("AppendSynced old block: %v", err)
	}
	if c.Height() != 1 {
		t.Fatalf("height = %d, want 1", c.Height())
	}
}

func TestAppendSyncedRejectsFutureBlock(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	blk := nextBlock(t, id, c.TipHash(), 1, nil)
	blk.Header.Timestamp = time.Now().Add(3 * time.Hour).Unix()

	if err := c.AppendSynced(blk); err == nil {
		t.Fatal("AppendSynced should refuse a future-dated block")
	}
	if c.Height() != 0 {
		t.Fatalf("height = %d, want 0", c.Height())
	}
}
