package chain

import (
	"errors"
	"testing"

	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// buildBranch creates n linked blocks starting at startHeight on top of parent.
func buildBranch(t *testing.T, c *Chain, parent types.Hash, startHeight uint64, n int, txs [][]*tx.Transaction) []*block.Block {
	t.Helper()
	id := testID(t)
	branch := make([]*block.Block, n)
	prev := parent
	for i := 0; i < n; i++ {
		var blockTxs []*tx.Transaction
		if txs != nil {
			blockTxs = txs[i]
		}
		blk := nextBlock(t, id, prev, startHeight+uint64(i), blockTxs)
		branch[i] = blk
		prev = blk.Hash()
	}
	return branch
}

func TestResolveAdoptsLongerBranch(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	// Local chain: genesis -> A1.
	a1 := nextBlock(t, id, c.TipHash(), 1, nil)
	if err := c.Append(a1); err != nil {
		t.Fatalf("Append a1: %v", err)
	}

	// Competing branch off genesis: B1 -> B2.
	branch := buildBranch(t, c, c.GenesisHash(), 1, 2, nil)
	if err := c.Resolve(branch); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if c.Height() != 2 {
		t.Errorf("Height = %d after resolve, want 2", c.Height())
	}
	if c.TipHash() != branch[1].Hash() {
		t.Error("tip is not the adopted branch tip")
	}
}

func TestResolveRejectsEqualHeight(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	a1 := nextBlock(t, id, c.TipHash(), 1, nil)
	if err := c.Append(a1); err != nil {
		t.Fatalf("Append a1: %v", err)
	}

	// Same-height rival branch: the incumbent wins ties.
	branch := buildBranch(t, c, c.GenesisHash(), 1, 1, nil)
	err := c.Resolve(branch)
	if !errors.Is(err, ErrNotLonger) {
		t.Fatalf("Resolve equal height: err = %v, want ErrNotLonger", err)
	}
	if c.TipHash() != a1.Hash() {
		t.Error("tip changed on rejected resolve")
	}
}

func TestResolveRejectsBrokenLink(t *testing.T) {
	c := testChain(t)

	branch := buildBranch(t, c, c.GenesisHash(), 1, 2, nil)
	branch[1].Header.PrevHash = types.Hash{0xde, 0xad}

	err := c.Resolve(branch)
	if !errors.Is(err, ErrBadLink) {
		t.Fatalf("Resolve broken branch: err = %v, want ErrBadLink", err)
	}
}

func TestResolveRejectsUnknownForkPoint(t *testing.T) {
	c := testChain(t)

	branch := buildBranch(t, c, types.Hash{0xaa}, 1, 2, nil)
	err := c.Resolve(branch)
	if !errors.Is(err, ErrUnknownForkPoint) {
		t.Fatalf("Resolve detached branch: err = %v, want ErrUnknownForkPoint", err)
	}
}

func TestResolveRevertedTxHandler(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	// Local block carries two txs; the winning branch carries one of them.
	shared := signedTxs(t, id, 1, "shared")[0]
	dropped := signedTxs(t, id, 1, "dropped")[0]

	a1 := nextBlock(t, id, c.TipHash(), 1, []*tx.Transaction{shared, dropped})
	if err := c.Append(a1); err != nil {
		t.Fatalf("Append a1: %v", err)
	}

	var reverted []*tx.Transaction
	c.SetRevertedTxHandler(func(txs []*tx.Transaction) {
		reverted = txs
	})

	branch := buildBranch(t, c, c.GenesisHash(), 1, 2,
		[][]*tx.Transaction{{shared}, nil})
	if err := c.Resolve(branch); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(reverted) != 1 || reverted[0].ID() != dropped.ID() {
		t.Fatalf("reverted = %d txs, want exactly the dropped tx", len(reverted))
	}
	if !c.HasTx(shared.ID()) {
		t.Error("shared tx lost its index after resolve")
	}
	if c.HasTx(dropped.ID()) {
		t.Error("dropped tx still indexed after resolve")
	}
}

func TestResolveRejectsGenesisReplacement(t *testing.T) {
	c := testChain(t)
	id := testID(t)

	fake := nextBlock(t, id, types.Hash{}, 0, nil)
	if err := c.Resolve([]*block.Block{fake}); err == nil {
		t.Fatal("Resolve accepted a branch replacing genesis")
	}
}

func TestResolveRejectsBranchWithCommittedTx(t *testing.T) {
	c := testChain(t)
	id := testID(t)
	txs := signedTxs(t, id, 1, "BELOWFORK")

	b1 := nextBlock(t, id, c.TipHash(), 1, txs)
	if err := c.Append(b1); err != nil {
		t.Fatalf("Append b1: %v", err)
	}
	b2 := nextBlock(t, id, b1.Hash(), 2, nil)
	if err := c.Append(b2); err != nil {
		t.Fatalf("Append b2: %v", err)
	}

	// The branch forks above b1 but re-carries b1's transaction, which
	// stays committed after the reorg. Resolve must refuse it whole.
	branch := buildBranch(t, c, b1.Hash(), 2, 2, [][]*tx.Transaction{txs, nil})
	err := c.Resolve(branch)
	if !errors.Is(err, ErrDuplicateTx) {
		t.Fatalf("Resolve: err = %v, want ErrDuplicateTx", err)
	}
	if c.Height() != 2 || c.TipHash() != b2.Hash() {
		t.Fatalf("chain changed: height %d tip %s, want height 2 tip %s",
			c.Height(), c.TipHash().Short(), b2.Hash().Short())
	}
}

func TestResolveRejectsTxRepeatedWithinBranch(t *testing.T) {
	c := testChain(t)
	id := testID(t)
	txs := signedTxs(t, id, 1, "TWICE")

	branch := buildBranch(t, c, c.TipHash(), 1, 2, [][]*tx.Transaction{txs, txs})
	err := c.Resolve(branch)
	if !errors.Is(err, ErrDuplicateTx) {
		t.Fatalf("Resolve: err = %v, want ErrDuplicateTx", err)
	}
	if c.Height() != 0 {
		t.Fatalf("height = %d, want 0", c.Height())
	}
}
