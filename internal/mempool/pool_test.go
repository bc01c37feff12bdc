package mempool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

func testIdentity(t *testing.T) *crypto.Identity {
	t.Helper()
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	return id
}

func signedTx(t *testing.T, id *crypto.Identity, payload string) *tx.Transaction {
	t.Helper()
	transaction, err := tx.NewSigned(id, tx.KindUpstream, payload, types.Address{0xaa})
	if err != nil {
		t.Fatalf("NewSigned: %v", err)
	}
	return transaction
}

func TestPoolInsert(t *testing.T) {
	id := testIdentity(t)
	pool := New(10)

	transaction := signedTx(t, id, "Well #101 spudded at Ghawar")
	if err := pool.Insert(transaction); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if pool.Count() != 1 {
		t.Fatalf("Count = %d, want 1", pool.Count())
	}
	if !pool.Has(transaction.ID()) {
		t.Error("Has returned false for inserted transaction")
	}
}

func TestPoolInsertDuplicate(t *testing.T) {
	id := testIdentity(t)
	pool := New(10)

	transaction := signedTx(t, id, "Crude extraction report: 5000 barrels")
	if err := pool.Insert(transaction); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	// Duplicates are a silent no-op so gossip redelivery is harmless.
	if err := pool.Insert(transaction); err != nil {
		t.Fatalf("duplicate Insert: %v", err)
	}
	if pool.Count() != 1 {
		t.Fatalf("Count = %d after duplicate, want 1", pool.Count())
	}
}

func TestPoolInsertInvalid(t *testing.T) {
	id := testIdentity(t)
	pool := New(10)

	transaction := signedTx(t, id, "Pipeline integrity check #42: status PASS")
	transaction.Payload = "tampered after signing"

	err := pool.Insert(transaction)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Insert tampered tx: err = %v, want ErrValidation", err)
	}
	if pool.Count() != 0 {
		t.Fatalf("Count = %d, want 0", pool.Count())
	}
}

func TestPoolInsertFull(t *testing.T) {
	id := testIdentity(t)
	pool := New(2)

	for i := 0; i < 2; i++ {
		if err := pool.Insert(signedTx(t, id, fmt.Sprintf("event %d", i))); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	err := pool.Insert(signedTx(t, id, "overflow event"))
	if !errors.Is(err, ErrPoolFull) {
		t.Fatalf("Insert into full pool: err = %v, want ErrPoolFull", err)
	}
}

func TestPoolTakeOrdering(t *testing.T) {
	id := testIdentity(t)
	pool := New(10)

	want := make([]types.Hash, 0, 5)
	for i := 0; i < 5; i++ {
		transaction := signedTx(t, id, fmt.Sprintf("shipment #%d", i))
		if err := pool.Insert(transaction); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		want = append(want, transaction.ID())
	}

	got := pool.Take(3)
	if len(got) != 3 {
		t.Fatalf("Take(3) returned %d txs", len(got))
	}
	for i, transaction := range got {
		if transaction.ID() != want[i] {
			t.Errorf("Take[%d] = %s, want %s", i, transaction.ID().Short(), want[i].Short())
		}
	}

	// Take must not remove; the miner only reserves.
	if pool.Count() != 5 {
		t.Fatalf("Count = %d after Take, want 5", pool.Count())
	}
}

func TestPoolTakeMoreThanAvailable(t *testing.T) {
	id := testIdentity(t)
	pool := New(10)

	if err := pool.Insert(signedTx(t, id, "lone event")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got := pool.Take(5)
	if len(got) != 1 {
		t.Fatalf("Take(5) returned %d txs, want 1", len(got))
	}
}

func TestPoolRemove(t *testing.T) {
	id := testIdentity(t)
	pool := New(10)

	ids := make([]types.Hash, 0, 4)
	for i := 0; i < 4; i++ {
		transaction := signedTx(t, id, fmt.Sprintf("batch %d", i))
		if err := pool.Insert(transaction); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		ids = append(ids, transaction.ID())
	}

	pool.Remove([]types.Hash{ids[0], ids[2]})

	if pool.Count() != 2 {
		t.Fatalf("Count = %d after Remove, want 2", pool.Count())
	}
	if pool.Has(ids[0]) || pool.Has(ids[2]) {
		t.Error("removed transactions still present")
	}

	// Remaining order is preserved after compaction.
	rest := pool.Take(2)
	if rest[0].ID() != ids[1] || rest[1].ID() != ids[3] {
		t.Error("Remove broke insertion order of remaining transactions")
	}
}

func TestPoolSnapshot(t *testing.T) {
	id := testIdentity(t)
	pool := New(10)

	for i := 0; i < 3; i++ {
		if err := pool.Insert(signedTx(t, id, fmt.Sprintf("snap %d", i))); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	snap := pool.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot returned %d txs, want 3", len(snap))
	}
}
