// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// Mempool errors.
var (
	ErrPoolFull   = errors.New("mempool is full")
	ErrValidation = errors.New("transaction failed validation")
)

// Pool holds unconfirmed transactions in arrival order.
type Pool struct {
	mu      sync.RWMutex
	txs     map[types.Hash]*tx.Transaction
	order   []types.Hash // insertion order, oldest first
	maxSize int
}

// New creates a new mempool with the given max size.
func New(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &Pool{
		txs:     make(map[types.Hash]*tx.Transaction),
		maxSize: maxSize,
	}
}

// Insert adds a transaction to the pool after verifying its signature.
// Duplicates are a silent no-op. A full pool rejects the transaction.
func (p *Pool) Insert(transaction *tx.Transaction) error {
	if err := transaction.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := transaction.ID()
	if _, exists := p.txs[id]; exists {
		return nil // already seen
	}
	if len(p.txs) >= p.maxSize {
		return ErrPoolFull
	}

	p.txs[id] = transaction
	p.order = append(p.order, id)
	return nil
}

// Take returns up to n of the oldest transactions without removing them.
// The miner calls this to reserve a block's worth of work; the entries
// are removed only once the block commits.
func (p *Pool) Take(n int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n > len(p.order) {
		n = len(p.order)
	}
	out := make([]*tx.Transaction, 0, n)
	for _, id := range p.order {
		if len(out) == n {
			break
		}
		if t, ok := p.txs[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Remove purges confirmed transactions after a block is committed.
func (p *Pool) Remove(ids []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range ids {
		delete(p.txs, id)
	}

	// Compact the order slice in place.
	kept := p.order[:0]
	for _, id := range p.order {
		if _, ok := p.txs[id]; ok {
			kept = append(kept, id)
		}
	}
	p.order = kept
}

// Has checks if a transaction exists in the pool.
func (p *Pool) Has(id types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[id]
	return exists
}

// Get retrieves a transaction from the pool, or nil.
func (p *Pool) Get(id types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.txs[id]
}

// Count returns the number of transactions in the pool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Snapshot returns all pooled transactions in arrival order.
func (p *Pool) Snapshot() []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*tx.Transaction, 0, len(p.order))
	for _, id := range p.order {
		if t, ok := p.txs[id]; ok {
			out = append(out, t)
		}
	}
	return out
}
