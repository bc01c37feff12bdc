package block

import (
	"errors"
	"fmt"
	"time"

	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader      = errors.New("block has nil header")
	ErrBadMerkleRoot  = errors.New("merkle root mismatch")
	ErrBadVersion     = errors.New("unsupported block version")
	ErrZeroTimestamp  = errors.New("block timestamp is zero")
	ErrZeroProducer   = errors.New("block has zero producer address")
	ErrTooManyTxs     = errors.New("too many transactions in block")
	ErrDuplicateTx    = errors.New("duplicate transaction in block")
	ErrTimestampDrift = errors.New("block timestamp outside accepted window")
)

// Block version constants.
const (
	CurrentVersion = 1 // The current block version produced by this software.
	MaxVersion     = 1 // Bump when a fork introduces a new block version.
)

// MaxBlockTxs caps how many transactions a block may carry.
const MaxBlockTxs = 100

// Validate checks block structure and internal consistency: version,
// merkle root, duplicate transactions, and every transaction signature.
// Chain-position rules (height, prev hash, timestamp window) are
// enforced by the chain when the block is appended.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}

	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}

	if b.Header.Producer.IsZero() {
		return ErrZeroProducer
	}

	if len(b.Transactions) > MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), MaxBlockTxs)
	}

	// Verify merkle root. Empty blocks commit to the zero root.
	txIDs := b.TxIDs()
	expectedRoot := ComputeMerkleRoot(txIDs)
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	// No transaction appears twice.
	seen := make(map[types.Hash]int, len(txIDs))
	for i, id := range txIDs {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("tx %d: %w: same as tx %d", i, ErrDuplicateTx, prev)
		}
		seen[id] = i
	}

	// Every transaction must carry a valid signature.
	for i, t := range b.Transactions {
		if err := t.Verify(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	return nil
}

// CheckTimestamp rejects blocks whose timestamp is more than window away
// from now in either direction.
func (b *Block) CheckTimestamp(now time.Time, window time.Duration) error {
	if b.Header == nil {
		return ErrNilHeader
	}
	ts := time.Unix(b.Header.Timestamp, 0)
	drift := now.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > window {
		return fmt.Errorf("%w: block time %s, local time %s", ErrTimestampDrift,
			ts.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return nil
}
