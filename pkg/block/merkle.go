package block

import (
	"fmt"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// ComputeMerkleRoot calculates the merkle root of transaction IDs.
//
// Algorithm:
//   - 0 hashes: returns zero hash
//   - 1 hash: returns that hash
//   - Otherwise: pairwise hash, duplicating the last element if odd count,
//     then recurse on the resulting layer until one hash remains.
func ComputeMerkleRoot(txIDs []types.Hash) types.Hash {
	if len(txIDs) == 0 {
		return types.Hash{}
	}
	if len(txIDs) == 1 {
		return txIDs[0]
	}

	// Work on a copy so we don't mutate the caller's slice.
	level := make([]types.Hash, len(txIDs))
	copy(level, txIDs)

	for len(level) > 1 {
		// If odd, duplicate the last element.
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
	}

	return level[0]
}

// MerkleProof returns the sibling hashes proving that the transaction at
// index is included in the tree built from txIDs. A light client can
// check the proof against a header's merkle root without the block body.
func MerkleProof(txIDs []types.Hash, index int) ([]types.Hash, error) {
	if index < 0 || index >= len(txIDs) {
		return nil, fmt.Errorf("proof index %d out of range [0,%d)", index, len(txIDs))
	}

	var proof []types.Hash
	level := make([]types.Hash, len(txIDs))
	copy(level, txIDs)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		// Sibling of an even index is to the right, odd to the left.
		sibling := index ^ 1
		proof = append(proof, level[sibling])

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
		index /= 2
	}

	return proof, nil
}

// VerifyMerkleProof checks a proof produced by MerkleProof against a root.
func VerifyMerkleProof(leaf types.Hash, index int, proof []types.Hash, root types.Hash) bool {
	if index < 0 {
		return false
	}

	current := leaf
	for _, sibling := range proof {
		if index%2 == 0 {
			current = crypto.HashConcat(current, sibling)
		} else {
			current = crypto.HashConcat(sibling, current)
		}
		index /= 2
	}
	return current == root
}
