package block

import (
	"testing"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

func testHashes(n int) []types.Hash {
	hashes := make([]types.Hash, n)
	for i := range hashes {
		hashes[i] = crypto.Hash([]byte{byte(i)})
	}
	return hashes
}

func TestComputeMerkleRoot_Empty(t *testing.T) {
	root := ComputeMerkleRoot(nil)
	if !root.IsZero() {
		t.Error("empty tree should have zero root")
	}
}

func TestComputeMerkleRoot_Single(t *testing.T) {
	h := crypto.Hash([]byte("only"))
	if root := ComputeMerkleRoot([]types.Hash{h}); root != h {
		t.Error("single-leaf root should be the leaf itself")
	}
}

func TestComputeMerkleRoot_Pair(t *testing.T) {
	hashes := testHashes(2)
	want := crypto.HashConcat(hashes[0], hashes[1])
	if root := ComputeMerkleRoot(hashes); root != want {
		t.Error("two-leaf root should be the concat hash")
	}
}

func TestComputeMerkleRoot_OddDuplicatesLast(t *testing.T) {
	hashes := testHashes(3)
	// Level 1: H(0,1), H(2,2). Root: H(H(0,1), H(2,2)).
	left := crypto.HashConcat(hashes[0], hashes[1])
	right := crypto.HashConcat(hashes[2], hashes[2])
	want := crypto.HashConcat(left, right)

	if root := ComputeMerkleRoot(hashes); root != want {
		t.Error("odd leaf count should duplicate the last leaf")
	}
}

func TestComputeMerkleRoot_DoesNotMutateInput(t *testing.T) {
	hashes := testHashes(3)
	before := make([]types.Hash, len(hashes))
	copy(before, hashes)

	ComputeMerkleRoot(hashes)

	for i := range hashes {
		if hashes[i] != before[i] {
			t.Fatal("input slice should not be mutated")
		}
	}
}

func TestMerkleProof_Roundtrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		hashes := testHashes(n)
		root := ComputeMerkleRoot(hashes)

		for i := 0; i < n; i++ {
			proof, err := MerkleProof(hashes, i)
			if err != nil {
				t.Fatalf("MerkleProof(n=%d, i=%d) error: %v", n, i, err)
			}
			if !VerifyMerkleProof(hashes[i], i, proof, root) {
				t.Errorf("proof for leaf %d of %d should verify", i, n)
			}
		}
	}
}

func TestMerkleProof_WrongLeaf(t *testing.T) {
	hashes := testHashes(4)
	root := ComputeMerkleRoot(hashes)

	proof, err := MerkleProof(hashes, 1)
	if err != nil {
		t.Fatalf("MerkleProof() error: %v", err)
	}

	fake := crypto.Hash([]byte("not in the block"))
	if VerifyMerkleProof(fake, 1, proof, root) {
		t.Error("proof should not verify a leaf that is not in the tree")
	}
}

func TestMerkleProof_IndexOutOfRange(t *testing.T) {
	hashes := testHashes(4)
	if _, err := MerkleProof(hashes, 4); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if _, err := MerkleProof(hashes, -1); err == nil {
		t.Error("expected error for negative index")
	}
}
