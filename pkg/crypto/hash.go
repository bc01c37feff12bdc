// Package crypto provides the signing and hashing primitives the ledger
// is built on: BLAKE3-256 content hashing and Schnorr/secp256k1 signatures.
package crypto

import (
	"github.com/petronet-labs/petronet-chain/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// HashConcat hashes the concatenation of two hashes.
// Used for building merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [2 * types.HashSize]byte
	copy(buf[:types.HashSize], a[:])
	copy(buf[types.HashSize:], b[:])
	return Hash(buf[:])
}
