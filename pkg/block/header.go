package block

import (
	"encoding/binary"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Version    uint32        `json:"version"`
	Height     uint64        `json:"height"`
	PrevHash   types.Hash    `json:"prev_hash"`
	MerkleRoot types.Hash    `json:"merkle_root"`
	Timestamp  int64         `json:"timestamp"`
	Producer   types.Address `json:"producer"`
	Nonce      uint64        `json:"nonce"`
}

// Hash computes the block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes for hashing.
// Format: version(4) | height(8) | prev_hash(32) | merkle_root(32) | timestamp(8) | producer(20) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 112)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(h.Timestamp))
	buf = append(buf, h.Producer[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}
