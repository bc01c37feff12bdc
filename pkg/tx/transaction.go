// Package tx defines the signed supply-chain transaction and its validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// Kind classifies a transaction by supply-chain segment.
type Kind uint8

const (
	KindUpstream Kind = iota
	KindMidstream
	KindDownstream
	KindFinancial
)

var kindNames = map[Kind]string{
	KindUpstream:   "upstream",
	KindMidstream:  "midstream",
	KindDownstream: "downstream",
	KindFinancial:  "financial",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Transaction is a signed record of a supply-chain event. The payload is
// an opaque event description; the ledger only cares that the sender
// signed it.
type Transaction struct {
	Kind         Kind          `json:"kind"`
	Payload      string        `json:"payload"`
	Receiver     types.Address `json:"receiver"`
	SenderAddr   types.Address `json:"sender_addr"`
	SenderPubKey []byte        `json:"sender_pubkey"`
	Timestamp    int64         `json:"timestamp"`
	Signature    []byte        `json:"signature"`
}

// txJSON is the wire representation with hex-encoded byte fields.
type txJSON struct {
	Kind         Kind          `json:"kind"`
	Payload      string        `json:"payload"`
	Receiver     types.Address `json:"receiver"`
	SenderAddr   types.Address `json:"sender_addr"`
	SenderPubKey string        `json:"sender_pubkey"`
	Timestamp    int64         `json:"timestamp"`
	Signature    string        `json:"signature"`
}

// MarshalJSON encodes the transaction with hex-encoded pubkey and signature.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		Kind:         tx.Kind,
		Payload:      tx.Payload,
		Receiver:     tx.Receiver,
		SenderAddr:   tx.SenderAddr,
		SenderPubKey: hex.EncodeToString(tx.SenderPubKey),
		Timestamp:    tx.Timestamp,
		Signature:    hex.EncodeToString(tx.Signature),
	})
}

// UnmarshalJSON decodes a transaction with hex-encoded pubkey and signature.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	pubKey, err := hex.DecodeString(j.SenderPubKey)
	if err != nil {
		return fmt.Errorf("decode pubkey: %w", err)
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	tx.Kind = j.Kind
	tx.Payload = j.Payload
	tx.Receiver = j.Receiver
	tx.SenderAddr = j.SenderAddr
	tx.SenderPubKey = pubKey
	tx.Timestamp = j.Timestamp
	tx.Signature = sig
	return nil
}

// ID computes the transaction ID (BLAKE3 hash of the canonical signing
// bytes). The signature is excluded so the ID is fixed before signing.
func (tx *Transaction) ID() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: kind(1) | payload_len(4) | payload | receiver(20) | sender(20) | pubkey_len(4) | pubkey | timestamp(8)
func (tx *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 1+4+len(tx.Payload)+types.AddressSize*2+4+len(tx.SenderPubKey)+8)

	buf = append(buf, byte(tx.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Payload)))
	buf = append(buf, tx.Payload...)
	buf = append(buf, tx.Receiver[:]...)
	buf = append(buf, tx.SenderAddr[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.SenderPubKey)))
	buf = append(buf, tx.SenderPubKey...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(tx.Timestamp))

	return buf
}

// Sign fills in the sender fields from the identity and signs the
// transaction's canonical bytes.
func (tx *Transaction) Sign(id *crypto.Identity) error {
	tx.SenderPubKey = id.PubKey
	tx.SenderAddr = id.Addr

	hash := tx.ID()
	sig, err := id.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	tx.Signature = sig
	return nil
}
