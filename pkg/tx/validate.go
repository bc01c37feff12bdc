package tx

import (
	"errors"
	"fmt"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
)

// MaxPayloadSize bounds the event description carried by a transaction.
const MaxPayloadSize = 1024

// Validation errors.
var (
	ErrEmptyPayload    = errors.New("transaction has empty payload")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrMissingPubKey   = errors.New("transaction missing sender public key")
	ErrMissingSig      = errors.New("transaction missing signature")
	ErrZeroTimestamp   = errors.New("transaction timestamp is zero")
	ErrAddrMismatch    = errors.New("sender address does not match public key")
	ErrInvalidSig      = errors.New("invalid signature")
)

// Validate checks transaction structure: kind, payload bounds, and the
// presence of sender credentials. It does not verify the signature.
func (tx *Transaction) Validate() error {
	if !tx.Kind.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, uint8(tx.Kind))
	}
	if len(tx.Payload) == 0 {
		return ErrEmptyPayload
	}
	if len(tx.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(tx.Payload), MaxPayloadSize)
	}
	if len(tx.SenderPubKey) != crypto.PubKeySize {
		return fmt.Errorf("%w: %d bytes", ErrMissingPubKey, len(tx.SenderPubKey))
	}
	if len(tx.Signature) == 0 {
		return ErrMissingSig
	}
	if tx.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	return nil
}

// Verify checks structure, that the sender address is derived from the
// embedded public key, and that the signature is valid. Every node runs
// this before relaying or mining a transaction.
func (tx *Transaction) Verify() error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.SenderAddr != crypto.AddressFromPubKey(tx.SenderPubKey) {
		return ErrAddrMismatch
	}
	hash := tx.ID()
	if !crypto.VerifySignature(hash[:], tx.Signature, tx.SenderPubKey) {
		return ErrInvalidSig
	}
	return nil
}
