package tx

import (
	"time"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// New builds an unsigned transaction stamped with the current time.
func New(kind Kind, payload string, receiver types.Address) *Transaction {
	return &Transaction{
		Kind:      kind,
		Payload:   payload,
		Receiver:  receiver,
		Timestamp: time.Now().Unix(),
	}
}

// NewSigned builds and signs a transaction in one step.
func NewSigned(id *crypto.Identity, kind Kind, payload string, receiver types.Address) (*Transaction, error) {
	t := New(kind, payload, receiver)
	if err := t.Sign(id); err != nil {
		return nil, err
	}
	return t, nil
}
