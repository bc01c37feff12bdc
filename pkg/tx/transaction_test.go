package tx

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

func testIdentity(t *testing.T) *crypto.Identity {
	t.Helper()
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error: %v", err)
	}
	return id
}

func testReceiver() types.Address {
	var addr types.Address
	addr[0] = 0xab
	return addr
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUpstream, "upstream"},
		{KindMidstream, "midstream"},
		{KindDownstream, "downstream"},
		{KindFinancial, "financial"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}

	if Kind(99).Valid() {
		t.Error("Kind(99) should not be valid")
	}
}

func TestSign_Verify(t *testing.T) {
	id := testIdentity(t)

	tr, err := NewSigned(id, KindUpstream, "Extracted 12000 barrels at well PN-07", testReceiver())
	if err != nil {
		t.Fatalf("NewSigned() error: %v", err)
	}

	if tr.SenderAddr != id.Addr {
		t.Error("Sign should set sender address from identity")
	}
	if err := tr.Verify(); err != nil {
		t.Errorf("Verify() error: %v", err)
	}
}

func TestID_ExcludesSignature(t *testing.T) {
	id := testIdentity(t)

	tr := New(KindMidstream, "Pipeline transfer batch 44", testReceiver())
	before := tr.ID()

	if err := tr.Sign(id); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	// Sender fields change the ID; the signature itself must not.
	signed := tr.ID()
	if signed == before {
		t.Error("ID should change once sender fields are filled in")
	}

	tr.Signature[0] ^= 0x01
	if tr.ID() != signed {
		t.Error("ID should not depend on the signature")
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	id := testIdentity(t)

	tr, err := NewSigned(id, KindDownstream, "Delivered 900 barrels to terminal", testReceiver())
	if err != nil {
		t.Fatalf("NewSigned() error: %v", err)
	}

	tr.Payload = "Delivered 90000 barrels to terminal"
	if err := tr.Verify(); !errors.Is(err, ErrInvalidSig) {
		t.Errorf("Verify() error = %v, want ErrInvalidSig", err)
	}
}

func TestVerify_AddrMismatch(t *testing.T) {
	id := testIdentity(t)
	other := testIdentity(t)

	tr, err := NewSigned(id, KindFinancial, "Settled invoice 2291", testReceiver())
	if err != nil {
		t.Fatalf("NewSigned() error: %v", err)
	}

	tr.SenderAddr = other.Addr
	if err := tr.Verify(); !errors.Is(err, ErrAddrMismatch) {
		t.Errorf("Verify() error = %v, want ErrAddrMismatch", err)
	}
}

func TestValidate(t *testing.T) {
	id := testIdentity(t)
	valid, err := NewSigned(id, KindUpstream, "Rig inspection logged", testReceiver())
	if err != nil {
		t.Fatalf("NewSigned() error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{"valid", func(tr *Transaction) {}, nil},
		{"bad kind", func(tr *Transaction) { tr.Kind = Kind(42) }, ErrInvalidKind},
		{"empty payload", func(tr *Transaction) { tr.Payload = "" }, ErrEmptyPayload},
		{"oversized payload", func(tr *Transaction) { tr.Payload = strings.Repeat("x", MaxPayloadSize+1) }, ErrPayloadTooLarge},
		{"missing pubkey", func(tr *Transaction) { tr.SenderPubKey = nil }, ErrMissingPubKey},
		{"missing signature", func(tr *Transaction) { tr.Signature = nil }, ErrMissingSig},
		{"zero timestamp", func(tr *Transaction) { tr.Timestamp = 0 }, ErrZeroTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := *valid
			tt.mutate(&tr)
			err := tr.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJSON_Roundtrip(t *testing.T) {
	id := testIdentity(t)

	original, err := NewSigned(id, KindMidstream, "Tanker loading completed", testReceiver())
	if err != nil {
		t.Fatalf("NewSigned() error: %v", err)
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if decoded.ID() != original.ID() {
		t.Error("decoded transaction should keep its ID")
	}
	if err := decoded.Verify(); err != nil {
		t.Errorf("decoded transaction should verify: %v", err)
	}
}
