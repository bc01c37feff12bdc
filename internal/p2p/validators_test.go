package p2p

import (
	"context"
	"encoding/json"
	"testing"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

// newTestValidatorNode builds a node with gossip caches only, so the
// topic validators can run without a libp2p host.
func newTestValidatorNode(t *testing.T) *Node {
	t.Helper()
	v, err := newGossipValidators()
	if err != nil {
		t.Fatalf("newGossipValidators: %v", err)
	}
	return &Node{validators: v}
}

func signedGossipTx(t *testing.T, payload string) *tx.Transaction {
	t.Helper()
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	transaction, err := tx.NewSigned(id, tx.KindDownstream, payload, types.Address{0xaa})
	if err != nil {
		t.Fatalf("NewSigned: %v", err)
	}
	return transaction
}

func gossipMessage(t *testing.T, v any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &pubsub.Message{Message: &pb.Message{Data: data}}
}

func TestTxValidatorRelaysOnceThenIgnores(t *testing.T) {
	n := newTestValidatorNode(t)
	msg := gossipMessage(t, signedGossipTx(t, "Tanker MT-77 loaded: 12000 barrels"))

	if got := n.validateTxMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationAccept {
		t.Fatalf("first delivery = %v, want ValidationAccept", got)
	}
	// The same id via another peer must not be relayed again.
	if got := n.validateTxMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationIgnore {
		t.Fatalf("second delivery = %v, want ValidationIgnore", got)
	}
}

func TestTxValidatorRejectsBadSignature(t *testing.T) {
	n := newTestValidatorNode(t)
	transaction := signedGossipTx(t, "Retail sale: 40L gasoline")
	transaction.Signature[0] ^= 0xff
	msg := gossipMessage(t, transaction)

	if got := n.validateTxMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationReject {
		t.Fatalf("tampered tx = %v, want ValidationReject", got)
	}
	// A rejected message never lands in the seen cache; the valid
	// original is still relayable afterwards.
	transaction.Signature[0] ^= 0xff
	msg = gossipMessage(t, transaction)
	if got := n.validateTxMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationAccept {
		t.Fatalf("valid tx after reject = %v, want ValidationAccept", got)
	}
}

func TestTxValidatorMalformedPayload(t *testing.T) {
	n := newTestValidatorNode(t)
	msg := &pubsub.Message{Message: &pb.Message{Data: []byte("not json")}}

	if got := n.validateTxMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationReject {
		t.Fatalf("malformed tx = %v, want ValidationReject", got)
	}
}

func TestMarkTxSeenSuppressesOwnBroadcast(t *testing.T) {
	n := newTestValidatorNode(t)
	transaction := signedGossipTx(t, "Well #204 production started")
	n.MarkTxSeen(transaction.ID())

	msg := gossipMessage(t, transaction)
	if got := n.validateTxMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationIgnore {
		t.Fatalf("own broadcast handed back = %v, want ValidationIgnore", got)
	}
}

func TestBlockValidatorRelaysOnceThenIgnores(t *testing.T) {
	n := newTestValidatorNode(t)
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	blk := block.NewBlock(types.Hash{0x01}, 1, id.Addr,
		[]*tx.Transaction{signedGossipTx(t, "Crude batch assayed: Brent")}, 7)
	msg := gossipMessage(t, blk)

	if got := n.validateBlockMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationAccept {
		t.Fatalf("first delivery = %v, want ValidationAccept", got)
	}
	if got := n.validateBlockMessage(context.Background(), peer.ID(""), msg); got != pubsub.ValidationIgnore {
		t.Fatalf("second delivery = %v, want ValidationIgnore", got)
	}
}

func TestContentMessageIDIsPayloadDerived(t *testing.T) {
	a := &pb.Message{Data: []byte("same payload"), From: []byte("peer-a")}
	b := &pb.Message{Data: []byte("same payload"), From: []byte("peer-b")}

	if contentMessageID(a) != contentMessageID(b) {
		t.Fatal("message id should depend on payload only")
	}
	c := &pb.Message{Data: []byte("other payload")}
	if contentMessageID(a) == contentMessageID(c) {
		t.Fatal("distinct payloads should not collide")
	}
}
