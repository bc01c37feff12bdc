package p2p

import (
	"github.com/libp2p/go-libp2p/core/protocol"
)

// GossipSub topic names.
const (
	TopicTransactions = "/petronet/tx/1.0.0"
	TopicBlocks       = "/petronet/block/1.0.0"
)

// Stream protocol IDs.
const (
	// HandshakeProtocol checks peer compatibility (genesis hash, version).
	HandshakeProtocol = protocol.ID("/petronet/handshake/1.0.0")

	// SyncProtocol serves ranged block downloads.
	SyncProtocol = protocol.ID("/petronet/sync/1.0.0")

	// HeightProtocol answers chain height queries.
	HeightProtocol = protocol.ID("/petronet/height/1.0.0")

	// RegisterProtocol is the seed registry enrollment exchange.
	RegisterProtocol = protocol.ID("/petronet/register/1.0.0")

	// DeadNodeProtocol carries dead-node reports to the seed registry.
	DeadNodeProtocol = protocol.ID("/petronet/deadnode/1.0.0")

	// PingProtocol is the peer liveness check.
	PingProtocol = protocol.ID("/petronet/ping/1.0.0")
)

// Protocol version constants advertised during handshake.
const (
	ProtocolVersion    uint32 = 1
	MinProtocolVersion uint32 = 1
)

// maxGossipMessageSize bounds a single pubsub message. A full block is
// TxPerBlock small JSON transactions, so this is generous.
const maxGossipMessageSize = 2 * 1024 * 1024

// seenCacheSize bounds the duplicate-suppression cache per topic.
const seenCacheSize = 8192
