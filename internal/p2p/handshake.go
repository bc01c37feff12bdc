package p2p

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	klog "github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/petronet-labs/petronet-chain/pkg/types"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// handshakeTimeout is the max time for a complete handshake exchange.
	handshakeTimeout = 10 * time.Second

	// maxHandshakeBytes limits handshake message size.
	maxHandshakeBytes = 4096
)

// HandshakeMessage is exchanged between peers to verify compatibility.
type HandshakeMessage struct {
	ProtocolVersion uint32     `json:"protocol_version"`
	GenesisHash     types.Hash `json:"genesis_hash"`
	NetworkID       string     `json:"network_id"`
	BestHeight      uint64     `json:"best_height"`
}

// registerHandshakeHandler sets up the stream handler for incoming handshakes.
func (n *Node) registerHandshakeHandler() {
	n.host.SetStreamHandler(HandshakeProtocol, func(stream network.Stream) {
		defer stream.Close()

		remotePeer := stream.Conn().RemotePeer()

		_ = stream.SetReadDeadline(time.Now().Add(handshakeTimeout))

		var peerMsg HandshakeMessage
		if err := json.NewDecoder(io.LimitReader(stream, maxHandshakeBytes)).Decode(&peerMsg); err != nil {
			klog.P2P.Debug().Err(err).Str("peer", shortID(remotePeer)).Msg("handshake read failed")
			return
		}

		ourMsg := n.buildHandshakeMessage()
		if err := json.NewEncoder(stream).Encode(&ourMsg); err != nil {
			klog.P2P.Debug().Err(err).Str("peer", shortID(remotePeer)).Msg("handshake write failed")
			return
		}

		n.checkHandshake(remotePeer, peerMsg)
	})
}

// doHandshake initiates a handshake with a remote peer (dialer side).
func (n *Node) doHandshake(peerID peer.ID) {
	stream, err := n.host.NewStream(n.ctx, peerID, HandshakeProtocol)
	if err != nil {
		// Peer doesn't support the handshake protocol. Tolerated: seed
		// registries run without chain state.
		klog.P2P.Debug().Str("peer", shortID(peerID)).Msg("peer has no handshake protocol, tolerating")
		return
	}
	defer stream.Close()

	_ = stream.SetDeadline(time.Now().Add(handshakeTimeout))

	ourMsg := n.buildHandshakeMessage()
	if err := json.NewEncoder(stream).Encode(&ourMsg); err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortID(peerID)).Msg("handshake send failed")
		return
	}

	stream.CloseWrite()

	var peerMsg HandshakeMessage
	if err := json.NewDecoder(io.LimitReader(stream, maxHandshakeBytes)).Decode(&peerMsg); err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortID(peerID)).Msg("handshake response read failed")
		return
	}

	n.checkHandshake(peerID, peerMsg)
}

// checkHandshake validates a peer's handshake and disconnects on failure.
func (n *Node) checkHandshake(peerID peer.ID, msg HandshakeMessage) {
	reason := n.validateHandshake(msg)
	if reason == "" {
		return
	}
	klog.P2P.Warn().
		Str("peer", shortID(peerID)).
		Str("reason", reason).
		Msg("handshake rejected, disconnecting")
	if msg.GenesisHash != n.genesisHash && n.onGenesisMismatch != nil {
		n.onGenesisMismatch(peerID)
	}
	n.DisconnectPeer(peerID)
}

// validateHandshake checks a peer's handshake message for compatibility.
// Returns an empty string on success, or a reason string on failure.
func (n *Node) validateHandshake(msg HandshakeMessage) string {
	if msg.GenesisHash != n.genesisHash {
		return fmt.Sprintf("genesis mismatch: peer=%s local=%s",
			msg.GenesisHash.Short(), n.genesisHash.Short())
	}
	if msg.ProtocolVersion < MinProtocolVersion {
		return fmt.Sprintf("protocol version too low: peer=%d min=%d",
			msg.ProtocolVersion, MinProtocolVersion)
	}
	return ""
}

// buildHandshakeMessage constructs our handshake message from node state.
func (n *Node) buildHandshakeMessage() HandshakeMessage {
	msg := HandshakeMessage{
		ProtocolVersion: ProtocolVersion,
		GenesisHash:     n.genesisHash,
		NetworkID:       n.config.NetworkID,
	}
	if n.heightFn != nil {
		msg.BestHeight = n.heightFn()
	}
	return msg
}
