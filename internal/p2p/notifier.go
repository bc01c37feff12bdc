package p2p

import (
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/multiformats/go-multiaddr"

	klog "github.com/petronet-labs/petronet-chain/internal/log"
)

// connNotifier tracks connection lifecycle events via the network.Notifiee
// interface. It calls addPeer on connect and removePeer on disconnect.
type connNotifier struct {
	node *Node
}

// Connected is called when a new connection is opened.
func (cn *connNotifier) Connected(_ network.Network, conn network.Conn) {
	remotePeer := conn.RemotePeer()
	if remotePeer == cn.node.host.ID() {
		return // Ignore self-connections.
	}
	cn.node.addPeer(remotePeer)
	if fn := cn.node.onPeerConnected; fn != nil {
		go fn()
	}
	// Initiate handshake for outbound connections only (inbound handled by stream handler).
	if cn.node.handshakeEnabled && conn.Stat().Direction == network.DirOutbound {
		go cn.node.doHandshake(remotePeer)
	}
	klog.P2P.Debug().
		Str("peer", shortID(remotePeer)).
		Str("direction", conn.Stat().Direction.String()).
		Int("peers", cn.node.PeerCount()).
		Msg("connection opened")
}

// Disconnected is called when a connection is closed. Only removes the peer
// if there are no remaining connections to it.
func (cn *connNotifier) Disconnected(net network.Network, conn network.Conn) {
	remotePeer := conn.RemotePeer()
	if len(net.ConnsToPeer(remotePeer)) > 0 {
		return
	}
	cn.node.removePeer(remotePeer)

	// Stamp the record so the prune cycle ages it from the moment the
	// peer actually left, not from when it was last persisted.
	if ps := cn.node.peerStore; ps != nil {
		if rec, err := ps.Load(remotePeer); err == nil {
			rec.LastSeen = time.Now().Unix()
			ps.Save(*rec)
		}
	}

	klog.P2P.Debug().
		Str("peer", shortID(remotePeer)).
		Int("peers", cn.node.PeerCount()).
		Msg("connection closed")
}

// Listen is called when the node starts listening on a new address.
func (cn *connNotifier) Listen(network.Network, multiaddr.Multiaddr) {}

// ListenClose is called when the node stops listening on an address.
func (cn *connNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}
