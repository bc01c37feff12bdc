package p2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	klog "github.com/petronet-labs/petronet-chain/internal/log"
)

// discoveryNotifee handles mDNS peer discovery notifications.
type discoveryNotifee struct {
	node *Node
}

// HandlePeerFound dials a peer discovered via mDNS. Already-connected
// peers are skipped, and no dial happens once the peer cap is reached;
// the handshake protocol still decides whether the connection survives.
func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.node.host.ID() {
		return // Ignore self.
	}
	if d.node.host.Network().Connectedness(pi.ID) == network.Connected {
		return
	}
	if d.node.config.MaxPeers > 0 && d.node.PeerCount() >= d.node.config.MaxPeers {
		return
	}

	ctx, cancel := context.WithTimeout(d.node.ctx, 5*time.Second)
	defer cancel()

	if err := d.node.host.Connect(ctx, pi); err != nil {
		klog.P2P.Debug().Str("peer", shortID(pi.ID)).Err(err).Msg("mdns dial failed")
		return
	}
	d.node.setPeerSource(pi.ID, "mdns")
	klog.P2P.Debug().Str("peer", shortID(pi.ID)).Msg("peer found via mdns")
}
