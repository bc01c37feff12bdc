package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	klog "github.com/petronet-labs/petronet-chain/internal/log"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// pingTimeout bounds one ping/pong exchange. A peer slower than
	// this counts as a miss for the round.
	pingTimeout = 5 * time.Second

	// maxPingBytes limits ping/pong message size.
	maxPingBytes = 1024
)

// PingMessage is a liveness probe.
type PingMessage struct {
	From string `json:"from"` // sender peer ID
}

// PongMessage answers a ping.
type PongMessage struct {
	From string `json:"from"` // responder peer ID
}

// Liveness probes connected peers on a fixed interval and escalates
// persistent silence. A peer that misses the threshold number of
// consecutive pings is reported dead to the seed registry exactly once
// and disconnected; any pong resets its miss count to zero.
type Liveness struct {
	node      *Node
	interval  time.Duration
	threshold int

	mu     sync.Mutex
	misses map[peer.ID]int

	// Injection points so the probe logic is testable without a host.
	pingFn  func(ctx context.Context, id peer.ID) error
	peersFn func() []peer.ID
	onDead  func(id peer.ID)
}

// NewLiveness creates a liveness monitor for the given node's peers.
func NewLiveness(node *Node, interval time.Duration, threshold int) *Liveness {
	l := &Liveness{
		node:      node,
		interval:  interval,
		threshold: threshold,
		misses:    make(map[peer.ID]int),
	}
	l.pingFn = l.pingPeer
	l.peersFn = func() []peer.ID {
		peers := node.PeerList()
		ids := make([]peer.ID, 0, len(peers))
		for _, p := range peers {
			ids = append(ids, p.ID)
		}
		return ids
	}
	l.onDead = func(id peer.ID) {
		klog.P2P.Warn().
			Str("peer", shortID(id)).
			Int("misses", threshold).
			Msg("peer declared dead, reporting to seeds")
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		node.ReportDeadNode(ctx, id)
		cancel()
		node.DisconnectPeer(id)
	}
	return l
}

// RegisterHandler installs the pong responder on the node's host.
func (l *Liveness) RegisterHandler() {
	l.node.host.SetStreamHandler(PingProtocol, func(stream network.Stream) {
		defer stream.Close()

		_ = stream.SetDeadline(time.Now().Add(pingTimeout))

		var ping PingMessage
		if err := json.NewDecoder(io.LimitReader(stream, maxPingBytes)).Decode(&ping); err != nil {
			return
		}

		pong := PongMessage{From: l.node.ID().String()}
		json.NewEncoder(stream).Encode(&pong)
	})
}

// Run pings every peer each interval until ctx is cancelled. Each peer
// is probed in its own goroutine so a stalled peer cannot delay the
// rest of the round.
func (l *Liveness) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pingRound(ctx)
		}
	}
}

// pingRound probes all current peers concurrently and waits for the
// round to finish.
func (l *Liveness) pingRound(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range l.peersFn() {
		wg.Add(1)
		go func(id peer.ID) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			if err := l.pingFn(pingCtx, id); err != nil {
				l.recordMiss(id)
			} else {
				l.recordPong(id)
			}
		}(id)
	}
	wg.Wait()
}

// recordPong resets a peer's consecutive miss count.
func (l *Liveness) recordPong(id peer.ID) {
	l.mu.Lock()
	delete(l.misses, id)
	l.mu.Unlock()
}

// recordMiss increments a peer's miss count. Crossing the threshold
// clears the counter and fires the dead handler, so each silence spell
// produces exactly one report.
func (l *Liveness) recordMiss(id peer.ID) {
	l.mu.Lock()
	l.misses[id]++
	count := l.misses[id]
	dead := count >= l.threshold
	if dead {
		delete(l.misses, id)
	}
	l.mu.Unlock()

	if dead {
		l.onDead(id)
		return
	}
	klog.P2P.Debug().
		Str("peer", shortID(id)).
		Int("misses", count).
		Int("threshold", l.threshold).
		Msg("peer missed ping")
}

// Misses returns a peer's current consecutive miss count.
func (l *Liveness) Misses(id peer.ID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.misses[id]
}

// pingPeer performs one ping/pong exchange over a fresh stream.
func (l *Liveness) pingPeer(ctx context.Context, id peer.ID) error {
	stream, err := l.node.host.NewStream(ctx, id, PingProtocol)
	if err != nil {
		return fmt.Errorf("open ping stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetDeadline(time.Now().Add(pingTimeout))

	ping := PingMessage{From: l.node.ID().String()}
	if err := json.NewEncoder(stream).Encode(&ping); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}
	stream.CloseWrite()

	var pong PongMessage
	if err := json.NewDecoder(io.LimitReader(stream, maxPingBytes)).Decode(&pong); err != nil {
		return fmt.Errorf("read pong: %w", err)
	}
	return nil
}
