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
	// registryTimeout bounds one registry exchange.
	registryTimeout = 10 * time.Second

	// maxRegistryBytes limits registry message size.
	maxRegistryBytes = 64 * 1024
)

// RegisterRequest enrolls a node with a seed registry.
type RegisterRequest struct {
	Addrs []string `json:"addrs"` // the registrant's full multiaddrs
}

// RegisterResponse returns the registry's known peers.
type RegisterResponse struct {
	Peers []string `json:"peers"` // full multiaddrs of registered peers
}

// DeadNodeReport tells the registry a peer stopped answering pings.
type DeadNodeReport struct {
	PeerID   string `json:"peer_id"`
	Reporter string `json:"reporter"`
}

// DeadNodeAck acknowledges a dead-node report.
type DeadNodeAck struct {
	OK bool `json:"ok"`
}

// Registry is the seed-side peer directory. It records registrants,
// hands out the current peer list, and drops peers reported dead.
type Registry struct {
	node  *Node
	store *PeerStore // nil = memory only

	mu      sync.RWMutex
	peers   map[peer.ID][]string // id -> multiaddrs
	reports map[peer.ID]int      // id -> dead reports received
}

// NewRegistry creates a registry served over the given node's host.
// Records persist through the node's peer store when one is configured.
func NewRegistry(node *Node) *Registry {
	r := &Registry{
		node:    node,
		store:   node.peerStore,
		peers:   make(map[peer.ID][]string),
		reports: make(map[peer.ID]int),
	}
	r.restore()
	return r
}

// Serve registers the registry stream handlers.
func (r *Registry) Serve() {
	r.node.host.SetStreamHandler(RegisterProtocol, r.handleRegister)
	r.node.host.SetStreamHandler(DeadNodeProtocol, r.handleDeadNode)
}

// restore reloads registered peers persisted by a previous run.
func (r *Registry) restore() {
	if r.store == nil {
		return
	}
	records, err := r.store.LoadAll()
	if err != nil {
		return
	}
	for _, rec := range records {
		id, err := peer.Decode(rec.ID)
		if err != nil {
			continue
		}
		r.peers[id] = rec.Addrs
	}
	if len(r.peers) > 0 {
		klog.Registry.Info().Int("peers", len(r.peers)).Msg("registry restored from store")
	}
}

func (r *Registry) handleRegister(stream network.Stream) {
	defer stream.Close()

	remotePeer := stream.Conn().RemotePeer()
	_ = stream.SetDeadline(time.Now().Add(registryTimeout))

	var req RegisterRequest
	if err := json.NewDecoder(io.LimitReader(stream, maxRegistryBytes)).Decode(&req); err != nil {
		klog.Registry.Debug().Err(err).Str("peer", shortID(remotePeer)).Msg("bad register request")
		return
	}

	resp := RegisterResponse{Peers: r.peerListExcluding(remotePeer)}

	r.mu.Lock()
	r.peers[remotePeer] = req.Addrs
	delete(r.reports, remotePeer) // A re-registration clears dead reports.
	total := len(r.peers)
	r.mu.Unlock()

	r.persist(remotePeer, req.Addrs)

	klog.Registry.Info().
		Str("peer", shortID(remotePeer)).
		Int("addrs", len(req.Addrs)).
		Int("registered", total).
		Msg("node registered")

	json.NewEncoder(stream).Encode(&resp)
}

func (r *Registry) handleDeadNode(stream network.Stream) {
	defer stream.Close()

	remotePeer := stream.Conn().RemotePeer()
	_ = stream.SetDeadline(time.Now().Add(registryTimeout))

	var report DeadNodeReport
	if err := json.NewDecoder(io.LimitReader(stream, maxRegistryBytes)).Decode(&report); err != nil {
		return
	}

	dead, err := peer.Decode(report.PeerID)
	if err != nil {
		json.NewEncoder(stream).Encode(&DeadNodeAck{OK: false})
		return
	}

	r.mu.Lock()
	r.reports[dead]++
	count := r.reports[dead]
	_, known := r.peers[dead]
	if known {
		delete(r.peers, dead)
	}
	r.mu.Unlock()

	if known && r.store != nil {
		r.store.Delete(dead)
	}

	klog.Registry.Warn().
		Str("dead", shortID(dead)).
		Str("reporter", shortID(remotePeer)).
		Int("reports", count).
		Bool("removed", known).
		Msg("dead node reported")

	json.NewEncoder(stream).Encode(&DeadNodeAck{OK: true})
}

// peerListExcluding returns multiaddrs of all registered peers except the given one.
func (r *Registry) peerListExcluding(exclude peer.ID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, addrs := range r.peers {
		if id == exclude {
			continue
		}
		out = append(out, addrs...)
	}
	return out
}

func (r *Registry) persist(id peer.ID, addrs []string) {
	if r.store == nil {
		return
	}
	r.store.Save(PeerRecord{
		ID:       id.String(),
		Addrs:    addrs,
		LastSeen: time.Now().Unix(),
		Source:   "registry",
	})
}

// PeerCount returns the number of registered peers.
func (r *Registry) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// --- Client side ---

// RegisterQuorum returns the number of seeds that must answer a
// registration round: a majority of the configured seeds.
func RegisterQuorum(seedCount int) int {
	return seedCount/2 + 1
}

// RegisterWithSeeds enrolls this node with every configured seed and
// returns the union of peer lists received. It fails unless a majority
// of seeds responded, so a node never proceeds on a partitioned view.
func (n *Node) RegisterWithSeeds(ctx context.Context) ([]string, error) {
	seeds := n.seedPeerIDs()
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seeds configured")
	}

	quorum := RegisterQuorum(len(seeds))
	responded := 0
	peerSet := make(map[string]struct{})

	for _, seedID := range seeds {
		peers, err := n.registerWithSeed(ctx, seedID)
		if err != nil {
			klog.P2P.Warn().Str("seed", shortID(seedID)).Err(err).Msg("seed registration failed")
			continue
		}
		responded++
		for _, addr := range peers {
			peerSet[addr] = struct{}{}
		}
	}

	if responded < quorum {
		return nil, fmt.Errorf("seed quorum not reached: %d of %d responded, need %d",
			responded, len(seeds), quorum)
	}

	out := make([]string, 0, len(peerSet))
	for addr := range peerSet {
		out = append(out, addr)
	}
	klog.P2P.Info().
		Int("seeds", responded).
		Int("peers", len(out)).
		Msg("registered with seed quorum")
	return out, nil
}

func (n *Node) registerWithSeed(ctx context.Context, seedID peer.ID) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()

	stream, err := n.host.NewStream(ctx, seedID, RegisterProtocol)
	if err != nil {
		return nil, fmt.Errorf("open register stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetDeadline(time.Now().Add(registryTimeout))

	req := RegisterRequest{Addrs: n.Addrs()}
	if err := json.NewEncoder(stream).Encode(&req); err != nil {
		return nil, fmt.Errorf("send register request: %w", err)
	}
	stream.CloseWrite()

	var resp RegisterResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxRegistryBytes)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read register response: %w", err)
	}
	return resp.Peers, nil
}

// ReportDeadNode sends a dead-node report to every connected seed.
// Best-effort: a seed that cannot be reached is skipped.
func (n *Node) ReportDeadNode(ctx context.Context, dead peer.ID) {
	report := DeadNodeReport{
		PeerID:   dead.String(),
		Reporter: n.ID().String(),
	}

	for _, seedID := range n.seedPeerIDs() {
		if err := n.sendDeadReport(ctx, seedID, report); err != nil {
			klog.P2P.Debug().
				Str("seed", shortID(seedID)).
				Err(err).
				Msg("dead node report failed")
		}
	}
}

func (n *Node) sendDeadReport(ctx context.Context, seedID peer.ID, report DeadNodeReport) error {
	ctx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()

	stream, err := n.host.NewStream(ctx, seedID, DeadNodeProtocol)
	if err != nil {
		return fmt.Errorf("open deadnode stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetDeadline(time.Now().Add(registryTimeout))

	if err := json.NewEncoder(stream).Encode(&report); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	stream.CloseWrite()

	var ack DeadNodeAck
	if err := json.NewDecoder(io.LimitReader(stream, maxRegistryBytes)).Decode(&ack); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("registry rejected report")
	}
	return nil
}

// seedPeerIDs resolves the configured seed multiaddrs to peer IDs.
func (n *Node) seedPeerIDs() []peer.ID {
	var ids []peer.ID
	for _, addr := range n.config.Seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			continue
		}
		ids = append(ids, info.ID)
	}
	return ids
}
