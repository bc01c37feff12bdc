package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// syncReadTimeout is the max time to read a sync response.
	syncReadTimeout = 30 * time.Second

	// maxSyncResponseBytes limits sync response size (10 MB).
	maxSyncResponseBytes = 10 * 1024 * 1024

	// maxSyncBatch caps blocks per sync response.
	maxSyncBatch = 500
)

// SyncRequest asks a peer for blocks starting at a given height.
type SyncRequest struct {
	FromHeight uint64 `json:"from_height"`
	MaxBlocks  uint32 `json:"max_blocks"`
}

// SyncResponse contains blocks returned by a peer.
type SyncResponse struct {
	Blocks []*block.Block `json:"blocks"`
}

// Syncer handles chain synchronization with peers.
type Syncer struct {
	host host.Host
}

// NewSyncer creates a chain syncer attached to the given node.
func NewSyncer(node *Node) *Syncer {
	return &Syncer{host: node.host}
}

// RegisterHandler registers the sync stream handler on the host.
// The provider returns active-chain blocks for a height range.
func (s *Syncer) RegisterHandler(provider func(fromHeight uint64, max uint32) []*block.Block) {
	s.host.SetStreamHandler(SyncProtocol, func(stream network.Stream) {
		defer stream.Close()

		var req SyncRequest
		if err := json.NewDecoder(io.LimitReader(stream, maxSyncResponseBytes)).Decode(&req); err != nil {
			return
		}

		if req.MaxBlocks == 0 || req.MaxBlocks > maxSyncBatch {
			req.MaxBlocks = maxSyncBatch
		}

		blocks := provider(req.FromHeight, req.MaxBlocks)
		resp := SyncResponse{Blocks: blocks}
		json.NewEncoder(stream).Encode(&resp)
	})
}

// RequestBlocks asks a specific peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(ctx context.Context, peerID peer.ID, fromHeight uint64, maxBlocks uint32) ([]*block.Block, error) {
	stream, err := s.host.NewStream(ctx, peerID, SyncProtocol)
	if err != nil {
		return nil, fmt.Errorf("open sync stream: %w", err)
	}
	defer stream.Close()

	req := SyncRequest{FromHeight: fromHeight, MaxBlocks: maxBlocks}
	if err := json.NewEncoder(stream).Encode(&req); err != nil {
		return nil, fmt.Errorf("send sync request: %w", err)
	}

	// Signal we're done writing.
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(syncReadTimeout))

	var resp SyncResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxSyncResponseBytes)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read sync response: %w", err)
	}

	return resp.Blocks, nil
}
