package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

// heightReadTimeout is the max time to read a height response.
const heightReadTimeout = 5 * time.Second

// HeightResponse contains a peer's chain height and tip hash.
type HeightResponse struct {
	Height  uint64 `json:"height"`
	TipHash string `json:"tip_hash"`
}

// RegisterHeightHandler registers a stream handler that responds with the
// local chain height and tip hash.
func (s *Syncer) RegisterHeightHandler(heightFn func() (uint64, string)) {
	s.host.SetStreamHandler(HeightProtocol, func(stream network.Stream) {
		defer stream.Close()

		height, tipHash := heightFn()
		resp := HeightResponse{Height: height, TipHash: tipHash}
		json.NewEncoder(stream).Encode(&resp)
	})
}

// RequestHeight queries a peer for its chain height and tip hash.
func (s *Syncer) RequestHeight(ctx context.Context, peerID peer.ID) (*HeightResponse, error) {
	stream, err := s.host.NewStream(ctx, peerID, HeightProtocol)
	if err != nil {
		return nil, fmt.Errorf("open height stream: %w", err)
	}
	defer stream.Close()

	// The request is empty, opening the stream is the query.
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(heightReadTimeout))

	var resp HeightResponse
	if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read height response: %w", err)
	}

	return &resp, nil
}
