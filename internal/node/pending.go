package node

import (
	"sync"

	"github.com/petronet-labs/petronet-chain/pkg/block"
)

// pendingQueue buffers blocks that arrive while the node is still
// syncing its chain. Unbounded; arrival order is preserved so the
// drain applies blocks exactly as they came in.
type pendingQueue struct {
	mu     sync.Mutex
	blocks []*block.Block
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

// Push appends a block in arrival order.
func (q *pendingQueue) Push(blk *block.Block) {
	q.mu.Lock()
	q.blocks = append(q.blocks, blk)
	q.mu.Unlock()
}

// Pop removes and returns the oldest buffered block, or nil when empty.
func (q *pendingQueue) Pop() *block.Block {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.blocks) == 0 {
		return nil
	}
	blk := q.blocks[0]
	q.blocks = q.blocks[1:]
	return blk
}

// Len returns the number of buffered blocks.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}
