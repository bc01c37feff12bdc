// Package miner implements block production for the Petronet chain.
//
// Mining is simulated proof-of-work: instead of hashing, each round
// draws a wait time from an exponential distribution whose rate is
// proportional to the node's configured hash power. A round that runs
// its timer to completion wins the right to produce a block; a round
// interrupted by a better block arriving from the network is aborted.
package miner

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/petronet-labs/petronet-chain/pkg/block"
	"github.com/petronet-labs/petronet-chain/pkg/tx"
	"github.com/petronet-labs/petronet-chain/pkg/types"
)

var (
	ErrZeroHashPower    = errors.New("hash power must be > 0")
	ErrZeroInterarrival = errors.New("interarrival must be > 0")
)

// Outcome reports how a mining round ended.
type Outcome int

const (
	// Fired means the exponential timer ran to completion and the
	// node may produce a block.
	Fired Outcome = iota
	// Aborted means the round was cancelled before the timer fired.
	Aborted
)

func (o Outcome) String() string {
	if o == Fired {
		return "fired"
	}
	return "aborted"
}

// Draw records the parameters and result of one mining round.
type Draw struct {
	Lambda  float64       // rate used for the round (events per second)
	Tau     time.Duration // sampled wait time
	Outcome Outcome
}

// Miner runs simulated proof-of-work rounds and assembles blocks.
type Miner struct {
	hashPower    float64 // percent of the reference rate, (0, 100]
	interarrival time.Duration
	producer     types.Address

	mu   sync.Mutex
	rng  *rand.Rand
	last Draw
}

// New creates a miner. hashPower is a percentage of the network
// reference rate and interarrival is the target time between blocks
// for a node holding 100% of it.
func New(hashPower float64, interarrival time.Duration, producer types.Address) (*Miner, error) {
	if hashPower <= 0 {
		return nil, ErrZeroHashPower
	}
	if interarrival <= 0 {
		return nil, ErrZeroInterarrival
	}
	return &Miner{
		hashPower:    hashPower,
		interarrival: interarrival,
		producer:     producer,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Lambda returns the exponential rate in events per second. A node
// with 20% hash power and a 15s interarrival mines at 0.2/15 per second,
// an expected wait of 75s per round.
func (m *Miner) Lambda() float64 {
	return m.hashPower * (1 / m.interarrival.Seconds()) / 100
}

// SampleWait draws one wait time from the exponential distribution.
func (m *Miner) SampleWait() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleLocked()
}

func (m *Miner) sampleLocked() time.Duration {
	secs := m.rng.ExpFloat64() / m.Lambda()
	return time.Duration(secs * float64(time.Second))
}

// Mine runs one round: it draws a fresh wait time and blocks until
// either the timer fires or ctx is cancelled. Each call draws anew,
// which the memorylessness of the exponential makes equivalent to
// resuming an interrupted round.
func (m *Miner) Mine(ctx context.Context) Outcome {
	m.mu.Lock()
	tau := m.sampleLocked()
	m.last = Draw{Lambda: m.Lambda(), Tau: tau}
	m.mu.Unlock()

	timer := time.NewTimer(tau)
	defer timer.Stop()

	var outcome Outcome
	select {
	case <-timer.C:
		outcome = Fired
	case <-ctx.Done():
		outcome = Aborted
	}

	m.mu.Lock()
	m.last.Outcome = outcome
	m.mu.Unlock()
	return outcome
}

// LastDraw returns the parameters of the most recent mining round.
func (m *Miner) LastDraw() Draw {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// BuildBlock assembles a block extending the given tip with the
// reserved transactions. The caller owns transaction reservation and
// must commit or release them depending on whether the block lands.
func (m *Miner) BuildBlock(prevHash types.Hash, height uint64, txs []*tx.Transaction) *block.Block {
	m.mu.Lock()
	nonce := m.rng.Uint64()
	m.mu.Unlock()
	return block.NewBlock(prevHash, height, m.producer, txs, nonce)
}
