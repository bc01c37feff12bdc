package p2p

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// newTestLiveness builds a monitor with an injected ping function and
// a fixed peer set, so no libp2p host is needed.
func newTestLiveness(t *testing.T, threshold int, peers []peer.ID, ping func(peer.ID) error) (*Liveness, *deadRecorder) {
	t.Helper()
	rec := &deadRecorder{}
	l := &Liveness{
		interval:  time.Second,
		threshold: threshold,
		misses:    make(map[peer.ID]int),
		peersFn:   func() []peer.ID { return peers },
		onDead:    rec.record,
	}
	l.pingFn = func(_ context.Context, id peer.ID) error { return ping(id) }
	return l, rec
}

type deadRecorder struct {
	mu   sync.Mutex
	dead []peer.ID
}

func (r *deadRecorder) record(id peer.ID) {
	r.mu.Lock()
	r.dead = append(r.dead, id)
	r.mu.Unlock()
}

func (r *deadRecorder) reports() []peer.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peer.ID(nil), r.dead...)
}

func TestLivenessThreeMissesOneReport(t *testing.T) {
	alive := peer.ID("alive-peer")
	silent := peer.ID("silent-peer")
	errDown := errors.New("peer unreachable")

	l, rec := newTestLiveness(t, 3, []peer.ID{alive, silent}, func(id peer.ID) error {
		if id == silent {
			return errDown
		}
		return nil
	})

	ctx := context.Background()
	for round := 1; round <= 3; round++ {
		l.pingRound(ctx)
		if round < 3 {
			if got := l.Misses(silent); got != round {
				t.Fatalf("after round %d: misses = %d, want %d", round, got, round)
			}
			if len(rec.reports()) != 0 {
				t.Fatalf("after round %d: dead report issued before threshold", round)
			}
		}
	}

	reports := rec.reports()
	if len(reports) != 1 || reports[0] != silent {
		t.Fatalf("dead reports = %v, want exactly one for %s", reports, silent)
	}
	if got := l.Misses(alive); got != 0 {
		t.Fatalf("responsive peer has %d misses, want 0", got)
	}
	// Counter cleared after the report: the next silence spell starts over.
	if got := l.Misses(silent); got != 0 {
		t.Fatalf("miss count after report = %d, want 0", got)
	}
}

func TestLivenessPongResetsMissCount(t *testing.T) {
	flaky := peer.ID("flaky-peer")
	errDown := errors.New("peer unreachable")

	down := true
	l, rec := newTestLiveness(t, 3, []peer.ID{flaky}, func(peer.ID) error {
		if down {
			return errDown
		}
		return nil
	})

	ctx := context.Background()

	// Two misses, then a recovery.
	l.pingRound(ctx)
	l.pingRound(ctx)
	if got := l.Misses(flaky); got != 2 {
		t.Fatalf("misses = %d, want 2", got)
	}

	down = false
	l.pingRound(ctx)
	if got := l.Misses(flaky); got != 0 {
		t.Fatalf("misses after pong = %d, want 0", got)
	}

	// Two more misses must not cross the threshold: the count restarted.
	down = true
	l.pingRound(ctx)
	l.pingRound(ctx)
	if len(rec.reports()) != 0 {
		t.Fatalf("dead report issued despite reset, reports = %v", rec.reports())
	}
}

func TestLivenessStalledPeerDoesNotBlockRound(t *testing.T) {
	fast := peer.ID("fast-peer")
	stalled := peer.ID("stalled-peer")

	release := make(chan struct{})
	l, _ := newTestLiveness(t, 3, []peer.ID{fast, stalled}, nil)
	l.pingFn = func(ctx context.Context, id peer.ID) error {
		if id == stalled {
			// Hang until the probe context gives up.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-release:
				return nil
			}
		}
		// The fast peer misses too, which makes its probe completion
		// observable through the miss counter.
		return errors.New("peer unreachable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.pingRound(ctx)
		close(done)
	}()

	// The fast peer's result lands while the stalled probe is pending.
	deadline := time.After(2 * time.Second)
	for l.Misses(fast) != 1 {
		select {
		case <-deadline:
			t.Fatal("fast peer result not recorded while slow probe pending")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ping round did not finish after cancellation")
	}

	if got := l.Misses(stalled); got != 1 {
		t.Fatalf("stalled peer misses = %d, want 1", got)
	}
}
