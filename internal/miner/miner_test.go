package miner

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/petronet-labs/petronet-chain/pkg/types"
)

func testMiner(t *testing.T, hashPower float64, interarrival time.Duration) *Miner {
	t.Helper()
	m, err := New(hashPower, interarrival, types.Address{0x01})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewRejectsBadParams(t *testing.T) {
	tests := []struct {
		name         string
		hashPower    float64
		interarrival time.Duration
		wantErr      error
	}{
		{"zero hashpower", 0, 15 * time.Second, ErrZeroHashPower},
		{"negative hashpower", -5, 15 * time.Second, ErrZeroHashPower},
		{"zero interarrival", 20, 0, ErrZeroInterarrival},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.hashPower, tt.interarrival, types.Address{})
			if err != tt.wantErr {
				t.Errorf("New() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLambda(t *testing.T) {
	// 20% hash power at a 15s interarrival: 0.2/15 events per second.
	m := testMiner(t, 20, 15*time.Second)
	want := 0.2 / 15
	if got := m.Lambda(); math.Abs(got-want) > 1e-12 {
		t.Errorf("Lambda() = %v, want %v", got, want)
	}
}

func TestLambdaMonotonicInHashPower(t *testing.T) {
	low := testMiner(t, 10, 15*time.Second)
	high := testMiner(t, 40, 15*time.Second)
	if low.Lambda() >= high.Lambda() {
		t.Errorf("Lambda not monotonic: %v%% -> %v, %v%% -> %v",
			10.0, low.Lambda(), 40.0, high.Lambda())
	}
}

func TestSampleWaitPositive(t *testing.T) {
	m := testMiner(t, 20, 15*time.Second)
	for i := 0; i < 100; i++ {
		if tau := m.SampleWait(); tau <= 0 {
			t.Fatalf("SampleWait() = %v, want > 0", tau)
		}
	}
}

func TestSampleWaitMean(t *testing.T) {
	m := testMiner(t, 20, 15*time.Second)

	const n = 5000
	var total time.Duration
	for i := 0; i < n; i++ {
		total += m.SampleWait()
	}
	mean := total.Seconds() / n

	// E[tau] = 1/lambda = 75s; allow a wide band for sampling noise.
	want := 1 / m.Lambda()
	if mean < want*0.85 || mean > want*1.15 {
		t.Errorf("empirical mean %.1fs outside [%.1f, %.1f]", mean, want*0.85, want*1.15)
	}
}

func TestMineFires(t *testing.T) {
	// A huge rate keeps the sampled waits tiny so the test stays fast.
	m := testMiner(t, 100, time.Millisecond)

	if outcome := m.Mine(context.Background()); outcome != Fired {
		t.Fatalf("Mine() = %v, want Fired", outcome)
	}
	draw := m.LastDraw()
	if draw.Outcome != Fired {
		t.Errorf("LastDraw().Outcome = %v, want Fired", draw.Outcome)
	}
	if draw.Tau <= 0 {
		t.Errorf("LastDraw().Tau = %v, want > 0", draw.Tau)
	}
}

func TestMineAborts(t *testing.T) {
	// A tiny rate makes the wait effectively infinite.
	m := testMiner(t, 0.0001, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() {
		done <- m.Mine(ctx)
	}()

	cancel()
	select {
	case outcome := <-done:
		if outcome != Aborted {
			t.Fatalf("Mine() = %v, want Aborted", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Mine did not return after cancel")
	}
	if draw := m.LastDraw(); draw.Outcome != Aborted {
		t.Errorf("LastDraw().Outcome = %v, want Aborted", draw.Outcome)
	}
}

func TestMineFreshDrawAfterAbort(t *testing.T) {
	m := testMiner(t, 100, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Mine(ctx)
	first := m.LastDraw()

	m.Mine(context.Background())
	second := m.LastDraw()

	if first.Tau == second.Tau {
		t.Error("consecutive rounds reused the same sampled wait")
	}
}

func TestBuildBlock(t *testing.T) {
	producer := types.Address{0xbe, 0xef}
	m, err := New(20, 15*time.Second, producer)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prev := types.Hash{0x01}
	b := m.BuildBlock(prev, 7, nil)
	if b.Header.Height != 7 {
		t.Errorf("Height = %d, want 7", b.Header.Height)
	}
	if b.Header.PrevHash != prev {
		t.Errorf("PrevHash = %s, want %s", b.Header.PrevHash, prev)
	}
	if b.Header.Producer != producer {
		t.Errorf("Producer = %s, want %s", b.Header.Producer, producer)
	}
}
