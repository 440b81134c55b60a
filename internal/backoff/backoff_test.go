package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := p.delayWithRand(tt.attempt, 0); got != tt.want {
			t.Errorf("delay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayCappedAtMax(t *testing.T) {
	p := DefaultPolicy()
	if got := p.delayWithRand(20, 0.99); got != p.Max {
		t.Errorf("delay(attempt=20) = %v, want cap %v", got, p.Max)
	}
}

func TestDelayJitter(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1}

	low := p.delayWithRand(0, 0)
	high := p.delayWithRand(0, 0.999)
	if low != time.Second {
		t.Errorf("zero jitter delay = %v, want 1s", low)
	}
	if high <= low {
		t.Errorf("jittered delay %v not above base %v", high, low)
	}
	if high >= time.Second+110*time.Millisecond {
		t.Errorf("jittered delay %v exceeds 10%% band", high)
	}
}

func TestSleepCancelled(t *testing.T) {
	p := Policy{Initial: time.Hour, Max: time.Hour, Factor: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Sleep(ctx, 0)
	}()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Sleep returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after cancellation")
	}
}

func TestSleepCompletes(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}
	if err := p.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("Sleep returned %v", err)
	}
}
