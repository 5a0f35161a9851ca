package throttle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_PacesBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	// 201 operations at 100 ops per 500ms window must take at least two
	// full windows: the first op is free, the remaining 200 are spaced
	// 5ms apart.
	lim, err := New(100, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	var n int
	if err := lim.Each(context.Background(), 201, func(int) error {
		n++
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}
	elapsed := time.Since(start)

	if n != 201 {
		t.Fatalf("ran %d ops, want 201", n)
	}
	if elapsed < 1000*time.Millisecond {
		t.Errorf("batch finished too fast: %v", elapsed)
	}
	if elapsed > 1200*time.Millisecond {
		t.Errorf("batch too slow: %v", elapsed)
	}
}

func TestLimiter_FirstOpImmediate(t *testing.T) {
	lim, err := New(10, time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	if err := lim.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first op waited %v", elapsed)
	}
}

func TestLimiter_CancelStopsBatch(t *testing.T) {
	lim, err := New(1, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var n int
	err = lim.Each(ctx, 10, func(int) error {
		n++
		return nil
	})
	if err == nil {
		t.Fatal("Each should fail on cancelled context")
	}
	if n > 1 {
		t.Errorf("ran %d ops after cancellation", n)
	}
}

func TestLimiter_EachStopsOnError(t *testing.T) {
	lim, err := New(1000, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boom := errors.New("boom")
	var n int
	err = lim.Each(context.Background(), 10, func(i int) error {
		n++
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Each = %v, want boom", err)
	}
	if n != 4 {
		t.Errorf("ran %d ops, want 4", n)
	}
}

func TestNew_RejectsInvalidRate(t *testing.T) {
	for _, tc := range []struct {
		ops    int
		window time.Duration
	}{
		{0, time.Second},
		{-1, time.Second},
		{10, 0},
		{10, -time.Second},
	} {
		if _, err := New(tc.ops, tc.window); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("New(%d, %v) = %v, want ErrInvalidRate", tc.ops, tc.window, err)
		}
	}
}

func TestLimiter_NilIsUnlimited(t *testing.T) {
	var lim *Limiter
	if err := lim.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter Wait: %v", err)
	}
}
