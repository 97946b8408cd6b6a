package search

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTokenSetRatio(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b string
		min  int
		max  int
	}{
		{"identical", "avengers endgame", "avengers endgame", 100, 100},
		{"reordered", "endgame avengers", "avengers endgame", 100, 100},
		{"subset", "avengers", "avengers endgame 2019", 100, 100},
		{"typo", "avngers", "avengers", 80, 99},
		{"unrelated", "interstellar", "titanic", 0, 60},
		{"empty query", "", "avengers", 0, 0},
		{"both empty", "", "", 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TokenSetRatio(tc.a, tc.b)
			if got < tc.min || got > tc.max {
				t.Fatalf("TokenSetRatio(%q, %q) = %d, want [%d, %d]", tc.a, tc.b, got, tc.min, tc.max)
			}
		})
	}
}

func TestTokenSetRatioSymmetric(t *testing.T) {
	t.Parallel()
	pairs := [][2]string{
		{"avngers", "avengers endgame"},
		{"dark knight", "the dark knight rises"},
		{"x", "y"},
	}
	for _, p := range pairs {
		if a, b := TokenSetRatio(p[0], p[1]), TokenSetRatio(p[1], p[0]); a != b {
			t.Fatalf("asymmetric: %q vs %q: %d != %d", p[0], p[1], a, b)
		}
	}
}

func TestFuzzyPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()
	const workers = 3
	pool := NewFuzzyPool(workers)
	defer pool.Stop()

	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		wg       sync.WaitGroup
	)
	gate := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), func() {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-gate
				inFlight.Add(-1)
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	close(gate)
	wg.Wait()
	if p := peak.Load(); p > workers {
		t.Fatalf("peak concurrency %d exceeds %d workers", p, workers)
	}
}

func TestFuzzyPoolHonorsContext(t *testing.T) {
	t.Parallel()
	pool := NewFuzzyPool(1)
	defer pool.Stop()

	block := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() { <-block })
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Do(ctx, func() {}); err == nil {
		t.Fatal("Do with cancelled context returned nil")
	}
	close(block)
}
