package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

type sliceCursor struct {
	ids []int64
	pos int
	err error
}

func (c *sliceCursor) Next() (int64, bool) {
	if c.pos >= len(c.ids) {
		return 0, false
	}
	id := c.ids[c.pos]
	c.pos++
	return id, true
}

func (c *sliceCursor) Err() error   { return c.err }
func (c *sliceCursor) Close() error { return nil }

func idRange(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func testEngine(concurrency int) *Engine {
	return NewEngine(Config{Concurrency: concurrency, RatePerSec: 100000}, logx.Nop())
}

func TestRunCountsAddUp(t *testing.T) {
	t.Parallel()
	const n = 200
	e := testEngine(20)

	// Every 7th recipient is unreachable, every 11th fails outright.
	var removedIDs sync.Map
	send := func(_ context.Context, id int64) error {
		switch {
		case id%7 == 0:
			return transport.ErrRecipientUnreachable
		case id%11 == 0:
			return errors.New("send rejected")
		}
		return nil
	}
	remove := func(_ context.Context, id int64) error {
		removedIDs.Store(id, true)
		return nil
	}

	out, err := e.Run(context.Background(), &sliceCursor{ids: idRange(n)}, send, remove, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Total != n {
		t.Fatalf("total %d, want %d", out.Total, n)
	}
	if got := out.Success + out.Failed + out.Removed; got != n {
		t.Fatalf("success+failed+removed = %d, want %d", got, n)
	}
	var removedCount int64
	removedIDs.Range(func(any, any) bool { removedCount++; return true })
	if removedCount != out.Removed {
		t.Fatalf("remover saw %d ids, outcome says %d", removedCount, out.Removed)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()
	const maxInFlight = 5
	e := testEngine(maxInFlight)

	var inFlight, peak atomic.Int32
	send := func(context.Context, int64) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return nil
	}

	out, err := e.Run(context.Background(), &sliceCursor{ids: idRange(100)}, send, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Success != 100 {
		t.Fatalf("success %d", out.Success)
	}
	if p := peak.Load(); p > maxInFlight {
		t.Fatalf("peak in-flight %d exceeds cap %d", p, maxInFlight)
	}
}

func TestRunRetriesOnceAfterRateLimit(t *testing.T) {
	t.Parallel()
	e := testEngine(1)

	var calls atomic.Int32
	send := func(context.Context, int64) error {
		if calls.Add(1) == 1 {
			return &transport.RateLimitedError{RetryAfter: time.Millisecond}
		}
		return nil
	}

	out, err := e.Run(context.Background(), &sliceCursor{ids: []int64{1}}, send, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Success != 1 || out.Failed != 0 {
		t.Fatalf("outcome %+v", out)
	}
	if calls.Load() != 2 {
		t.Fatalf("send called %d times, want 2", calls.Load())
	}
}

func TestRunSecondRateLimitCountsFailed(t *testing.T) {
	t.Parallel()
	e := testEngine(1)

	send := func(context.Context, int64) error {
		return &transport.RateLimitedError{RetryAfter: time.Millisecond}
	}

	out, err := e.Run(context.Background(), &sliceCursor{ids: []int64{1}}, send, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Failed != 1 || out.Success != 0 {
		t.Fatalf("outcome %+v", out)
	}
}

func TestRunFinalReportExactlyOnce(t *testing.T) {
	t.Parallel()
	e := testEngine(10)

	var (
		mu     sync.Mutex
		finals int
		last   Progress
	)
	reporter := func(_ context.Context, p Progress, final bool) {
		mu.Lock()
		defer mu.Unlock()
		if final {
			finals++
			last = p
		}
	}

	out, err := e.Run(context.Background(), &sliceCursor{ids: idRange(50)}, func(context.Context, int64) error {
		return nil
	}, nil, reporter)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if finals != 1 {
		t.Fatalf("final report rendered %d times", finals)
	}
	if last.Done != out.Total || last.Done != 50 {
		t.Fatalf("final progress %+v", last)
	}
	if last.JobID != out.JobID || last.JobID == "" {
		t.Fatalf("job id mismatch: %q vs %q", last.JobID, out.JobID)
	}
}

func TestRunSurfacesCursorError(t *testing.T) {
	t.Parallel()
	e := testEngine(2)
	cur := &sliceCursor{ids: idRange(3), err: errors.New("cursor broke")}

	_, err := e.Run(context.Background(), cur, func(context.Context, int64) error { return nil }, nil, nil)
	if err == nil || err.Error() != "cursor broke" {
		t.Fatalf("got %v, want cursor error", err)
	}
}
