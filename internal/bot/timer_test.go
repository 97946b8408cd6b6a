package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFires(t *testing.T) {
	t.Parallel()
	s := NewTimerService()
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule(time.Millisecond, func(context.Context) { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("pending %d after fire", s.Pending())
	}
}

func TestTimerCancel(t *testing.T) {
	t.Parallel()
	s := NewTimerService()
	defer s.Stop()

	var fired atomic.Bool
	id := s.Schedule(20*time.Millisecond, func(context.Context) { fired.Store(true) })
	s.Cancel(id)

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled job fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("pending %d after cancel", s.Pending())
	}
}

func TestTimerStopCancelsPending(t *testing.T) {
	t.Parallel()
	s := NewTimerService()

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		s.Schedule(30*time.Millisecond, func(context.Context) { fired.Add(1) })
	}
	s.Stop()

	time.Sleep(80 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("%d jobs fired after Stop", n)
	}
	if s.Schedule(time.Millisecond, func(context.Context) {}) != 0 {
		t.Fatal("stopped service accepted a job")
	}
}

func TestTimerStopWaitsForRunningJob(t *testing.T) {
	t.Parallel()
	s := NewTimerService()

	started := make(chan struct{})
	var done atomic.Bool
	s.Schedule(time.Millisecond, func(context.Context) {
		close(started)
		time.Sleep(30 * time.Millisecond)
		done.Store(true)
	})

	<-started
	s.Stop()
	if !done.Load() {
		t.Fatal("Stop returned before the running job finished")
	}
}
