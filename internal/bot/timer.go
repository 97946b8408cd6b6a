package bot

import (
	"context"
	"sync"
	"time"
)

// TimerService owns the bot's delayed jobs (message cleanup, expiring
// notices) so shutdown can cancel them deterministically instead of
// leaking detached goroutines.
type TimerService struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func NewTimerService() *TimerService {
	return &TimerService{pending: make(map[int64]*time.Timer)}
}

// Schedule runs fn after d unless cancelled or the service is stopped
// first. The job runs on a background context: it outlives the request
// that scheduled it. Returns an id usable with Cancel; 0 means the
// service is already stopped and nothing was scheduled.
func (s *TimerService) Schedule(d time.Duration, fn func(ctx context.Context)) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = time.AfterFunc(d, func() { s.fire(id, fn) })
	return id
}

func (s *TimerService) fire(id int64, fn func(ctx context.Context)) {
	s.mu.Lock()
	_, live := s.pending[id]
	delete(s.pending, id)
	if !live || s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	fn(context.Background())
}

// Cancel drops a scheduled job. A job that already fired is gone and
// Cancel is a no-op.
func (s *TimerService) Cancel(id int64) {
	s.mu.Lock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

// Pending reports the number of not-yet-fired jobs.
func (s *TimerService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending job and waits for jobs already running.
func (s *TimerService) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
