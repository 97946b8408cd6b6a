// Package broadcast fans one message out to a subscriber set with
// bounded concurrency, per-recipient retry, unreachable-subscriber
// pruning and live progress reporting.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

const (
	// DefaultConcurrency caps in-flight sends regardless of audience size.
	DefaultConcurrency = 20
	// DefaultRatePerSec stays under the platform's bulk-message ceiling.
	DefaultRatePerSec = 25
	// reportInterval is how often the progress reporter samples counters.
	reportInterval = 5 * time.Second
)

// Cursor streams the recipient set without holding it all in memory.
type Cursor interface {
	Next() (int64, bool)
	Err() error
	Close() error
}

// SendFunc delivers the broadcast payload to one recipient.
type SendFunc func(ctx context.Context, userID int64) error

// Remover deletes a recipient who can no longer be reached.
type Remover func(ctx context.Context, userID int64) error

// Outcome is the terminal tally of one broadcast run.
type Outcome struct {
	JobID   string
	Total   int64
	Success int64
	Failed  int64
	Removed int64
	Elapsed time.Duration
}

// Progress is one reporter sample.
type Progress struct {
	JobID   string
	Done    int64
	Total   int64
	Success int64
	Failed  int64
	Removed int64
	Elapsed time.Duration
	Rate    float64 // completed sends per second
	ETA     time.Duration
}

// Reporter renders a progress sample. final is set exactly once, after
// every send has resolved. Render errors are the reporter's own problem;
// the engine ignores them.
type Reporter func(ctx context.Context, p Progress, final bool)

type Config struct {
	Concurrency int
	RatePerSec  int
}

type Engine struct {
	concurrency int
	limiter     *rate.Limiter
	log         logx.Logger
}

func NewEngine(cfg Config, log logx.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	return &Engine{
		concurrency: cfg.Concurrency,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:         log,
	}
}

// Run drains the cursor, delivering to each recipient via send. Each send
// is retried exactly once after a signaled rate-limit wait; unreachable
// recipients are handed to remove and counted separately. reporter and
// remove may be nil. Run returns once every dispatched send has resolved
// and the final report has been rendered.
func (e *Engine) Run(ctx context.Context, cur Cursor, send SendFunc, remove Remover, reporter Reporter) (Outcome, error) {
	jobID := uuid.NewString()
	started := time.Now()
	e.log.Info("broadcast started", logx.String("job_id", jobID))

	var (
		total, success, failed, removed atomic.Int64
		wg                              sync.WaitGroup
	)
	gate := make(chan struct{}, e.concurrency)

	reportCtx, stopReporter := context.WithCancel(ctx)
	var reporterDone chan struct{}
	if reporter != nil {
		reporterDone = make(chan struct{})
		go func() {
			defer close(reporterDone)
			t := time.NewTicker(reportInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					reporter(ctx, e.snapshot(jobID, started, &total, &success, &failed, &removed), false)
				case <-reportCtx.Done():
					return
				}
			}
		}()
	}

	for {
		userID, ok := cur.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
		total.Add(1)

		gate <- struct{}{}
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			defer func() { <-gate }()

			// Dispatched sends run to completion even if ctx is
			// cancelled mid-broadcast.
			switch e.deliver(ctx, send, userID) {
			case deliverOK:
				success.Add(1)
			case deliverUnreachable:
				removed.Add(1)
				if remove != nil {
					if err := remove(context.WithoutCancel(ctx), userID); err != nil {
						e.log.Warn("unreachable recipient not removed",
							logx.Int64("user_id", userID), logx.Err(err))
					}
				}
			default:
				failed.Add(1)
			}
		}(userID)
	}
	wg.Wait()

	stopReporter()
	if reporterDone != nil {
		<-reporterDone
	}

	out := Outcome{
		JobID:   jobID,
		Total:   total.Load(),
		Success: success.Load(),
		Failed:  failed.Load(),
		Removed: removed.Load(),
		Elapsed: time.Since(started),
	}
	if reporter != nil {
		reporter(ctx, e.snapshot(jobID, started, &total, &success, &failed, &removed), true)
	}
	e.log.Info("broadcast finished",
		logx.String("job_id", jobID),
		logx.Int64("total", out.Total),
		logx.Int64("success", out.Success),
		logx.Int64("failed", out.Failed),
		logx.Int64("removed", out.Removed),
		logx.Duration("elapsed", out.Elapsed))

	if err := cur.Err(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

type deliverResult int

const (
	deliverOK deliverResult = iota
	deliverFailed
	deliverUnreachable
)

func (e *Engine) deliver(ctx context.Context, send SendFunc, userID int64) deliverResult {
	_ = e.limiter.Wait(ctx)
	err := send(ctx, userID)
	if wait, ok := transport.RetryDelay(err); ok {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
		err = send(ctx, userID)
	}
	switch {
	case err == nil:
		return deliverOK
	case errors.Is(err, transport.ErrRecipientUnreachable):
		return deliverUnreachable
	default:
		e.log.Debug("send failed", logx.Int64("user_id", userID), logx.Err(err))
		return deliverFailed
	}
}

func (e *Engine) snapshot(jobID string, started time.Time, total, success, failed, removed *atomic.Int64) Progress {
	s, f, r := success.Load(), failed.Load(), removed.Load()
	done := s + f + r
	elapsed := time.Since(started)
	p := Progress{
		JobID:   jobID,
		Done:    done,
		Total:   total.Load(),
		Success: s,
		Failed:  f,
		Removed: r,
		Elapsed: elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 && done > 0 {
		p.Rate = float64(done) / secs
		if left := p.Total - done; left > 0 {
			p.ETA = time.Duration(float64(left)/p.Rate) * time.Second
		}
	}
	return p
}
