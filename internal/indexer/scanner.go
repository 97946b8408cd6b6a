// Package indexer backfills the catalog by walking a source channel's
// message-ID space from the newest post down to 1 in fixed-size batches.
package indexer

import (
	"context"
	"time"

	"filmgate/internal/catalog"
	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

const (
	// DefaultBatchSize is how many message IDs are fetched per request.
	DefaultBatchSize = 100
	// batchPause keeps the walk well under the platform's fetch limits.
	batchPause = 1500 * time.Millisecond
	// floodMargin is added on top of a signaled rate-limit wait.
	floodMargin = 2 * time.Second
	// progressEvery is how many IDs are processed between progress
	// callbacks.
	progressEvery = 200
)

// Stats accumulates one scan's outcome.
type Stats struct {
	Saved         int
	AlreadyExists int
	Skipped       int
	FailedBatches int
}

// Progress is a snapshot handed to the caller while a scan runs; FromID
// and ToID bound the batch just processed.
type Progress struct {
	FromID int
	ToID   int
	Stats  Stats
}

// CatalogWriter is the slice of the store the scanner writes through.
type CatalogWriter interface {
	UpsertEntryIfAbsent(ctx context.Context, e catalog.Entry) (bool, error)
}

type Scanner struct {
	fetcher   transport.MessageFetcher
	writer    CatalogWriter
	batchSize int
	pause     time.Duration
	sleep     func(context.Context, time.Duration) error
	log       logx.Logger
}

func NewScanner(fetcher transport.MessageFetcher, writer CatalogWriter, log logx.Logger) *Scanner {
	return &Scanner{
		fetcher:   fetcher,
		writer:    writer,
		batchSize: DefaultBatchSize,
		pause:     batchPause,
		sleep:     sleepCtx,
		log:       log,
	}
}

// Scan walks chatID's history from its latest message ID down to 1 and
// upserts every indexable message. Per-batch failures are counted and
// skipped, never fatal; onProgress (optional) fires roughly every 200
// IDs. Scan returns early only on context cancellation or when the
// latest ID cannot be determined at all.
func (s *Scanner) Scan(ctx context.Context, chatID int64, onProgress func(Progress)) (Stats, error) {
	var stats Stats

	latest, err := s.fetcher.LatestMessageID(ctx, chatID)
	if err != nil {
		return stats, err
	}
	s.log.Info("channel scan started",
		logx.Int64("chat_id", chatID), logx.Int("latest_id", latest))

	sinceReport := 0
	for from := latest; from >= 1; from -= s.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		to := from - s.batchSize + 1
		if to < 1 {
			to = 1
		}
		ids := make([]int, 0, from-to+1)
		for id := from; id >= to; id-- {
			ids = append(ids, id)
		}
		sinceReport += len(ids)

		msgs, err := s.fetchBatch(ctx, chatID, ids)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.FailedBatches++
			s.log.Warn("batch fetch failed, skipping range",
				logx.Int("from", from), logx.Int("to", to), logx.Err(err))
			continue
		}

		for _, m := range msgs {
			entry, ok := catalog.FromMessage(m)
			if !ok {
				stats.Skipped++
				continue
			}
			inserted, err := s.writer.UpsertEntryIfAbsent(ctx, entry)
			if err != nil {
				s.log.Warn("entry save failed",
					logx.Int("message_id", m.ID), logx.Err(err))
				stats.Skipped++
				continue
			}
			if inserted {
				stats.Saved++
			} else {
				stats.AlreadyExists++
			}
		}

		if onProgress != nil && (sinceReport >= progressEvery || to == 1) {
			onProgress(Progress{FromID: from, ToID: to, Stats: stats})
			sinceReport = 0
		}
		if to > 1 {
			if err := s.sleep(ctx, s.pause); err != nil {
				return stats, err
			}
		}
	}

	s.log.Info("channel scan finished",
		logx.Int64("chat_id", chatID),
		logx.Int("saved", stats.Saved),
		logx.Int("already_exists", stats.AlreadyExists),
		logx.Int("skipped", stats.Skipped),
		logx.Int("failed_batches", stats.FailedBatches))
	return stats, nil
}

// fetchBatch fetches one ID range, honoring a single signaled rate-limit
// wait with a safety margin before retrying once.
func (s *Scanner) fetchBatch(ctx context.Context, chatID int64, ids []int) ([]transport.Message, error) {
	msgs, err := s.fetcher.FetchMessages(ctx, chatID, ids)
	if err == nil {
		return msgs, nil
	}
	wait, ok := transport.RetryDelay(err)
	if !ok {
		return nil, err
	}
	s.log.Warn("rate limited during scan", logx.Duration("wait", wait))
	if err := s.sleep(ctx, wait+floodMargin); err != nil {
		return nil, err
	}
	return s.fetcher.FetchMessages(ctx, chatID, ids)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
