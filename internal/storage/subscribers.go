package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertSubscriber records a user the first time /start is seen; repeats
// are no-ops so joined_at and notify survive.
func (s *Store) UpsertSubscriber(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(user_id, joined_at) VALUES(?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) SetLastQuery(ctx context.Context, userID int64, query string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET last_query = ? WHERE user_id = ?`, query, userID)
	return err
}

func (s *Store) LastQuery(ctx context.Context, userID int64) (string, error) {
	var q string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_query FROM subscribers WHERE user_id = ?`, userID).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return q, err
}

func (s *Store) SetNotify(ctx context.Context, userID int64, on bool) error {
	v := 0
	if on {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET notify = ? WHERE user_id = ?`, v, userID)
	return err
}

// DeleteSubscriber removes a user who blocked the bot or deleted their
// account. Broadcast feeds it through the unreachable-recipient path.
func (s *Store) DeleteSubscriber(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE user_id = ?`, userID)
	return err
}

func (s *Store) CountSubscribers(ctx context.Context, notifyOnly bool) (int, error) {
	q := `SELECT COUNT(*) FROM subscribers`
	if notifyOnly {
		q += ` WHERE notify = 1`
	}
	var n int
	err := s.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

// IDCursor streams int64 ids off a result set without materializing the
// whole audience in memory.
type IDCursor struct {
	rows *sql.Rows
	err  error
}

func (c *IDCursor) Next() (int64, bool) {
	if c.err != nil || !c.rows.Next() {
		return 0, false
	}
	var id int64
	if err := c.rows.Scan(&id); err != nil {
		c.err = err
		return 0, false
	}
	return id, true
}

func (c *IDCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *IDCursor) Close() error { return c.rows.Close() }

// SubscriberIDs returns a cursor over broadcast recipients. With notifyOnly
// set, users who opted out of notifications are excluded.
func (s *Store) SubscriberIDs(ctx context.Context, notifyOnly bool) (*IDCursor, error) {
	q := `SELECT user_id FROM subscribers`
	if notifyOnly {
		q += ` WHERE notify = 1`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return &IDCursor{rows: rows}, nil
}
