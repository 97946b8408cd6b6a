package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"filmgate/internal/verify"
)

// The tokens table implements verify.Store. created_at is stored as unix
// milliseconds so the notBefore comparison is a plain integer range scan.

func (s *Store) CreateToken(ctx context.Context, t verify.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens(token, user_id, chat_id, message_id, step, created_at)
		 VALUES(?,?,?,?,?,?)`,
		t.Value, t.UserID, t.Entry.ChatID, t.Entry.MessageID, int(t.Step), t.CreatedAt.UnixMilli())
	return err
}

func (s *Store) AdvanceToken(ctx context.Context, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET step = ? WHERE token = ?`, int(verify.StepAdvanced), value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) FindToken(ctx context.Context, value string, notBefore time.Time) (verify.Token, bool, error) {
	var (
		t       verify.Token
		step    int
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, chat_id, message_id, step, created_at
		 FROM tokens WHERE token = ? AND created_at >= ?`,
		value, notBefore.UnixMilli()).
		Scan(&t.Value, &t.UserID, &t.Entry.ChatID, &t.Entry.MessageID, &step, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return verify.Token{}, false, nil
	}
	if err != nil {
		return verify.Token{}, false, err
	}
	t.Step = verify.Step(step)
	t.CreatedAt = time.UnixMilli(created).UTC()
	return t, true, nil
}

func (s *Store) DeleteToken(ctx context.Context, value string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, value)
	return err
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
