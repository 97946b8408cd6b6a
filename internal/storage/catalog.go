package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"filmgate/internal/catalog"
	"filmgate/internal/transport"
)

const entryColumns = `chat_id, message_id, title, title_normalized, full_caption,
	year, language, view_count, thumbnail_ref, created_at`

func scanEntry(row interface{ Scan(...any) error }) (catalog.Entry, error) {
	var (
		e       catalog.Entry
		created string
	)
	err := row.Scan(
		&e.Key.ChatID, &e.Key.MessageID, &e.Title, &e.TitleNormalized, &e.FullCaption,
		&e.Year, &e.Language, &e.ViewCount, &e.ThumbnailRef, &created,
	)
	if err != nil {
		return catalog.Entry{}, err
	}
	if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		e.CreatedAt = t
	}
	return e, nil
}

// matchWhere builds the WHERE clause for a catalog.Match. Every word of
// the pattern must appear as a substring, so "avengers 720p" still hits
// "Avengers: Endgame (2019) [720p]". instr over lower-cased columns needs
// no LIKE escaping.
func matchWhere(m catalog.Match) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, w := range strings.Fields(strings.ToLower(m.Pattern)) {
		if m.NormalizedOnly {
			conds = append(conds, `instr(lower(title_normalized), ?) > 0`)
			args = append(args, w)
		} else {
			conds = append(conds, `(instr(lower(title), ?) > 0 OR instr(lower(title_normalized), ?) > 0)`)
			args = append(args, w, w)
		}
	}
	if m.Year > 0 {
		conds = append(conds, `year = ?`)
		args = append(args, m.Year)
	}
	if len(conds) == 0 {
		conds = append(conds, `1 = 1`)
	}
	return strings.Join(conds, " AND "), args
}

func (s *Store) FindEntry(ctx context.Context, key catalog.EntryKey) (catalog.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE chat_id = ? AND message_id = ?`,
		key.ChatID, key.MessageID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Entry{}, transport.ErrNotFound
	}
	return e, err
}

func (s *Store) SearchEntries(ctx context.Context, m catalog.Match, offset, limit int) ([]catalog.Entry, error) {
	where, args := matchWhere(m)
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE `+where+`
		 ORDER BY view_count DESC, chat_id, message_id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountEntries(ctx context.Context, m catalog.Match) (int, error) {
	where, args := matchWhere(m)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE `+where, args...).Scan(&n)
	return n, err
}

// AllEntries returns the whole catalog with lightweight columns populated
// (no captions). The fuzzy stage scans this.
func (s *Store) AllEntries(ctx context.Context) ([]catalog.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, message_id, title, title_normalized, language, view_count FROM entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		if err := rows.Scan(&e.Key.ChatID, &e.Key.MessageID, &e.Title, &e.TitleNormalized, &e.Language, &e.ViewCount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEntryIfAbsent inserts the entry unless its composite key already
// exists. Existing rows are left untouched so re-indexing is idempotent.
func (s *Store) UpsertEntryIfAbsent(ctx context.Context, e catalog.Entry) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries(`+entryColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(chat_id, message_id) DO NOTHING`,
		e.Key.ChatID, e.Key.MessageID, e.Title, e.TitleNormalized, e.FullCaption,
		e.Year, e.Language, e.ViewCount, e.ThumbnailRef, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) IncrementViews(ctx context.Context, key catalog.EntryKey) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entries SET view_count = view_count + 1 WHERE chat_id = ? AND message_id = ?`,
		key.ChatID, key.MessageID)
	return err
}

func (s *Store) DeleteEntriesByTitle(ctx context.Context, pattern string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE instr(lower(title), ?) > 0`,
		strings.ToLower(strings.TrimSpace(pattern)))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeleteAllEntries(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) TopEntriesByViews(ctx context.Context, n int) ([]catalog.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries ORDER BY view_count DESC, chat_id, message_id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountAllEntries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}
