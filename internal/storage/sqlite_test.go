package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"filmgate/internal/catalog"
	"filmgate/internal/transport"
	"filmgate/internal/verify"
	"filmgate/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedEntry(t *testing.T, st *Store, msgID int, title string, year, views int) catalog.Entry {
	t.Helper()
	e := catalog.Entry{
		Key:             catalog.EntryKey{ChatID: -100500, MessageID: msgID},
		Title:           title,
		TitleNormalized: catalog.Normalize(title),
		FullCaption:     title,
		Year:            year,
		ViewCount:       int64(views),
		CreatedAt:       time.Now().UTC(),
	}
	inserted, err := st.UpsertEntryIfAbsent(context.Background(), e)
	if err != nil {
		t.Fatalf("UpsertEntryIfAbsent: %v", err)
	}
	if !inserted {
		t.Fatalf("entry %d not inserted", msgID)
	}
	return e
}

func TestEntryUpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	e := seedEntry(t, st, 1, "Avengers Endgame 2019 720p", 2019, 0)

	inserted, err := st.UpsertEntryIfAbsent(ctx, e)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Fatal("duplicate key reported as inserted")
	}

	n, err := st.CountAllEntries(ctx)
	if err != nil {
		t.Fatalf("CountAllEntries: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d entries, want 1", n)
	}
}

func TestSearchEntriesRankingAndYear(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	seedEntry(t, st, 1, "Avengers Endgame 2019 720p", 2019, 3)
	seedEntry(t, st, 2, "Avengers Infinity War 2018 1080p", 2018, 9)
	seedEntry(t, st, 3, "Interstellar 2014 BluRay", 2014, 5)

	got, err := st.SearchEntries(ctx, catalog.Match{Pattern: "avengers"}, 0, 10)
	if err != nil {
		t.Fatalf("SearchEntries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Key.MessageID != 2 || got[1].Key.MessageID != 1 {
		t.Fatalf("results not ordered by views: %v, %v", got[0].Key, got[1].Key)
	}

	got, err = st.SearchEntries(ctx, catalog.Match{Pattern: "avengers", Year: 2019}, 0, 10)
	if err != nil {
		t.Fatalf("SearchEntries year: %v", err)
	}
	if len(got) != 1 || got[0].Key.MessageID != 1 {
		t.Fatalf("year filter results: %+v", got)
	}

	n, err := st.CountEntries(ctx, catalog.Match{Pattern: "avengers"})
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if n != 2 {
		t.Fatalf("count %d, want 2", n)
	}
}

func TestFindEntryNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	_, err := st.FindEntry(context.Background(), catalog.EntryKey{ChatID: 1, MessageID: 1})
	if !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestIncrementViews(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	e := seedEntry(t, st, 7, "Dune Part Two 2024", 2024, 0)
	for i := 0; i < 3; i++ {
		if err := st.IncrementViews(ctx, e.Key); err != nil {
			t.Fatalf("IncrementViews: %v", err)
		}
	}
	got, err := st.FindEntry(ctx, e.Key)
	if err != nil {
		t.Fatalf("FindEntry: %v", err)
	}
	if got.ViewCount != 3 {
		t.Fatalf("views %d, want 3", got.ViewCount)
	}
}

func TestDeleteEntriesByTitle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	seedEntry(t, st, 1, "Old Movie 2001", 2001, 0)
	seedEntry(t, st, 2, "Old Movie Sequel 2003", 2003, 0)
	seedEntry(t, st, 3, "Unrelated 2020", 2020, 0)

	n, err := st.DeleteEntriesByTitle(ctx, "old movie")
	if err != nil {
		t.Fatalf("DeleteEntriesByTitle: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}

	left, err := st.CountAllEntries(ctx)
	if err != nil {
		t.Fatalf("CountAllEntries: %v", err)
	}
	if left != 1 {
		t.Fatalf("%d entries remain, want 1", left)
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{10, 11, 12} {
		if err := st.UpsertSubscriber(ctx, id); err != nil {
			t.Fatalf("UpsertSubscriber: %v", err)
		}
	}
	// Repeat upsert must not duplicate.
	if err := st.UpsertSubscriber(ctx, 10); err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}
	if err := st.SetNotify(ctx, 11, false); err != nil {
		t.Fatalf("SetNotify: %v", err)
	}

	all, err := st.CountSubscribers(ctx, false)
	if err != nil {
		t.Fatalf("CountSubscribers: %v", err)
	}
	if all != 3 {
		t.Fatalf("count %d, want 3", all)
	}
	notify, err := st.CountSubscribers(ctx, true)
	if err != nil {
		t.Fatalf("CountSubscribers notify: %v", err)
	}
	if notify != 2 {
		t.Fatalf("notify count %d, want 2", notify)
	}

	cur, err := st.SubscriberIDs(ctx, true)
	if err != nil {
		t.Fatalf("SubscriberIDs: %v", err)
	}
	defer cur.Close()
	var ids []int64
	for {
		id, ok := cur.Next()
		if !ok {
			break
		}
		ids = append(ids, id)
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 12 {
		t.Fatalf("cursor ids %v", ids)
	}

	if err := st.SetLastQuery(ctx, 10, "avengers"); err != nil {
		t.Fatalf("SetLastQuery: %v", err)
	}
	q, err := st.LastQuery(ctx, 10)
	if err != nil || q != "avengers" {
		t.Fatalf("LastQuery = %q, %v", q, err)
	}
	if q, err := st.LastQuery(ctx, 999); err != nil || q != "" {
		t.Fatalf("LastQuery unknown = %q, %v", q, err)
	}
}

func TestTokenStore(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tok := verify.Token{
		Value:     "abc123",
		UserID:    42,
		Entry:     catalog.EntryKey{ChatID: -1, MessageID: 9},
		Step:      verify.StepCreated,
		CreatedAt: now,
	}
	if err := st.CreateToken(ctx, tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	got, ok, err := st.FindToken(ctx, "abc123", now.Add(-time.Minute))
	if err != nil || !ok {
		t.Fatalf("FindToken: ok=%v err=%v", ok, err)
	}
	if got.UserID != 42 || got.Entry != tok.Entry || got.Step != verify.StepCreated {
		t.Fatalf("token %+v", got)
	}

	// notBefore in the future hides the token.
	if _, ok, err := st.FindToken(ctx, "abc123", now.Add(time.Minute)); err != nil || ok {
		t.Fatalf("stale token visible: ok=%v err=%v", ok, err)
	}

	matched, err := st.AdvanceToken(ctx, "abc123")
	if err != nil || !matched {
		t.Fatalf("AdvanceToken: matched=%v err=%v", matched, err)
	}
	got, _, _ = st.FindToken(ctx, "abc123", now.Add(-time.Minute))
	if got.Step != verify.StepAdvanced {
		t.Fatalf("step %d after advance", got.Step)
	}

	if matched, err := st.AdvanceToken(ctx, "missing"); err != nil || matched {
		t.Fatalf("advance unknown: matched=%v err=%v", matched, err)
	}

	n, err := st.DeleteExpiredTokens(ctx, now.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredTokens: n=%d err=%v", n, err)
	}
}

func TestSettingsDefaults(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{SettingProtectContent, SettingVerificationMode, SettingGlobalNotify} {
		on, err := st.Setting(ctx, key)
		if err != nil {
			t.Fatalf("Setting(%s): %v", key, err)
		}
		if !on {
			t.Fatalf("setting %s not on by default", key)
		}
	}

	if err := st.SetSetting(ctx, SettingProtectContent, false); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	on, err := st.Setting(ctx, SettingProtectContent)
	if err != nil || on {
		t.Fatalf("toggle not persisted: on=%v err=%v", on, err)
	}

	// Unknown keys default to on.
	on, err = st.Setting(ctx, "never_written")
	if err != nil || !on {
		t.Fatalf("unknown key default: on=%v err=%v", on, err)
	}
}

func TestGroupsRequestsFeedback(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertGroup(ctx, -200, "movies chat"); err != nil {
		t.Fatalf("UpsertGroup: %v", err)
	}
	if err := st.UpsertGroup(ctx, -200, "movies chat renamed"); err != nil {
		t.Fatalf("UpsertGroup rename: %v", err)
	}
	if err := st.UpsertGroup(ctx, -300, "other"); err != nil {
		t.Fatalf("UpsertGroup: %v", err)
	}

	ids, err := st.GroupIDs(ctx)
	if err != nil {
		t.Fatalf("GroupIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("group ids %v", ids)
	}

	if err := st.DeleteGroup(ctx, -300); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	n, err := st.CountGroups(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountGroups: n=%d err=%v", n, err)
	}

	if err := st.InsertRequest(ctx, 42, "user42", "Some Upcoming Movie"); err != nil {
		t.Fatalf("InsertRequest: %v", err)
	}
	if err := st.SetRequestStatus(ctx, 42, "Some Upcoming Movie", "done"); err != nil {
		t.Fatalf("SetRequestStatus: %v", err)
	}
	if err := st.InsertFeedback(ctx, 42, "great bot"); err != nil {
		t.Fatalf("InsertFeedback: %v", err)
	}
}
