package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"filmgate/internal/catalog"
)

type memStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func newMemStore() *memStore { return &memStore{tokens: map[string]Token{}} }

func (s *memStore) CreateToken(_ context.Context, t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Value] = t
	return nil
}

func (s *memStore) AdvanceToken(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return false, nil
	}
	t.Step = StepAdvanced
	s.tokens[value] = t
	return true, nil
}

func (s *memStore) FindToken(_ context.Context, value string, notBefore time.Time) (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok || t.CreatedAt.Before(notBefore) {
		return Token{}, false, nil
	}
	return t, true, nil
}

func (s *memStore) DeleteToken(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, value)
	return nil
}

func (s *memStore) DeleteExpiredTokens(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for v, t := range s.tokens {
		if t.CreatedAt.Before(olderThan) {
			delete(s.tokens, v)
			n++
		}
	}
	return n, nil
}

func issueToken(t *testing.T, g *Gate, store *memStore, userID int64) string {
	t.Helper()
	url, err := g.Issue(context.Background(), userID, catalog.EntryKey{ChatID: -100, MessageID: 7})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.tokens) == 0 {
		t.Fatal("no token stored")
	}
	for v := range store.tokens {
		if url != "https://gate.example/verify/"+v {
			t.Fatalf("unexpected link %q", url)
		}
		return v
	}
	return ""
}

func TestRedeemLifecycle(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	g := NewGate(store, time.Hour, "https://gate.example")
	ctx := context.Background()

	tok := issueToken(t, g, store, 42)

	noDeliver := func(context.Context, catalog.EntryKey) error {
		t.Fatal("deliver must not run on denial")
		return nil
	}

	// Step 1 token: not yet advanced.
	if err := g.Redeem(ctx, tok, 42, noDeliver); !errors.Is(err, ErrNotAdvanced) {
		t.Fatalf("got %v, want ErrNotAdvanced", err)
	}

	if err := g.Advance(ctx, tok); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// Wrong owner.
	if err := g.Redeem(ctx, tok, 99, noDeliver); !errors.Is(err, ErrWrongOwner) {
		t.Fatalf("got %v, want ErrWrongOwner", err)
	}

	// Unknown token.
	if err := g.Redeem(ctx, "nope", 42, noDeliver); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}

	// Success, exactly once.
	var delivered catalog.EntryKey
	err := g.Redeem(ctx, tok, 42, func(_ context.Context, key catalog.EntryKey) error {
		delivered = key
		return nil
	})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if delivered != (catalog.EntryKey{ChatID: -100, MessageID: 7}) {
		t.Fatalf("delivered key %+v", delivered)
	}

	// Second redemption fails as unknown.
	if err := g.Redeem(ctx, tok, 42, noDeliver); !errors.Is(err, ErrExpired) {
		t.Fatalf("second redeem: got %v, want ErrExpired", err)
	}
}

func TestRedeemKeepsTokenOnDeliveryFailure(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	g := NewGate(store, time.Hour, "https://gate.example")
	ctx := context.Background()

	tok := issueToken(t, g, store, 1)
	if err := g.Advance(ctx, tok); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	boom := errors.New("copy failed")
	if err := g.Redeem(ctx, tok, 1, func(context.Context, catalog.EntryKey) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("got %v, want delivery error", err)
	}

	// Token survives a failed delivery and can be retried.
	if err := g.Redeem(ctx, tok, 1, func(context.Context, catalog.EntryKey) error { return nil }); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestExpiry(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	g := NewGate(store, time.Hour, "https://gate.example")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	tok := issueToken(t, g, store, 5)
	if err := g.Advance(ctx, tok); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// Past TTL the token is invisible even before the reaper runs.
	now = now.Add(2 * time.Hour)
	if err := g.Check(ctx, tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("Check: got %v, want ErrExpired", err)
	}
	if err := g.Redeem(ctx, tok, 5, func(context.Context, catalog.EntryKey) error { return nil }); !errors.Is(err, ErrExpired) {
		t.Fatalf("Redeem: got %v, want ErrExpired", err)
	}

	n, err := g.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d tokens, want 1", n)
	}
}

func TestAdvanceUnknownToken(t *testing.T) {
	t.Parallel()
	g := NewGate(newMemStore(), time.Hour, "https://gate.example")
	if err := g.Advance(context.Background(), "missing"); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
}
