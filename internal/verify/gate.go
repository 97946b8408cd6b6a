// Package verify implements the token state machine gating file delivery:
// a token is issued at step 1, advanced to step 2 by the external web
// gateway, and consumed exactly once on successful delivery.
package verify

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"filmgate/internal/catalog"
)

type Step int

const (
	StepCreated  Step = 1
	StepAdvanced Step = 2
)

// Token is a single delivery-gating ticket.
type Token struct {
	Value     string
	UserID    int64
	Entry     catalog.EntryKey
	Step      Step
	CreatedAt time.Time
}

// Distinct, user-facing denial reasons. Callers map each to its own reply.
var (
	ErrExpired     = errors.New("verification link unknown or expired")
	ErrWrongOwner  = errors.New("verification link belongs to another user")
	ErrNotAdvanced = errors.New("verification not completed")
)

// Store is the persistence contract for tokens. Implementations without
// native TTL expiry rely on DeleteExpired being driven periodically;
// Find must additionally reject rows older than notBefore so reaper lag
// cannot leak a stale token.
type Store interface {
	CreateToken(ctx context.Context, t Token) error
	AdvanceToken(ctx context.Context, value string) (bool, error)
	FindToken(ctx context.Context, value string, notBefore time.Time) (Token, bool, error)
	DeleteToken(ctx context.Context, value string) error
	DeleteExpiredTokens(ctx context.Context, olderThan time.Time) (int64, error)
}

const DefaultTTL = time.Hour

type Gate struct {
	store   Store
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewGate(store Store, ttl time.Duration, baseURL string) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{store: store, ttl: ttl, baseURL: baseURL, now: time.Now}
}

// Issue creates a step-1 token for delivering key to userID and returns
// the web verification URL embedding it.
func (g *Gate) Issue(ctx context.Context, userID int64, key catalog.EntryKey) (string, error) {
	tok, err := newTokenValue()
	if err != nil {
		return "", err
	}
	t := Token{
		Value:     tok,
		UserID:    userID,
		Entry:     key,
		Step:      StepCreated,
		CreatedAt: g.now().UTC(),
	}
	if err := g.store.CreateToken(ctx, t); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/verify/%s", g.baseURL, tok), nil
}

// Check reports whether the token still exists. Used by the web gateway's
// first step, which must not mutate anything.
func (g *Gate) Check(ctx context.Context, value string) error {
	_, ok, err := g.store.FindToken(ctx, value, g.cutoff())
	if err != nil {
		return err
	}
	if !ok {
		return ErrExpired
	}
	return nil
}

// Advance moves a token from step 1 to step 2. An unknown or expired
// token surfaces as ErrExpired; advancing an already-advanced token is a
// no-op success.
func (g *Gate) Advance(ctx context.Context, value string) error {
	matched, err := g.store.AdvanceToken(ctx, value)
	if err != nil {
		return err
	}
	if !matched {
		return ErrExpired
	}
	return nil
}

// Redeem validates the token for userID and, if valid, runs deliver with
// the gated entry key. The token is deleted only after deliver succeeds,
// so a failed delivery can be retried with the same link. Denials carry a
// distinct reason and never delete the token.
func (g *Gate) Redeem(ctx context.Context, value string, userID int64, deliver func(ctx context.Context, key catalog.EntryKey) error) error {
	t, ok, err := g.store.FindToken(ctx, value, g.cutoff())
	if err != nil {
		return err
	}
	if !ok {
		return ErrExpired
	}
	if t.UserID != userID {
		return ErrWrongOwner
	}
	if t.Step != StepAdvanced {
		return ErrNotAdvanced
	}
	if err := deliver(ctx, t.Entry); err != nil {
		return err
	}
	return g.store.DeleteToken(ctx, value)
}

// Reap deletes tokens past their TTL. Driven by a periodic job.
func (g *Gate) Reap(ctx context.Context) (int64, error) {
	return g.store.DeleteExpiredTokens(ctx, g.cutoff())
}

func (g *Gate) cutoff() time.Time {
	return g.now().UTC().Add(-g.ttl)
}

func newTokenValue() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
