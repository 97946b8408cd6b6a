package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRecipientUnreachable marks a permanently undeliverable recipient
	// (blocked bot, deactivated account, invalid peer). The sender is
	// expected to drop the recipient rather than retry.
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	// ErrNotFound marks an absent chat, message or entity. Expected and
	// user-facing; not a logging-level error.
	ErrNotFound = errors.New("not found")

	// ErrNotModified is returned when an edit carries identical content.
	// Progress renderers swallow it.
	ErrNotModified = errors.New("message not modified")
)

// RateLimitedError is the platform's flood backoff signal. The wait is
// dictated by the platform, not by a local timeout policy.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryDelay extracts the signaled wait from err, if it is a rate-limit
// signal.
func RetryDelay(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
