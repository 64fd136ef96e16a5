package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tg-relay/internal/storage"
)

// RateLimiter throttles senders with a sliding-window log kept in an
// ordered set per sender. CheckLimit is purely advisory and has no
// side effect; the caller records the submission only after it was
// actually dispatched.
type RateLimiter struct {
	store  storage.EphemeralStore
	limit  int
	window time.Duration

	now func() time.Time
}

// NewRateLimiter creates a limiter allowing limit submissions per
// trailing window.
func NewRateLimiter(store storage.EphemeralStore, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func rateKey(senderID int64) string {
	return fmt.Sprintf("ratelimit:%d:messages", senderID)
}

// CheckLimit fails with RateLimitExceededError when the sender has
// reached the limit within the trailing window. Entries older than the
// window are pruned lazily on each check.
func (r *RateLimiter) CheckLimit(ctx context.Context, senderID int64) error {
	key := rateKey(senderID)
	now := r.now()
	windowStart := now.Add(-r.window)

	if err := r.store.ZRemRangeByScore(ctx, key, 0, float64(windowStart.Unix())); err != nil {
		return fmt.Errorf("pruning rate window: %w", err)
	}
	count, err := r.store.ZCard(ctx, key)
	if err != nil {
		return fmt.Errorf("counting rate window: %w", err)
	}
	if count < int64(r.limit) {
		return nil
	}

	retryAfter := r.window
	if _, oldest, ok, err := r.store.ZOldest(ctx, key); err == nil && ok {
		retryAfter = time.Unix(int64(oldest), 0).Add(r.window).Sub(now)
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &RateLimitExceededError{
		RetryAfter: retryAfter.Round(time.Second),
		Count:      count,
		Limit:      r.limit,
	}
}

// RecordSubmission appends the current timestamp to the sender's
// window set. The set expires a minute after the window so idle
// senders cost nothing.
func (r *RateLimiter) RecordSubmission(ctx context.Context, senderID int64) error {
	key := rateKey(senderID)
	now := r.now()
	member := strconv.FormatInt(now.UnixNano(), 10)
	if err := r.store.ZAdd(ctx, key, float64(now.Unix()), member); err != nil {
		return fmt.Errorf("recording submission: %w", err)
	}
	return r.store.Expire(ctx, key, r.window+time.Minute)
}

// Reset clears the sender's window; used by admin tooling.
func (r *RateLimiter) Reset(ctx context.Context, senderID int64) error {
	return r.store.Delete(ctx, rateKey(senderID))
}
