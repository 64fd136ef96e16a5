package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tg-relay/internal/storage"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	limiter := NewRateLimiter(store, 3, time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	limiter.now = func() time.Time { return current }
	store.SetClock(func() time.Time { return current })

	for i := 0; i < 3; i++ {
		if err := limiter.CheckLimit(ctx, 42); err != nil {
			t.Fatalf("submission %d unexpectedly limited: %v", i+1, err)
		}
		if err := limiter.RecordSubmission(ctx, 42); err != nil {
			t.Fatalf("recording submission %d: %v", i+1, err)
		}
		current = current.Add(time.Second)
	}

	err := limiter.CheckLimit(ctx, 42)
	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("CheckLimit = %v, want RateLimitExceededError", err)
	}
	if rateErr.Count != 3 || rateErr.Limit != 3 {
		t.Errorf("error reports %d/%d, want 3/3", rateErr.Count, rateErr.Limit)
	}
	if rateErr.RetryAfter <= 0 || rateErr.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", rateErr.RetryAfter)
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	limiter := NewRateLimiter(store, 2, time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	limiter.now = func() time.Time { return current }
	store.SetClock(func() time.Time { return current })

	for i := 0; i < 2; i++ {
		if err := limiter.CheckLimit(ctx, 7); err != nil {
			t.Fatalf("submission %d unexpectedly limited: %v", i+1, err)
		}
		if err := limiter.RecordSubmission(ctx, 7); err != nil {
			t.Fatalf("recording submission %d: %v", i+1, err)
		}
		current = current.Add(time.Second)
	}
	if err := limiter.CheckLimit(ctx, 7); err == nil {
		t.Fatal("expected limit at capacity")
	}

	// Once the entries age past the window the sender may post again.
	current = base.Add(61 * time.Second)
	if err := limiter.CheckLimit(ctx, 7); err != nil {
		t.Fatalf("CheckLimit after window slide = %v, want nil", err)
	}
}

func TestRateLimiterRetryAfterTracksOldest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	limiter := NewRateLimiter(store, 1, time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	limiter.now = func() time.Time { return current }
	store.SetClock(func() time.Time { return current })

	if err := limiter.RecordSubmission(ctx, 9); err != nil {
		t.Fatalf("recording submission: %v", err)
	}

	current = base.Add(40 * time.Second)
	err := limiter.CheckLimit(ctx, 9)
	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("CheckLimit = %v, want RateLimitExceededError", err)
	}
	if rateErr.RetryAfter != 20*time.Second {
		t.Errorf("RetryAfter = %v, want 20s", rateErr.RetryAfter)
	}
}

func TestRateLimiterCheckHasNoSideEffect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	limiter := NewRateLimiter(store, 1, time.Minute)

	// Failed checks must not consume capacity.
	for i := 0; i < 5; i++ {
		if err := limiter.CheckLimit(ctx, 5); err != nil {
			t.Fatalf("check %d unexpectedly limited: %v", i+1, err)
		}
	}
}

func TestRateLimiterReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	limiter := NewRateLimiter(store, 1, time.Minute)

	if err := limiter.RecordSubmission(ctx, 3); err != nil {
		t.Fatalf("recording submission: %v", err)
	}
	if err := limiter.CheckLimit(ctx, 3); err == nil {
		t.Fatal("expected limit before reset")
	}
	if err := limiter.Reset(ctx, 3); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := limiter.CheckLimit(ctx, 3); err != nil {
		t.Fatalf("CheckLimit after reset = %v, want nil", err)
	}
}

func TestRateLimiterIsolatesSenders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	limiter := NewRateLimiter(store, 1, time.Minute)

	if err := limiter.RecordSubmission(ctx, 1); err != nil {
		t.Fatalf("recording submission: %v", err)
	}
	if err := limiter.CheckLimit(ctx, 1); err == nil {
		t.Fatal("sender 1 should be limited")
	}
	if err := limiter.CheckLimit(ctx, 2); err != nil {
		t.Fatalf("sender 2 unexpectedly limited: %v", err)
	}
}
