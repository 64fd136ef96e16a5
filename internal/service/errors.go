package service

import (
	"fmt"
	"time"
)

// RateLimitExceededError is returned by the rate limiter when a sender
// has used up the window. It carries everything the handler needs for
// the user-facing notice and is never retried automatically.
type RateLimitExceededError struct {
	RetryAfter time.Duration
	Count      int64
	Limit      int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d messages, retry in %s", e.Count, e.Limit, e.RetryAfter)
}

// UserMessage is the notice shown to the sender.
func (e *RateLimitExceededError) UserMessage() string {
	return fmt.Sprintf("⏳ Slow down: %d/%d messages used. Try again in %d seconds", e.Count, e.Limit, int(e.RetryAfter.Seconds()))
}

// PostError wraps a platform failure while posting to the channel,
// after the single context-stripping retry has been spent.
type PostError struct {
	Kind string
	Err  error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("failed to post %s to channel: %v", e.Kind, e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

// ValidationError reports malformed input handled at the boundary that
// detected it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ErrGateExpired is returned when a gate decision arrives after the
// pending entry's time-to-live.
var ErrGateExpired = fmt.Errorf("sensitive-content decision expired")

// ErrSenderBanned is returned for submissions from banned senders.
var ErrSenderBanned = fmt.Errorf("sender is banned")
