package rate

import "errors"

var (
	// ErrRateLimited is returned when a scope budget is exhausted for the window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
