// Package kv abstracts the shared key-value store used for verification
// codes and send-rate bookkeeping. All state lives server-side so any
// number of API instances can share it.
package kv

import (
	"context"
	"time"
)

// CompareResult reports the outcome of a CompareAndDelete call.
type CompareResult int

const (
	// CompareMissing means the key did not exist (never set or expired).
	CompareMissing CompareResult = iota
	// CompareMismatch means the key exists but holds a different value;
	// the key is left untouched.
	CompareMismatch
	// CompareDeleted means the value matched and the key was removed.
	CompareDeleted
)

// Store is the minimal contract the OTP flow needs. Implementations must
// make SetNX, Incr and CompareAndDelete atomic with respect to concurrent
// callers on the same key.
type Store interface {
	// Get returns ("", nil) when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets key only if absent and reports whether it was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, or a negative duration when the
	// key is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// CompareAndDelete atomically deletes key iff it currently holds expect.
	CompareAndDelete(ctx context.Context, key, expect string) (CompareResult, error)
}
