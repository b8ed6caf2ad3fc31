// SPDX-License-Identifier: Apache-2.0

// Package quorum implements a distributed rendezvous barrier for migration
// plans. N independent deployment agents arrive carrying the same plan
// fingerprint; once the last one arrives, exactly one of them applies the
// plan and the rest unblock when it releases.
package quorum

import (
	"context"
	"time"
)

// Backend is the narrow capability interface the barrier requires from a
// shared store. Atomic increment-and-read and atomic compare-and-set are the
// only primitives; no broader transactional semantics are ever assumed.
//
// Entries expire after the given TTL so a finished round does not poison a
// later round that reuses the same fingerprint.
type Backend interface {
	// IncrementAndGet atomically increments the counter at key, creating it
	// at zero if absent, and returns the post-increment value.
	IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// CompareAndSet atomically replaces the value at key with next if the
	// current value equals expected, reporting whether the swap happened.
	// An empty expected value means create-if-absent.
	CompareAndSet(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error)

	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
}
