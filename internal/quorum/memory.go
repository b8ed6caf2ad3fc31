// SPDX-License-Identifier: Apache-2.0

package quorum

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend. It only rendezvouses callers
// within a single process, which makes it suitable for tests and for
// single-agent deployments where the barrier degenerates to N=1.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// live returns the entry at key, dropping it first if its TTL has lapsed.
func (b *MemoryBackend) live(key string) (memoryEntry, bool) {
	entry, ok := b.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt) {
		delete(b.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (b *MemoryBackend) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return b.now().Add(ttl)
}

func (b *MemoryBackend) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var count int64
	if entry, ok := b.live(key); ok {
		count, _ = strconv.ParseInt(entry.value, 10, 64)
	}
	count++
	b.entries[key] = memoryEntry{value: strconv.FormatInt(count, 10), expiresAt: b.expiry(ttl)}
	return count, nil
}

func (b *MemoryBackend) CompareAndSet(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.live(key)
	if expected == "" {
		if ok {
			return false, nil
		}
	} else if !ok || entry.value != expected {
		return false, nil
	}
	b.entries[key] = memoryEntry{value: next, expiresAt: b.expiry(ttl)}
	return true, nil
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.live(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}
