package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for local development and tests. It is
// not suitable for multi-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Now is swappable so tests can advance time past TTLs.
	Now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

// live returns the entry for key, dropping it first if expired.
// Callers must hold mu.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return "", nil
	}
	return e.value, nil
}

func (s *MemoryStore) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	return s.incrBy(key, 1)
}

func (s *MemoryStore) Decr(_ context.Context, key string) (int64, error) {
	return s.incrBy(key, -1)
}

func (s *MemoryStore) incrBy(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	e, ok := s.live(key)
	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n += delta

	// Incr on a missing key creates it without expiry, matching Redis.
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = s.expiry(ttl)
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return -2 * time.Second, nil
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return e.expiresAt.Sub(s.Now()), nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key, expect string) (CompareResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return CompareMissing, nil
	}
	if e.value != expect {
		return CompareMismatch, nil
	}
	delete(s.entries, key)
	return CompareDeleted, nil
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.Now().Add(ttl)
}
