package advisor

import (
	"strings"
	"sync"
	"time"
)

// StateStore is the backing store for process-outliving state: rate-limit
// windows, circuit records, and the cost ledger. The default in-memory
// implementation is per-process; the sqlite implementation lets multiple
// instances on a shared volume see the same counters, so horizontal scaling
// does not silently reintroduce per-instance limits.
//
// Values are opaque encoded records. A ttl <= 0 means the entry never expires.
type StateStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	Sweep(now time.Time) (int, error)
	Close() error
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryStore returns an in-process StateStore.
func NewMemoryStore() StateStore {
	return &memoryStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (s *memoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *memoryStore) Set(key string, value []byte, ttl time.Duration) error {
	entry := memEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryStore) Sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged, nil
}

func (s *memoryStore) Close() error {
	return nil
}
