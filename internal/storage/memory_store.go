package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is the in-process EphemeralStore used when Redis is
// disabled and by tests. Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu   sync.Mutex
	kv   map[string]memoryEntry
	sets map[string]*memorySet

	// now is swappable in tests.
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memorySet struct {
	members   map[string]float64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:   make(map[string]memoryEntry),
		sets: make(map[string]*memorySet),
		now:  time.Now,
	}
}

// SetClock replaces the time source; tests use it to age entries out.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.kv[key]
	if !ok || entry.expired(s.now()) {
		delete(s.kv, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.kv, key)
		delete(s.sets, key)
	}
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.kv[key]
	if !ok || entry.expired(s.now()) {
		entry = memoryEntry{value: "0"}
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	s.kv[key] = entry
	return n, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if entry, ok := s.kv[key]; ok && !entry.expired(now) {
		entry.expiresAt = now.Add(ttl)
		s.kv[key] = entry
	}
	if set, ok := s.sets[key]; ok {
		set.expiresAt = now.Add(ttl)
	}
	return nil
}

func (s *MemoryStore) set(key string) *memorySet {
	set, ok := s.sets[key]
	if !ok || (!set.expiresAt.IsZero() && s.now().After(set.expiresAt)) {
		set = &memorySet{members: make(map[string]float64)}
		s.sets[key] = set
	}
	return set
}

func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key).members[member] = score
	return nil
}

func (s *MemoryStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(key)
	for member, score := range set.members {
		if score >= min && score <= max {
			delete(set.members, member)
		}
	}
	return nil
}

func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.set(key).members)), nil
}

func (s *MemoryStore) ZOldest(ctx context.Context, key string) (string, float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(key)
	if len(set.members) == 0 {
		return "", 0, false, nil
	}
	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(set.members))
	for member, score := range set.members {
		pairs = append(pairs, pair{member, score})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return pairs[i].member < pairs[j].member
	})
	return pairs[0].member, pairs[0].score, true, nil
}
