package event

import (
	"context"
	"sync"
	"time"
)

// SeenStore remembers recently processed envelope IDs. Slack redelivers
// events when an ack is slow or lost, so intake asks the store before
// publishing.
type SeenStore interface {
	// Seen marks id as observed and reports whether it was already there.
	Seen(ctx context.Context, id string) (bool, error)
	Close() error
}

type seenEntry struct {
	id      string
	expires time.Time
}

// MemorySeenStore is a process-local SeenStore bounded by TTL and entry
// count. Suitable for single-instance deployments; multi-instance setups
// should use the redis driver so replicas share the window.
type MemorySeenStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]time.Time
	order   []seenEntry
	now     func() time.Time
}

// NewMemorySeenStore builds a store keeping ids for ttl, holding at most
// maxEntries.
func NewMemorySeenStore(ttl time.Duration, maxEntries int) *MemorySeenStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &MemorySeenStore{
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen implements SeenStore.
func (s *MemorySeenStore) Seen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purge(now)

	if expires, ok := s.entries[id]; ok && now.Before(expires) {
		return true, nil
	}

	for len(s.entries) >= s.max {
		s.evictOldest()
	}
	expires := now.Add(s.ttl)
	s.entries[id] = expires
	s.order = append(s.order, seenEntry{id: id, expires: expires})
	return false, nil
}

func (s *MemorySeenStore) purge(now time.Time) {
	for len(s.order) > 0 && !now.Before(s.order[0].expires) {
		s.dropHead()
	}
}

func (s *MemorySeenStore) evictOldest() {
	if len(s.order) == 0 {
		return
	}
	s.dropHead()
}

func (s *MemorySeenStore) dropHead() {
	head := s.order[0]
	s.order = s.order[1:]
	// Only delete when the map still points at this generation of the id;
	// a refreshed id owns a newer entry further down the list.
	if expires, ok := s.entries[head.id]; ok && expires.Equal(head.expires) {
		delete(s.entries, head.id)
	}
}

// Close implements SeenStore.
func (s *MemorySeenStore) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]time.Time)
	s.order = nil
	s.mu.Unlock()
	return nil
}

var _ SeenStore = (*MemorySeenStore)(nil)
