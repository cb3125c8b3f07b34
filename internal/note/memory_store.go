package note

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "slacknotes/internal/errors"
)

// MemoryStore keeps notes in process memory. Mainly for tests and local
// runs without MySQL; contents are gone on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	notes  map[int64]*Note
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[int64]*Note)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, n *Note) error {
	if n == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "note must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m.notes[n.ID] = cloneNote(n)
	return nil
}

// Get returns the note with the given id.
func (m *MemoryStore) Get(_ context.Context, id int64) (*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	return cloneNote(n), nil
}

// List returns matching notes, most recent first unless ordered otherwise.
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Note, 0, len(m.notes))
	for _, n := range m.notes {
		if !matchesListFilters(n, opts) {
			continue
		}
		results = append(results, cloneNote(n))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByCreatedAsc {
			if results[i].CreatedAt.Equal(results[j].CreatedAt) {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if opts.Offset >= len(results) {
		return []*Note{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats aggregates the notes matching the filters.
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := Stats{}
	users := make(map[string]struct{})
	channels := make(map[string]struct{})
	for _, n := range m.notes {
		if !matchesListFilters(n, opts) {
			continue
		}
		stats.Total++
		if n.UserID != "" {
			users[n.UserID] = struct{}{}
		}
		if n.ChannelID != "" {
			channels[n.ChannelID] = struct{}{}
		}
		created := n.CreatedAt.Unix()
		if created > stats.NewestCreatedAt {
			stats.NewestCreatedAt = created
		}
		if stats.OldestCreatedAt == 0 || created < stats.OldestCreatedAt {
			stats.OldestCreatedAt = created
		}
	}
	stats.Users = len(users)
	stats.Channels = len(channels)
	if stats.Total == 0 {
		stats.OldestCreatedAt = 0
		stats.NewestCreatedAt = 0
	}
	return stats, nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func matchesListFilters(n *Note, opts ListOptions) bool {
	if opts.UserID != "" && n.UserID != opts.UserID {
		return false
	}
	if opts.ChannelID != "" && n.ChannelID != opts.ChannelID {
		return false
	}
	if !opts.CreatedSince.IsZero() && n.CreatedAt.Before(opts.CreatedSince) {
		return false
	}
	if !opts.CreatedUntil.IsZero() && n.CreatedAt.After(opts.CreatedUntil) {
		return false
	}
	if opts.Query != "" {
		needle := strings.ToLower(opts.Query)
		if !strings.Contains(strings.ToLower(n.Text), needle) &&
			!strings.Contains(strings.ToLower(n.Username), needle) &&
			!strings.Contains(strings.ToLower(n.ChannelName), needle) {
			return false
		}
	}
	return true
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
