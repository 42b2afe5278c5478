package userstore

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for development and tests.
// It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]User
	counters map[string]int64
	now      func() time.Time
	pageSize int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]User),
		counters: make(map[string]int64),
		now:      time.Now,
		pageSize: defaultPageSize,
	}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, u User) error {
	if u.ID == 0 {
		return ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[u.ID]; ok {
		u.JoinedAt = existing.JoinedAt
	} else if u.JoinedAt.IsZero() {
		u.JoinedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	return nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

// All walks users in id order, one page of ids at a time, the same way the
// Postgres backend pages with a keyset. Users deleted in the meantime are
// skipped.
func (s *MemoryStore) All(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		var after int64
		first := true
		for {
			ids := s.idPage(after, first)
			for _, id := range ids {
				if err := ctx.Err(); err != nil {
					yield(User{}, err)
					return
				}
				s.mu.RLock()
				u, ok := s.users[id]
				s.mu.RUnlock()
				if !ok {
					continue
				}
				if !yield(u, nil) {
					return
				}
			}
			if len(ids) < s.pageSize {
				return
			}
			after, first = ids[len(ids)-1], false
		}
	}
}

// idPage returns up to pageSize ids greater than after, ascending. The
// first page has no lower bound.
func (s *MemoryStore) idPage(after int64, first bool) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, s.pageSize+1)
	for id := range s.users {
		if !first && id <= after {
			continue
		}
		i, _ := slices.BinarySearch(ids, id)
		if i == s.pageSize {
			continue
		}
		ids = slices.Insert(ids, i, id)
		if len(ids) > s.pageSize {
			ids = ids[:s.pageSize]
		}
	}
	return ids
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// Increment implements Counter.
func (s *MemoryStore) Increment(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return s.counters[name], nil
}

// Value implements Counter.
func (s *MemoryStore) Value(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name], nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
