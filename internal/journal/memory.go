package journal

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

const defaultMemoryCapacity = 1024

// memoryStore keeps the newest entries in a bounded ring. Cheap, always
// available, gone on restart.
type memoryStore struct {
	mu  sync.Mutex
	cap int
	q   *queue.Queue
}

func openMemory(cfg Config) (Store, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &memoryStore{cap: capacity, q: queue.New()}, nil
}

func (s *memoryStore) Append(ctx context.Context, e Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Add(e)
	for s.q.Length() > s.cap {
		s.q.Remove()
	}
	return nil
}

func (s *memoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.q.Length()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - limit; i < n; i++ {
		out = append(out, s.q.Get(i).(Entry))
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }
