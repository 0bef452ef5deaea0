package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps pending sessions in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]PendingSession
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	o := buildOptions(opts)
	return &MemoryStore{
		pending: make(map[string]PendingSession),
		ttl:     ttl,
		now:     o.now,
	}
}

func (s *MemoryStore) Create(_ context.Context, resume, jobInfo string) (PendingSession, error) {
	p := PendingSession{
		Token:     uuid.NewString(),
		Resume:    resume,
		JobInfo:   jobInfo,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p.Token] = p
	return p, nil
}

func (s *MemoryStore) IsValid(_ context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.getLocked(token)
	return ok
}

func (s *MemoryStore) Lookup(_ context.Context, token string) (PendingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.getLocked(token)
	if !ok {
		return PendingSession{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, token)
	return nil
}

func (s *MemoryStore) Take(_ context.Context, token string) (PendingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.getLocked(token)
	if !ok {
		return PendingSession{}, ErrNotFound
	}
	delete(s.pending, token)
	return p, nil
}

func (s *MemoryStore) Restore(_ context.Context, p PendingSession) error {
	if expired(p.CreatedAt, s.now(), s.ttl) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[p.Token]; !exists {
		s.pending[p.Token] = p
	}
	return nil
}

func (s *MemoryStore) ExpireStale(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, p := range s.pending {
		if expired(p.CreatedAt, now, s.ttl) {
			delete(s.pending, token)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), nil
}

func (s *MemoryStore) Close() error { return nil }

// getLocked evicts the record when its TTL has elapsed.
func (s *MemoryStore) getLocked(token string) (PendingSession, bool) {
	p, ok := s.pending[token]
	if !ok {
		return PendingSession{}, false
	}
	if expired(p.CreatedAt, s.now(), s.ttl) {
		delete(s.pending, token)
		return PendingSession{}, false
	}
	return p, true
}
