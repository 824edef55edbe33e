package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryEntry struct {
	draft   Draft
	expires time.Time
}

// MemoryStore keeps drafts in process memory with lazy and periodic expiry.
type MemoryStore struct {
	mu       sync.Mutex
	drafts   map[int64]memoryEntry
	batches  map[string]time.Time
	draftTTL time.Duration
	batchTTL time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store. A zero TTL disables expiry.
func NewMemoryStore(draftTTL, batchTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		drafts:   make(map[int64]memoryEntry),
		batches:  make(map[string]time.Time),
		draftTTL: draftTTL,
		batchTTL: batchTTL,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.drafts[userID]
	if !ok {
		return nil, nil
	}
	if s.expired(entry.expires) {
		delete(s.drafts, userID)
		return nil, nil
	}
	draft := entry.draft
	return &draft, nil
}

func (s *MemoryStore) Put(_ context.Context, userID int64, draft *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	draft.UpdatedAt = now
	s.drafts[userID] = memoryEntry{draft: *draft, expires: s.deadline(now, s.draftTTL)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}

func (s *MemoryStore) FirstSeenBatch(_ context.Context, batchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expires, ok := s.batches[batchID]; ok && !s.expired(expires) {
		return false, nil
	}
	s.batches[batchID] = s.deadline(s.now(), s.batchTTL)
	return true, nil
}

// Sweep drops every expired draft and batch id, returning how many drafts
// were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.drafts {
		if s.expired(entry.expires) {
			delete(s.drafts, id)
			removed++
		}
	}
	for id, expires := range s.batches {
		if s.expired(expires) {
			delete(s.batches, id)
		}
	}
	return removed
}

// Run sweeps on every interval tick until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Debug("expired drafts swept", zap.Int("count", n))
			}
		}
	}
}

func (s *MemoryStore) deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func (s *MemoryStore) expired(deadline time.Time) bool {
	return !deadline.IsZero() && !s.now().Before(deadline)
}
