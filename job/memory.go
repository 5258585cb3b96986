package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// memoryStore keeps jobs and fingerprint claims in process memory. Entries
// expire lazily on access. It backs single-process deployments and tests;
// multi-process deployments use the Redis store.
type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]memEntry
	fps  map[string]memEntry
	now  func() time.Time
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		jobs: make(map[string]memEntry),
		fps:  make(map[string]memEntry),
		now:  time.Now,
	}
}

func (s *memoryStore) entry(data []byte, ttl time.Duration) memEntry {
	e := memEntry{data: data}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

func (s *memoryStore) SaveJob(_ context.Context, j *Job, ttl time.Duration) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = s.entry(data, ttl)
	return nil
}

func (s *memoryStore) LoadJob(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if ok && e.expired(s.now()) {
		delete(s.jobs, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var j Job
	if err := json.Unmarshal(e.data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}

func (s *memoryStore) ClaimFingerprint(_ context.Context, fp, jobID string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.fps[fp]; ok && !e.expired(s.now()) {
		return string(e.data), false, nil
	}
	s.fps[fp] = s.entry([]byte(jobID), ttl)
	return jobID, true, nil
}

func (s *memoryStore) LookupFingerprint(_ context.Context, fp string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fps[fp]
	if !ok {
		return "", ErrNotFound
	}
	if e.expired(s.now()) {
		delete(s.fps, fp)
		return "", ErrNotFound
	}
	return string(e.data), nil
}

func (s *memoryStore) ReleaseFingerprint(_ context.Context, fp, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.fps[fp]; ok && string(e.data) == jobID {
		delete(s.fps, fp)
	}
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }
