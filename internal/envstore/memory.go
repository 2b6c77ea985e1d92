package envstore

import (
	"context"
	"sync"

	"env.share/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu        sync.RWMutex
	envs      map[string][]record
	masterKey string
}

func NewMemoryStore(masterKey string) *MemoryStore {
	return &MemoryStore{
		envs:      make(map[string][]record),
		masterKey: masterKey,
	}
}

func (s *MemoryStore) Variables(ctx context.Context, environmentID string) ([]models.EnvVariable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return openAll(s.envs[environmentID], s.masterKey)
}

func (s *MemoryStore) Put(ctx context.Context, environmentID string, v models.EnvVariable) error {
	rec, err := seal(v, s.masterKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.envs[environmentID]
	for i := range recs {
		if recs[i].Key == v.Key {
			recs[i] = rec
			return nil
		}
	}
	s.envs[environmentID] = append(recs, rec)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, environmentID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.envs[environmentID]
	for i := range recs {
		if recs[i].Key == key {
			s.envs[environmentID] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}
	return ErrVariableNotFound
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envs = nil
	return nil
}
