package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"env.share/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu      sync.RWMutex
	grants  map[string]*models.ShareGrant // by id
	byToken map[string]string             // token -> id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants:  make(map[string]*models.ShareGrant),
		byToken: make(map[string]string),
	}
}

func (s *MemoryStore) Save(ctx context.Context, grant *models.ShareGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[grant.Token]; exists {
		return ErrDuplicateToken
	}

	s.grants[grant.ID] = grant.Clone()
	s.byToken[grant.Token] = grant.ID
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.ShareGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return grant.Clone(), nil
}

func (s *MemoryStore) GetByToken(ctx context.Context, token string) (*models.ShareGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	return s.grants[id].Clone(), nil
}

func (s *MemoryStore) ListByEnvironment(ctx context.Context, environmentID string) ([]*models.ShareGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grants []*models.ShareGrant
	for _, grant := range s.grants {
		if grant.EnvironmentID == environmentID {
			grants = append(grants, grant.Clone())
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].CreatedAt.After(grants[j].CreatedAt)
	})
	return grants, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[id]
	if !ok {
		return ErrNotFound
	}
	grant.IsActive = false
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, token string, action models.Action, now time.Time) (*models.ShareGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	grant := s.grants[id]

	if !grant.IsActive {
		return nil, ErrRevoked
	}
	if grant.Expired(now) {
		return nil, ErrExpired
	}
	if !grant.QuotaLeft(action) {
		return nil, ErrExhausted
	}

	if action == models.ActionDownload {
		grant.DownloadCount++
	} else {
		grant.ViewCount++
		if grant.OneTime {
			grant.IsActive = false
		}
	}
	return grant.Clone(), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants = nil
	s.byToken = nil
	return nil
}
