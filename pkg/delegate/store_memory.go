package delegate

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memoryStore is an in-memory Store used by tests.
type memoryStore struct {
	grants map[uuid.UUID]Grant

	sync.RWMutex
}

// NewMemoryStore returns a grant store that keeps everything in memory.
func NewMemoryStore() Store {
	return &memoryStore{grants: make(map[uuid.UUID]Grant)}
}

func (s *memoryStore) CreateGrant(ctx context.Context, g Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	s.grants[g.ID] = g
	s.Unlock()

	return nil
}

func (s *memoryStore) UpdateGrant(ctx context.Context, g Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.grants[g.ID]; !ok {
		return ErrGrantNotFound
	}

	s.grants[g.ID] = g

	return nil
}

func (s *memoryStore) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	delete(s.grants, id)
	s.Unlock()

	return nil
}

func (s *memoryStore) FetchGrantByID(ctx context.Context, id uuid.UUID) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}

	s.RLock()
	defer s.RUnlock()

	g, ok := s.grants[id]
	if !ok {
		return Grant{}, ErrGrantNotFound
	}

	return g, nil
}

func (s *memoryStore) FetchAllGrants(ctx context.Context) ([]Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	grants := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		grants = append(grants, g)
	}

	return grants, nil
}

func (s *memoryStore) FetchGrantsByReceivers(ctx context.Context, refs []ReceiverRef) ([]Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	grants := make([]Grant, 0)
	for _, g := range s.grants {
		for _, ref := range refs {
			if g.ReceiverKind == ref.Kind && g.Receiver == ref.Receiver {
				grants = append(grants, g)
				break
			}
		}
	}

	return grants, nil
}
