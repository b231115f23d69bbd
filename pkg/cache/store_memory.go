package cache

import (
	"context"
	"sync"

	"github.com/orgmirror/orgmirror/pkg/org"
)

type membershipRow struct {
	groupID  string
	memberID string
	kind     MemberKind
}

// memoryStore is an in-memory Store used by tests.
type memoryStore struct {
	companies   map[string]org.Company
	groups      map[string]org.Group
	users       map[string]org.User
	memberships map[membershipRow]struct{}

	sync.RWMutex
}

// NewMemoryStore returns a persisted cache that stores everything in
// memory.
func NewMemoryStore() Store {
	return &memoryStore{
		companies:   make(map[string]org.Company),
		groups:      make(map[string]org.Group),
		users:       make(map[string]org.User),
		memberships: make(map[membershipRow]struct{}),
	}
}

func (s *memoryStore) Reset(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	s.companies = make(map[string]org.Company, len(snap.Companies))
	s.groups = make(map[string]org.Group, len(snap.Groups))
	s.users = make(map[string]org.User, len(snap.Users))
	s.memberships = make(map[membershipRow]struct{})

	for id, c := range snap.Companies {
		s.companies[id] = *c
	}

	for id, g := range snap.Groups {
		s.groups[id] = *g

		for subID := range g.SubGroups {
			s.memberships[membershipRow{g.ID, subID, MemberGroup}] = struct{}{}
		}
	}

	for id, u := range snap.Users {
		s.users[id] = *u

		for groupID := range u.Groups {
			s.memberships[membershipRow{groupID, u.ID, MemberUser}] = struct{}{}
		}
	}

	return nil
}

func (s *memoryStore) CreateCompany(ctx context.Context, c *org.Company) error {
	s.Lock()
	s.companies[c.ID] = *c
	s.Unlock()

	return nil
}

func (s *memoryStore) CreateGroup(ctx context.Context, g *org.Group) error {
	s.Lock()
	s.groups[g.ID] = *g
	s.Unlock()

	return nil
}

func (s *memoryStore) CreateUser(ctx context.Context, u *org.User) error {
	s.Lock()
	s.users[u.ID] = *u
	s.Unlock()

	return nil
}

func (s *memoryStore) UpdateUser(ctx context.Context, u *org.User) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return ErrNothingChanged
	}

	s.users[u.ID] = *u

	return nil
}

func (s *memoryStore) DeleteCompany(ctx context.Context, id string) error {
	s.Lock()
	delete(s.companies, id)
	s.Unlock()

	return nil
}

func (s *memoryStore) DeleteGroup(ctx context.Context, id string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.groups, id)

	for row := range s.memberships {
		if row.groupID == id || (row.memberID == id && row.kind == MemberGroup) {
			delete(s.memberships, row)
		}
	}

	return nil
}

func (s *memoryStore) DeleteUser(ctx context.Context, id string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.users, id)

	for row := range s.memberships {
		if row.memberID == id && row.kind == MemberUser {
			delete(s.memberships, row)
		}
	}

	return nil
}

func (s *memoryStore) AddMembership(ctx context.Context, groupID string, memberID string, kind MemberKind) error {
	s.Lock()
	s.memberships[membershipRow{groupID, memberID, kind}] = struct{}{}
	s.Unlock()

	return nil
}

func (s *memoryStore) RemoveMembership(ctx context.Context, groupID string, memberID string, kind MemberKind) error {
	s.Lock()
	delete(s.memberships, membershipRow{groupID, memberID, kind})
	s.Unlock()

	return nil
}

func (s *memoryStore) EmptyGroup(ctx context.Context, groupID string) error {
	s.Lock()
	defer s.Unlock()

	for row := range s.memberships {
		if row.groupID == groupID && row.kind == MemberUser {
			delete(s.memberships, row)
		}
	}

	return nil
}
