// Package cache maintains the locally queryable mirror of the external
// directory: a process-local index of companies, groups and users, the
// persisted cache behind it, and the synchronizer that keeps all three
// layers consistent with the system of record.
package cache

import (
	"context"
	"sync"

	"github.com/orgmirror/orgmirror/pkg/org"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// errors
var (
	ErrNilRefresher = errors.New("index refresher is nil")
	ErrNoSnapshot   = errors.New("no snapshot is available")
)

// Snapshot is one consistent view of the mirrored directory. Readers
// observe a snapshot atomically: either the previous one or a fully
// rebuilt one, never a partially built one.
type Snapshot struct {
	Companies map[string]*org.Company
	Groups    map[string]*org.Group
	Users     map[string]*org.User
}

// NewSnapshot returns an empty snapshot with initialized maps.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Companies: make(map[string]*org.Company),
		Groups:    make(map[string]*org.Group),
		Users:     make(map[string]*org.User),
	}
}

// Refresher produces a fresh snapshot from the system of record and
// publishes it; implemented by the Synchronizer.
type Refresher interface {
	FullResync(ctx context.Context) (*Snapshot, error)
}

// Index holds the current snapshot. It is effectively single-writer,
// many-reader: the writer is whichever task currently runs a resync or
// a mirrored mutation.
type Index struct {
	snap      *Snapshot
	refresher Refresher
	flight    singleflight.Group
	logger    *zap.Logger

	mu sync.RWMutex
}

// NewIndex initializes an empty index; the refresher is attached
// afterwards since the synchronizer publishes into the index it is
// constructed with.
func NewIndex(logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Index{logger: logger.Named("[index]")}
}

// SetRefresher attaches the snapshot producer.
func (x *Index) SetRefresher(r Refresher) {
	x.refresher = r
}

// Publish atomically swaps in a fully built snapshot.
func (x *Index) Publish(s *Snapshot) {
	x.mu.Lock()
	x.snap = s
	x.mu.Unlock()
}

func (x *Index) snapshot() *Snapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return x.snap
}

// Ensure guarantees a snapshot exists, triggering a full resync on a
// cold cache. Concurrent cold-start callers share a single in-flight
// resync; once a snapshot exists the call returns immediately without
// recontacting the source.
func (x *Index) Ensure(ctx context.Context) (*Snapshot, error) {
	if s := x.snapshot(); s != nil {
		return s, nil
	}

	if x.refresher == nil {
		return nil, ErrNilRefresher
	}

	result, err, shared := x.flight.Do("resync", func() (interface{}, error) {
		// a racing caller may have completed the refresh already
		if s := x.snapshot(); s != nil {
			return s, nil
		}

		x.logger.Debug("cold cache, triggering a full resync")

		return x.refresher.FullResync(ctx)
	})
	if shared {
		x.logger.Debug("cold-start resync shared with a concurrent caller")
	}
	if err != nil {
		return nil, err
	}

	return result.(*Snapshot), nil
}

// Companies returns the current company map, refreshing a cold cache
// first.
func (x *Index) Companies(ctx context.Context) (map[string]*org.Company, error) {
	s, err := x.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	return s.Companies, nil
}

// Groups returns the current group map.
func (x *Index) Groups(ctx context.Context) (map[string]*org.Group, error) {
	s, err := x.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	return s.Groups, nil
}

// Users returns the current user map.
func (x *Index) Users(ctx context.Context) (map[string]*org.User, error) {
	s, err := x.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	return s.Users, nil
}

//---------------------------------------------------------------------------
// mutation mirrors: apply to the in-memory snapshot the change the
// synchronizer already applied to the source and the persisted cache;
// they never contact the source themselves
//---------------------------------------------------------------------------

// PutCompany mirrors a company creation or update.
func (x *Index) PutCompany(c *org.Company) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	x.snap.Companies[c.ID] = c

	return nil
}

// PutGroup mirrors a group creation or update.
func (x *Index) PutGroup(g *org.Group) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	x.snap.Groups[g.ID] = g

	return nil
}

// PutUser mirrors a user creation or update.
func (x *Index) PutUser(u *org.User) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	x.snap.Users[u.ID] = u

	return nil
}

// DeleteCompany mirrors a company deletion. The caller is responsible
// for referential cleanup beforehand.
func (x *Index) DeleteCompany(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	delete(x.snap.Companies, id)

	return nil
}

// DeleteGroup mirrors a group deletion, detaching every edge first.
func (x *Index) DeleteGroup(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	g, ok := x.snap.Groups[id]
	if !ok {
		return nil
	}

	org.CascadeDetachGroup(g, x.snap.Groups, x.snap.Users)
	delete(x.snap.Groups, id)

	return nil
}

// DeleteUser mirrors a user deletion. The caller must have removed the
// user from all groups beforehand.
func (x *Index) DeleteUser(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	delete(x.snap.Users, id)

	return nil
}

// AddUserToGroup mirrors a membership addition on both sides.
func (x *Index) AddUserToGroup(userID string, groupID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	g, ok := x.snap.Groups[groupID]
	if !ok {
		return org.ErrGroupNotFound
	}

	u, ok := x.snap.Users[userID]
	if !ok {
		return org.ErrUserNotFound
	}

	g.Members[u.ID] = struct{}{}
	u.Groups[g.ID] = struct{}{}

	return nil
}

// RemoveUserFromGroup mirrors a membership removal on both sides.
func (x *Index) RemoveUserFromGroup(userID string, groupID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	if g, ok := x.snap.Groups[groupID]; ok {
		delete(g.Members, userID)
	}

	if u, ok := x.snap.Users[userID]; ok {
		delete(u.Groups, groupID)
	}

	return nil
}

// AddGroupToGroup mirrors a nesting edge addition on both sides.
func (x *Index) AddGroupToGroup(subID string, groupID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	g, ok := x.snap.Groups[groupID]
	if !ok {
		return org.ErrGroupNotFound
	}

	sub, ok := x.snap.Groups[subID]
	if !ok {
		return org.ErrGroupNotFound
	}

	g.SubGroups[sub.ID] = struct{}{}
	sub.ParentGroups[g.ID] = struct{}{}

	return nil
}

// RemoveGroupFromGroup mirrors a nesting edge removal on both sides.
func (x *Index) RemoveGroupFromGroup(subID string, groupID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	if g, ok := x.snap.Groups[groupID]; ok {
		delete(g.SubGroups, subID)
	}

	if sub, ok := x.snap.Groups[subID]; ok {
		delete(sub.ParentGroups, groupID)
	}

	return nil
}

// EmptyGroup mirrors the removal of every user member of a group.
func (x *Index) EmptyGroup(groupID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.snap == nil {
		return ErrNoSnapshot
	}

	g, ok := x.snap.Groups[groupID]
	if !ok {
		return org.ErrGroupNotFound
	}

	for memberID := range g.Members {
		if u, ok := x.snap.Users[memberID]; ok {
			delete(u.Groups, g.ID)
		}

		delete(g.Members, memberID)
	}

	return nil
}
