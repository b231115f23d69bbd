package cache

import (
	"context"

	"github.com/orgmirror/orgmirror/pkg/org"
	"github.com/pkg/errors"
)

// errors
var (
	ErrNilStore       = errors.New("cache store is nil")
	ErrNothingChanged = errors.New("nothing changed")
)

// MemberKind distinguishes the two membership row kinds.
type MemberKind uint8

// membership row kinds
const (
	MemberUser MemberKind = iota + 1
	MemberGroup
)

// Store is the persisted cache: the transactional table backing of the
// in-memory snapshot. Reset rebuilds everything in one transaction;
// the row operations mirror individual mutations.
type Store interface {
	// Reset atomically replaces all cached rows with the given
	// snapshot, flushing in stages (companies, groups, users, then
	// membership rows) to bound memory on large directories.
	Reset(ctx context.Context, s *Snapshot) error

	CreateCompany(ctx context.Context, c *org.Company) error
	CreateGroup(ctx context.Context, g *org.Group) error
	CreateUser(ctx context.Context, u *org.User) error
	UpdateUser(ctx context.Context, u *org.User) error

	DeleteCompany(ctx context.Context, id string) error
	DeleteGroup(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, id string) error

	AddMembership(ctx context.Context, groupID string, memberID string, kind MemberKind) error
	RemoveMembership(ctx context.Context, groupID string, memberID string, kind MemberKind) error
	EmptyGroup(ctx context.Context, groupID string) error
}
