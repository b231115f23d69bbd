// Package delegate implements scoped administration rights: a grant
// hands a receiver (user, group or company) read, write or admin
// rights over a company, a group or an arbitrary subtree of the
// directory. Grant resolution walks the receiver's transitive context,
// so a user holds every grant received by any of their groups and by
// their company.
package delegate

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// errors
var (
	ErrNilStore         = errors.New("delegate store is nil")
	ErrNilDirectory     = errors.New("delegate directory is nil")
	ErrGrantNotFound    = errors.New("grant not found")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrInvalidTreeDN    = errors.New("invalid tree grant dn")
	ErrUnknownKind      = errors.New("unknown grant kind")
	ErrUnknownReceiver  = errors.New("unknown receiver kind")
	ErrReceiverNotFound = errors.New("receiver not found")
	ErrScopeNotFound    = errors.New("grant scope not found")
)

// Kind designates what a grant covers.
type Kind string

// grant kinds
const (
	KindCompany Kind = "company"
	KindGroup   Kind = "group"
	KindTree    Kind = "tree"
)

// Validate returns an error for an unknown kind.
func (k Kind) Validate() error {
	switch k {
	case KindCompany, KindGroup, KindTree:
		return nil
	}

	return errors.Wrapf(ErrUnknownKind, "%q", k)
}

// ReceiverKind designates who holds a grant.
type ReceiverKind string

// receiver kinds
const (
	ReceiverUser    ReceiverKind = "user"
	ReceiverGroup   ReceiverKind = "group"
	ReceiverCompany ReceiverKind = "company"
)

// Validate returns an error for an unknown receiver kind.
func (k ReceiverKind) Validate() error {
	switch k {
	case ReceiverUser, ReceiverGroup, ReceiverCompany:
		return nil
	}

	return errors.Wrapf(ErrUnknownReceiver, "%q", k)
}

// Grant is a single delegated right. Name is the normalized identifier
// of the covered company or group, or empty for a tree grant; DN is
// the covered subtree. Receiver is the normalized identifier of the
// holder, ReceiverDN its current directory position.
type Grant struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	Kind         Kind         `db:"kind" json:"kind"`
	Name         string       `db:"name" json:"name"`
	DN           string       `db:"dn" json:"dn"`
	ReceiverKind ReceiverKind `db:"receiver_kind" json:"receiver_kind"`
	Receiver     string       `db:"receiver" json:"receiver"`
	ReceiverDN   string       `db:"receiver_dn" json:"receiver_dn"`
	CanWrite     bool         `db:"can_write" json:"can_write"`
	CanAdmin     bool         `db:"can_admin" json:"can_admin"`
}

// Rights is the effective permission set of a principal over a DN.
type Rights struct {
	CanRead  bool `json:"can_read"`
	CanWrite bool `json:"can_write"`
	CanAdmin bool `json:"can_admin"`
}

// merge folds the rights of one grant into the accumulated set.
func (r *Rights) merge(g Grant) {
	r.CanRead = true
	r.CanWrite = r.CanWrite || g.CanWrite || g.CanAdmin
	r.CanAdmin = r.CanAdmin || g.CanAdmin
}

// Covers reports whether the wanted rights are included.
func (r Rights) Covers(want Rights) bool {
	if want.CanRead && !r.CanRead {
		return false
	}

	if want.CanWrite && !r.CanWrite {
		return false
	}

	if want.CanAdmin && !r.CanAdmin {
		return false
	}

	return true
}
