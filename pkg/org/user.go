package org

import (
	"github.com/orgmirror/orgmirror/pkg/dn"
)

// LockedByPolicy is the sentinel actor meaning the account was locked
// by the directory's own password policy rather than by an operator.
const LockedByPolicy = "_system"

// User is a mirrored directory account.
type User struct {
	ID        string   `db:"id" json:"id" valid:"required"`
	DN        string   `db:"dn" json:"dn" valid:"required"`
	FirstName string   `db:"first_name" json:"first_name"`
	LastName  string   `db:"last_name" json:"last_name"`
	Mails     []string `db:"-" json:"mails"`

	// Company is the ID of the owning company
	Company string `db:"company" json:"company"`

	// Groups is kept equal to the set of groups whose Members contain
	// this user; maintained by the synchronizer, never recomputed on
	// read
	Groups map[string]struct{} `db:"-" json:"groups"`

	// Locked is the lock timestamp, empty when the account is active
	Locked   string `db:"locked" json:"locked"`
	LockedBy string `db:"locked_by" json:"locked_by"`

	// Isolated holds the previous company ID while the user sits in
	// the quarantine company, empty otherwise
	Isolated string `db:"isolated" json:"isolated"`
}

// NewUser initializes a user from its DN; the ID is the normalized
// leaf value of the DN.
func NewUser(userDN string) *User {
	return &User{
		ID:     dn.Normalize(dn.ToRDN(userDN)),
		DN:     userDN,
		Groups: make(map[string]struct{}),
	}
}

// PrimaryMail returns the first mail address, or empty.
func (u *User) PrimaryMail() string {
	if len(u.Mails) > 0 {
		return u.Mails[0]
	}

	return ""
}

// IsLocked reports whether the account currently carries a lock.
func (u *User) IsLocked() bool {
	return u.Locked != ""
}
