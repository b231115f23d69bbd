// Package org holds the mirrored directory entries (companies, groups,
// users) and the pure graph operations over them: company ancestor
// chains, bidirectional group edges and cascade detachment.
package org

import (
	"sort"

	"github.com/orgmirror/orgmirror/pkg/dn"
	"github.com/pkg/errors"
)

// errors
var (
	ErrCompanyNotFound = errors.New("company not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrCompanyLocked   = errors.New("company is locked")
)

// Company is a mirrored organizational container.
type Company struct {
	ID   string `db:"id" json:"id" valid:"required"`
	DN   string `db:"dn" json:"dn" valid:"required"`
	Name string `db:"name" json:"name" valid:"required"`

	// Locked marks the quarantine company which must never be
	// deleted nor mutated
	Locked bool `db:"locked" json:"locked"`

	// AncestorChain holds company IDs ordered from the root-most
	// ancestor down to this company itself
	AncestorChain []string `db:"-" json:"ancestor_chain"`
}

// NewCompany initializes a company from its DN and display name. The
// ID is the normalized name, the DN keeps its original case.
func NewCompany(companyDN string, name string) *Company {
	return &Company{
		ID:   dn.Normalize(name),
		DN:   companyDN,
		Name: name,
	}
}

// BuildCompanyChain collects every company whose DN equals or contains
// the given company's DN, ordered ascending by DN depth, the company
// itself last. Ties at equal depth break on the normalized DN.
func BuildCompanyChain(c *Company, all map[string]*Company) []string {
	chain := make([]*Company, 0, 4)
	for _, candidate := range all {
		if dn.EqualsOrParentOf(candidate.DN, c.DN) {
			chain = append(chain, candidate)
		}
	}

	sort.Slice(chain, func(i, j int) bool {
		di, dj := dn.Depth(chain[i].DN), dn.Depth(chain[j].DN)
		if di != dj {
			return di < dj
		}

		return dn.Normalize(chain[i].DN) < dn.Normalize(chain[j].DN)
	})

	ids := make([]string, 0, len(chain))
	for _, member := range chain {
		ids = append(ids, member.ID)
	}

	return ids
}
