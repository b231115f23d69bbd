package org

import (
	"strings"

	"github.com/orgmirror/orgmirror/pkg/dn"
)

// Group is a mirrored directory group with its bidirectional
// membership edges. Edge sets hold IDs, never object references, so
// the graph tolerates arbitrary nesting including cycles.
type Group struct {
	ID   string `db:"id" json:"id" valid:"required"`
	DN   string `db:"dn" json:"dn" valid:"required"`
	Name string `db:"name" json:"name" valid:"required"`

	// Members holds user IDs
	Members map[string]struct{} `db:"-" json:"members"`

	// SubGroups and ParentGroups are the two sides of the group
	// nesting edge; after every mutation s ∈ g.SubGroups must imply
	// g ∈ s.ParentGroups and vice versa
	SubGroups    map[string]struct{} `db:"-" json:"sub_groups"`
	ParentGroups map[string]struct{} `db:"-" json:"parent_groups"`
}

// NewGroup initializes a group from its DN and display name.
func NewGroup(groupDN string, name string) *Group {
	return &Group{
		ID:           dn.Normalize(name),
		DN:           groupDN,
		Name:         name,
		Members:      make(map[string]struct{}),
		SubGroups:    make(map[string]struct{}),
		ParentGroups: make(map[string]struct{}),
	}
}

// IsUserRef reports whether a raw member reference points to a user.
// User entries are the only ones addressed by the uid attribute, so
// the leaf segment is the structural marker.
func IsUserRef(memberDN string) bool {
	return strings.HasPrefix(dn.Normalize(memberDN), "uid=")
}
