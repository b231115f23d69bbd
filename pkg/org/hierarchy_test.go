package org_test

import (
	"testing"

	"github.com/orgmirror/orgmirror/pkg/dn"
	"github.com/orgmirror/orgmirror/pkg/org"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func companyFixture() map[string]*org.Company {
	all := make(map[string]*org.Company)
	for _, c := range []*org.Company{
		org.NewCompany("ou=europe,ou=external,ou=people,dc=sample,dc=com", "europe"),
		org.NewCompany("ou=france,ou=europe,ou=external,ou=people,dc=sample,dc=com", "france"),
		org.NewCompany("ou=gfi,ou=france,ou=europe,ou=external,ou=people,dc=sample,dc=com", "gfi"),
		org.NewCompany("ou=spain,ou=europe,ou=external,ou=people,dc=sample,dc=com", "spain"),
	} {
		all[c.ID] = c
	}

	return all
}

func TestBuildCompanyChain(t *testing.T) {
	a := assert.New(t)

	all := companyFixture()

	chain := org.BuildCompanyChain(all["gfi"], all)
	a.Equal([]string{"europe", "france", "gfi"}, chain)

	// the chain always ends with the company itself
	a.Equal("gfi", chain[len(chain)-1])

	// strictly increasing path depth
	prev := 0
	for _, id := range chain {
		depth := dn.Depth(all[id].DN)
		a.Greater(depth, prev)
		prev = depth
	}

	// a root company is its own single ancestor
	a.Equal([]string{"europe"}, org.BuildCompanyChain(all["europe"], all))

	// siblings never appear in each other's chains
	a.NotContains(org.BuildCompanyChain(all["spain"], all), "france")
}

func TestLinkGroupEdges(t *testing.T) {
	a := assert.New(t)

	parent := org.NewGroup("cn=dig,ou=groups,dc=sample,dc=com", "DIG")
	child := org.NewGroup("cn=dig as,ou=groups,dc=sample,dc=com", "DIG AS")

	groups := map[string]*org.Group{parent.ID: parent, child.ID: child}
	dnToGroup := map[string]*org.Group{
		dn.Normalize(parent.DN): parent,
		dn.Normalize(child.DN):  child,
	}

	rawSubRefs := map[string][]string{
		parent.ID: {
			"cn=DIG AS,ou=groups,dc=sample,dc=com",
			// broken reference: must be dropped, not fail
			"cn=gone,ou=groups,dc=sample,dc=com",
		},
	}

	org.LinkGroupEdges(groups, rawSubRefs, dnToGroup, zap.NewNop())

	a.Contains(parent.SubGroups, child.ID)
	a.Contains(child.ParentGroups, parent.ID)
	a.NotContains(parent.SubGroups, "gone")
	a.Len(parent.SubGroups, 1)
}

func TestCascadeDetachGroup(t *testing.T) {
	a := assert.New(t)

	grand := org.NewGroup("cn=grand,ou=groups,dc=sample", "grand")
	mid := org.NewGroup("cn=mid,ou=groups,dc=sample", "mid")
	leaf := org.NewGroup("cn=leaf,ou=groups,dc=sample", "leaf")

	grand.SubGroups[mid.ID] = struct{}{}
	mid.ParentGroups[grand.ID] = struct{}{}
	mid.SubGroups[leaf.ID] = struct{}{}
	leaf.ParentGroups[mid.ID] = struct{}{}

	u := org.NewUser("uid=flast1,ou=gfi,ou=people,dc=sample")
	u.Groups[mid.ID] = struct{}{}
	mid.Members[u.ID] = struct{}{}

	groups := map[string]*org.Group{grand.ID: grand, mid.ID: mid, leaf.ID: leaf}
	users := map[string]*org.User{u.ID: u}

	org.CascadeDetachGroup(mid, groups, users)

	// every edge touching mid is gone, neighbors still exist
	a.Empty(mid.SubGroups)
	a.Empty(mid.ParentGroups)
	a.Empty(mid.Members)
	a.NotContains(grand.SubGroups, mid.ID)
	a.NotContains(leaf.ParentGroups, mid.ID)
	a.NotContains(u.Groups, mid.ID)
	a.Contains(groups, leaf.ID)

	// idempotent on an edge-free group
	org.CascadeDetachGroup(mid, groups, users)
	a.Empty(mid.SubGroups)
	a.NotContains(grand.SubGroups, mid.ID)
}

func TestTransitiveGroups(t *testing.T) {
	a := assert.New(t)

	outer := org.NewGroup("cn=outer,ou=groups,dc=sample", "outer")
	inner := org.NewGroup("cn=inner,ou=groups,dc=sample", "inner")
	outer.SubGroups[inner.ID] = struct{}{}
	inner.ParentGroups[outer.ID] = struct{}{}

	// a nesting cycle must not loop forever
	inner.SubGroups[outer.ID] = struct{}{}
	outer.ParentGroups[inner.ID] = struct{}{}

	u := org.NewUser("uid=flast1,ou=gfi,ou=people,dc=sample")
	u.Groups[inner.ID] = struct{}{}

	groups := map[string]*org.Group{outer.ID: outer, inner.ID: inner}

	closure := org.TransitiveGroups(u, groups)
	a.Contains(closure, inner.ID)
	a.Contains(closure, outer.ID)
	a.Len(closure, 2)
}

func TestIsUserRef(t *testing.T) {
	a := assert.New(t)

	a.True(org.IsUserRef("uid=flast1,ou=gfi,ou=people,dc=sample"))
	a.True(org.IsUserRef("UID=Flast1,ou=people"))
	a.False(org.IsUserRef("cn=dig,ou=groups,dc=sample"))
}
