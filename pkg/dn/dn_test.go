package dn_test

import (
	"testing"

	"github.com/orgmirror/orgmirror/pkg/dn"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	a := assert.New(t)

	a.Equal("ou=gfi,ou=france,dc=sample,dc=com", dn.Normalize("OU=GFI, ou=France ,dc=sample,dc=com"))
	a.Equal("uid=flast1,ou=people", dn.Normalize("  uid=flast1,ou=People "))
	a.Equal("", dn.Normalize("   "))
}

func TestToRDNAndParent(t *testing.T) {
	a := assert.New(t)

	a.Equal("GFI", dn.ToRDN("ou=GFI,ou=france,dc=sample"))
	a.Equal("flast1", dn.ToRDN("uid=flast1"))
	a.Equal("", dn.ToRDN("no-attribute"))

	a.Equal("ou=france,dc=sample", dn.Parent("ou=gfi,ou=france,dc=sample"))
	a.Equal("", dn.Parent("dc=sample"))
}

func TestEqualsOrParentOf(t *testing.T) {
	a := assert.New(t)

	// equality counts as containment
	a.True(dn.EqualsOrParentOf("ou=gfi,dc=sample", "OU=GFI,DC=Sample"))

	// strict ancestor
	a.True(dn.EqualsOrParentOf("ou=france,dc=sample", "ou=gfi,ou=france,dc=sample"))

	// segment-wise, not substring
	a.False(dn.EqualsOrParentOf("ou=gfi", "ou=gfi2,ou=x"))
	a.False(dn.EqualsOrParentOf("ou=gfi,dc=sample", "ou=other,dc=sample"))

	// child never contains its parent
	a.False(dn.EqualsOrParentOf("ou=gfi,ou=france,dc=sample", "ou=france,dc=sample"))

	a.False(dn.EqualsOrParentOf("", "ou=gfi"))
	a.False(dn.EqualsOrParentOf("ou=gfi", ""))
}

func TestDepth(t *testing.T) {
	a := assert.New(t)

	a.Equal(3, dn.Depth("ou=gfi,ou=france,dc=sample"))
	a.Equal(1, dn.Depth("dc=sample"))
	a.Equal(0, dn.Depth(""))
}

func TestIsValid(t *testing.T) {
	a := assert.New(t)

	a.True(dn.IsValid("cn=admins,ou=groups,dc=sample,dc=com"))
	a.True(dn.IsValid("uid=flast1, ou=people, dc=sample"))

	// control characters that would inject additional statements
	a.False(dn.IsValid("cn=admins;delete"))
	a.False(dn.IsValid("cn=a+b,ou=groups"))
	a.False(dn.IsValid("cn=\"quoted\",ou=groups"))
	a.False(dn.IsValid("plainvalue"))
	a.False(dn.IsValid(""))
}
