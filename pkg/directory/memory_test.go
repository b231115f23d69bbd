package directory_test

import (
	"context"
	"testing"

	"github.com/orgmirror/orgmirror/pkg/directory"
	"github.com/stretchr/testify/assert"
)

func seedGroup(t *testing.T, src *directory.MemorySource, members ...string) {
	t.Helper()

	err := src.Bind(context.Background(), "cn=g,ou=groups,dc=example,dc=org", map[string][]string{
		"objectClass":  {"top", "groupOfUniqueNames"},
		"cn":           {"g"},
		"uniqueMember": members,
	})
	if err != nil {
		t.Fatalf("failed to seed group: %v", err)
	}
}

func TestMemorySourceModifySemantics(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	src := directory.NewMemorySource()
	seedGroup(t, src, "uid=a,dc=example,dc=org", "uid=b,dc=example,dc=org")

	groupDN := "cn=g,ou=groups,dc=example,dc=org"

	//---------------------------------------------------------------------------
	// adding a present value and deleting an absent one both report
	// the state as already satisfied
	//---------------------------------------------------------------------------
	err := src.Modify(ctx, groupDN, []directory.Delta{
		{Op: directory.AddValues, Attr: "uniqueMember", Values: []string{"uid=a,dc=example,dc=org"}},
	})
	a.Equal(directory.ErrAlreadySatisfied, err)

	err = src.Modify(ctx, groupDN, []directory.Delta{
		{Op: directory.DeleteValues, Attr: "uniqueMember", Values: []string{"uid=ghost,dc=example,dc=org"}},
	})
	a.Equal(directory.ErrAlreadySatisfied, err)

	//---------------------------------------------------------------------------
	// removing members is fine until the last one, which the schema
	// refuses
	//---------------------------------------------------------------------------
	err = src.Modify(ctx, groupDN, []directory.Delta{
		{Op: directory.DeleteValues, Attr: "uniqueMember", Values: []string{"uid=b,dc=example,dc=org"}},
	})
	a.NoError(err)

	err = src.Modify(ctx, groupDN, []directory.Delta{
		{Op: directory.DeleteValues, Attr: "uniqueMember", Values: []string{"uid=a,dc=example,dc=org"}},
	})
	a.Equal(directory.ErrSchemaViolation, err)

	// replace sidesteps the last-member refusal
	err = src.Modify(ctx, groupDN, []directory.Delta{
		{Op: directory.ReplaceValues, Attr: "uniqueMember", Values: []string{"uid=c,dc=example,dc=org"}},
	})
	a.NoError(err)

	err = src.Modify(ctx, "cn=missing,dc=example,dc=org", []directory.Delta{
		{Op: directory.AddValues, Attr: "cn", Values: []string{"missing"}},
	})
	a.Equal(directory.ErrEntryNotFound, err)
}

func TestMemorySourceSearchAndRename(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	src := directory.NewMemorySource()

	a.NoError(src.Bind(ctx, "ou=acme,ou=companies,dc=example,dc=org", map[string][]string{
		"objectClass": {"organizationalUnit"},
		"ou":          {"acme"},
	}))
	a.NoError(src.Bind(ctx, "uid=a,ou=acme,ou=companies,dc=example,dc=org", map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {"a"},
	}))
	a.NoError(src.Bind(ctx, "uid=Ann,ou=acme,ou=companies,dc=example,dc=org", map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {"Ann"},
	}))

	a.Equal(directory.ErrEntryExists, src.Bind(ctx, "OU=ACME,ou=companies,dc=example,dc=org", map[string][]string{
		"ou": {"acme"},
	}))

	//---------------------------------------------------------------------------
	// subtree search honors base and filter
	//---------------------------------------------------------------------------
	entries, err := src.SearchAll(ctx, "ou=companies,dc=example,dc=org", "(uid=a)")
	a.NoError(err)
	a.Len(entries, 1)
	a.Equal("uid=a,ou=acme,ou=companies,dc=example,dc=org", entries[0].DN)
	a.Equal("a", entries[0].Attr("uid"))

	//---------------------------------------------------------------------------
	// renaming a node rewrites its whole subtree
	//---------------------------------------------------------------------------
	a.NoError(src.Rename(ctx,
		"ou=acme,ou=companies,dc=example,dc=org",
		"ou=acme-corp,ou=companies,dc=example,dc=org",
	))

	entries, err = src.SearchAll(ctx, "ou=acme-corp,ou=companies,dc=example,dc=org", "(uid=a)")
	a.NoError(err)
	a.Len(entries, 1)
	a.Equal("uid=a,ou=acme-corp,ou=companies,dc=example,dc=org", entries[0].DN)

	// moved subtree entries keep the original case of their own segments
	entries, err = src.SearchAll(ctx, "ou=acme-corp,ou=companies,dc=example,dc=org", "(uid=Ann)")
	a.NoError(err)
	a.Len(entries, 1)
	a.Equal("uid=Ann,ou=acme-corp,ou=companies,dc=example,dc=org", entries[0].DN)

	//---------------------------------------------------------------------------
	// unbind refuses a populated subtree unless recursive
	//---------------------------------------------------------------------------
	err = src.Unbind(ctx, "ou=acme-corp,ou=companies,dc=example,dc=org", false)
	a.Equal(directory.ErrSchemaViolation, err)

	a.NoError(src.Unbind(ctx, "ou=acme-corp,ou=companies,dc=example,dc=org", true))

	entries, err = src.SearchAll(ctx, "ou=companies,dc=example,dc=org", "(objectClass=*)")
	a.NoError(err)
	a.Empty(entries)
}

func TestMemorySourceAuthenticate(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	src := directory.NewMemorySource()

	a.NoError(src.Bind(ctx, "uid=a,dc=example,dc=org", map[string][]string{
		"objectClass":  {"inetOrgPerson"},
		"userPassword": {"sup3rsecret"},
	}))

	ok, err := src.Authenticate(ctx, "uid=a,dc=example,dc=org", "sup3rsecret")
	a.NoError(err)
	a.True(ok)

	ok, err = src.Authenticate(ctx, "uid=a,dc=example,dc=org", "wrong")
	a.NoError(err)
	a.False(ok)

	_, err = src.Authenticate(ctx, "uid=ghost,dc=example,dc=org", "whatever")
	a.Equal(directory.ErrEntryNotFound, err)
}
