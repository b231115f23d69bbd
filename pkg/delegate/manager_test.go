package delegate_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/orgmirror/orgmirror/pkg/delegate"
	"github.com/orgmirror/orgmirror/pkg/org"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const companyBaseDN = "ou=companies,dc=example,dc=org"

// fakeDirectory is a static directory view.
type fakeDirectory struct {
	companies map[string]*org.Company
	groups    map[string]*org.Group
	users     map[string]*org.User
}

func (d *fakeDirectory) Companies(ctx context.Context) (map[string]*org.Company, error) {
	return d.companies, nil
}

func (d *fakeDirectory) Groups(ctx context.Context) (map[string]*org.Group, error) {
	return d.groups, nil
}

func (d *fakeDirectory) Users(ctx context.Context) (map[string]*org.User, error) {
	return d.users, nil
}

// newTestDirectory builds a small org: the acme company with an
// engineering sub-company, an admins group holding root, and two
// regular accounts.
func newTestDirectory() *fakeDirectory {
	acme := org.NewCompany("ou=acme,"+companyBaseDN, "acme")
	acme.AncestorChain = []string{"acme"}

	engineering := org.NewCompany("ou=engineering,ou=acme,"+companyBaseDN, "engineering")
	engineering.AncestorChain = []string{"acme", "engineering"}

	admins := org.NewGroup("cn=admins,ou=groups,dc=example,dc=org", "admins")
	hackers := org.NewGroup("cn=hackers,ou=groups,dc=example,dc=org", "hackers")

	root := org.NewUser("uid=root,ou=acme," + companyBaseDN)
	root.Company = "acme"
	root.Groups["admins"] = struct{}{}
	admins.Members["root"] = struct{}{}

	alice := org.NewUser("uid=alice,ou=engineering,ou=acme," + companyBaseDN)
	alice.Company = "engineering"

	bob := org.NewUser("uid=bob,ou=acme," + companyBaseDN)
	bob.Company = "acme"

	return &fakeDirectory{
		companies: map[string]*org.Company{"acme": acme, "engineering": engineering},
		groups:    map[string]*org.Group{"admins": admins, "hackers": hackers},
		users:     map[string]*org.User{"root": root, "alice": alice, "bob": bob},
	}
}

// newTestManager wires a manager over the static org and seeds the
// bootstrap grant: the admins group administers the whole directory
// tree, companies and groups alike.
func newTestManager(t *testing.T) (*delegate.Manager, delegate.Store, *fakeDirectory) {
	t.Helper()

	dir := newTestDirectory()
	store := delegate.NewMemoryStore()

	seed := delegate.Grant{
		ID:           uuid.New(),
		Kind:         delegate.KindTree,
		DN:           "dc=example,dc=org",
		ReceiverKind: delegate.ReceiverGroup,
		Receiver:     "admins",
		ReceiverDN:   "cn=admins,ou=groups,dc=example,dc=org",
		CanWrite:     true,
		CanAdmin:     true,
	}
	if err := store.CreateGrant(context.Background(), seed); err != nil {
		t.Fatalf("failed to seed bootstrap grant: %v", err)
	}

	m, err := delegate.NewManager(store, dir, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build manager: %v", err)
	}

	return m, store, dir
}

func TestRightsForImplicitCompanyRead(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m, _, _ := newTestManager(t)

	//---------------------------------------------------------------------------
	// an account reads its own company subtree, nothing more
	//---------------------------------------------------------------------------
	rights, err := m.RightsFor(ctx, "alice", "ou=engineering,ou=acme,"+companyBaseDN)
	a.NoError(err)
	a.True(rights.CanRead)
	a.False(rights.CanWrite)
	a.False(rights.CanAdmin)

	rights, err = m.RightsFor(ctx, "alice", "uid=alice,ou=engineering,ou=acme,"+companyBaseDN)
	a.NoError(err)
	a.True(rights.CanRead)

	// the parent company is invisible from below
	rights, err = m.RightsFor(ctx, "alice", "ou=acme,"+companyBaseDN)
	a.NoError(err)
	a.False(rights.CanRead)

	// whereas acme covers the engineering subtree
	rights, err = m.RightsFor(ctx, "bob", "ou=engineering,ou=acme,"+companyBaseDN)
	a.NoError(err)
	a.True(rights.CanRead)
	a.False(rights.CanWrite)

	_, err = m.RightsFor(ctx, "nobody", companyBaseDN)
	a.EqualError(err, org.ErrUserNotFound.Error())
}

func TestRightsForGroupReceivedGrant(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m, _, _ := newTestManager(t)

	// root holds admin through the admins group
	rights, err := m.RightsFor(ctx, "root", "ou=engineering,ou=acme,"+companyBaseDN)
	a.NoError(err)
	a.True(rights.CanRead)
	a.True(rights.CanWrite)
	a.True(rights.CanAdmin)

	// the groups subtree sits inside the granted tree too
	rights, err = m.RightsFor(ctx, "root", "cn=hackers,ou=groups,dc=example,dc=org")
	a.NoError(err)
	a.True(rights.CanAdmin)

	// but nothing outside the granted subtree
	rights, err = m.RightsFor(ctx, "root", "dc=other,dc=org")
	a.NoError(err)
	a.False(rights.CanRead)
	a.False(rights.CanAdmin)
}

func TestRightsCovers(t *testing.T) {
	a := assert.New(t)

	admin := delegate.Rights{CanRead: true, CanWrite: true, CanAdmin: true}
	writer := delegate.Rights{CanRead: true, CanWrite: true}

	a.True(admin.Covers(delegate.Rights{CanAdmin: true}))
	a.True(writer.Covers(delegate.Rights{CanRead: true, CanWrite: true}))
	a.False(writer.Covers(delegate.Rights{CanAdmin: true}))
	a.False(delegate.Rights{}.Covers(delegate.Rights{CanRead: true}))
	a.True(delegate.Rights{}.Covers(delegate.Rights{}))
}

func TestCreateRequiresAdminCoverage(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m, _, _ := newTestManager(t)

	req := delegate.CreateGrantRequest{
		Kind:         delegate.KindCompany,
		Scope:        "engineering",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "alice",
		CanWrite:     true,
	}

	//---------------------------------------------------------------------------
	// a regular account cannot hand out grants
	//---------------------------------------------------------------------------
	_, err := m.Create(ctx, "alice", req)
	a.Error(err)
	a.Equal(delegate.ErrNotAuthorized, errors.Cause(err))

	//---------------------------------------------------------------------------
	// an admin of a covering subtree can
	//---------------------------------------------------------------------------
	g, err := m.Create(ctx, "root", req)
	a.NoError(err)
	a.NotEqual(uuid.Nil, g.ID)
	a.Equal("engineering", g.Name)
	a.Equal("ou=engineering,ou=acme,"+companyBaseDN, g.DN)

	rights, err := m.RightsFor(ctx, "alice", "ou=engineering,ou=acme,"+companyBaseDN)
	a.NoError(err)
	a.True(rights.CanWrite)
	a.False(rights.CanAdmin)
}

func TestCreateResolutionFailures(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m, _, _ := newTestManager(t)

	//---------------------------------------------------------------------------
	// unknown scope, unknown receiver, malformed tree DN
	//---------------------------------------------------------------------------
	_, err := m.Create(ctx, "root", delegate.CreateGrantRequest{
		Kind:         delegate.KindCompany,
		Scope:        "no-such-company",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "alice",
	})
	a.Equal(delegate.ErrScopeNotFound, errors.Cause(err))

	_, err = m.Create(ctx, "root", delegate.CreateGrantRequest{
		Kind:         delegate.KindGroup,
		Scope:        "hackers",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "no-such-user",
	})
	a.Equal(delegate.ErrReceiverNotFound, errors.Cause(err))

	_, err = m.Create(ctx, "root", delegate.CreateGrantRequest{
		Kind:         delegate.KindTree,
		Scope:        "ou=bad;injection",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "alice",
	})
	a.Equal(delegate.ErrInvalidTreeDN, errors.Cause(err))

	_, err = m.Create(ctx, "root", delegate.CreateGrantRequest{
		Kind:         delegate.Kind("planet"),
		Scope:        "earth",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "alice",
	})
	a.Equal(delegate.ErrUnknownKind, errors.Cause(err))
}

func TestUpdateAndRevoke(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m, _, _ := newTestManager(t)

	g, err := m.Create(ctx, "root", delegate.CreateGrantRequest{
		Kind:         delegate.KindGroup,
		Scope:        "hackers",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "bob",
	})
	a.NoError(err)

	//---------------------------------------------------------------------------
	// update re-resolves and re-authorizes
	//---------------------------------------------------------------------------
	updated, err := m.Update(ctx, "root", g.ID, delegate.CreateGrantRequest{
		Kind:         delegate.KindCompany,
		Scope:        "acme",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "bob",
		CanWrite:     true,
	})
	a.NoError(err)
	a.Equal(g.ID, updated.ID)
	a.Equal("ou=acme,"+companyBaseDN, updated.DN)

	_, err = m.Update(ctx, "alice", g.ID, delegate.CreateGrantRequest{
		Kind:         delegate.KindCompany,
		Scope:        "acme",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "bob",
	})
	a.Equal(delegate.ErrNotAuthorized, errors.Cause(err))

	//---------------------------------------------------------------------------
	// revoke
	//---------------------------------------------------------------------------
	a.Equal(delegate.ErrNotAuthorized, errors.Cause(m.Revoke(ctx, "alice", g.ID)))
	a.NoError(m.Revoke(ctx, "root", g.ID))

	rights, err := m.RightsFor(ctx, "bob", "ou=acme,"+companyBaseDN)
	a.NoError(err)
	a.False(rights.CanWrite)

	a.Equal(delegate.ErrGrantNotFound, errors.Cause(m.Revoke(ctx, "root", g.ID)))
}

func TestReceivedByClosure(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m, _, _ := newTestManager(t)

	// root holds the bootstrap grant through the admins group
	grants, err := m.ReceivedBy(ctx, "root")
	a.NoError(err)
	a.Len(grants, 1)

	grants, err = m.ReceivedBy(ctx, "alice")
	a.NoError(err)
	a.Empty(grants)
}

func TestRepair(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m, store, dir := newTestManager(t)

	kept, err := m.Create(ctx, "root", delegate.CreateGrantRequest{
		Kind:         delegate.KindCompany,
		Scope:        "engineering",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "alice",
	})
	a.NoError(err)

	doomed, err := m.Create(ctx, "root", delegate.CreateGrantRequest{
		Kind:         delegate.KindGroup,
		Scope:        "hackers",
		ReceiverKind: delegate.ReceiverUser,
		Receiver:     "bob",
	})
	a.NoError(err)

	//---------------------------------------------------------------------------
	// the engineering company moved, the hackers group vanished
	//---------------------------------------------------------------------------
	dir.companies["engineering"].DN = "ou=engineering,ou=berlin,ou=acme," + companyBaseDN
	delete(dir.groups, "hackers")

	a.NoError(m.Repair(ctx, dir.companies, dir.groups))

	repaired, err := store.FetchGrantByID(ctx, kept.ID)
	a.NoError(err)
	a.Equal("ou=engineering,ou=berlin,ou=acme,"+companyBaseDN, repaired.DN)

	_, err = store.FetchGrantByID(ctx, doomed.ID)
	a.Equal(delegate.ErrGrantNotFound, errors.Cause(err))
}
