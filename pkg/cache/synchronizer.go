package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/orgmirror/orgmirror/pkg/directory"
	"github.com/orgmirror/orgmirror/pkg/dn"
	"github.com/orgmirror/orgmirror/pkg/org"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// errors
var (
	ErrNilSource            = errors.New("directory source is nil")
	ErrNilIndex             = errors.New("directory index is nil")
	ErrCompanyAlreadyExists = errors.New("company already exists")
	ErrGroupAlreadyExists   = errors.New("group already exists")
	ErrUserAlreadyExists    = errors.New("user already exists")
)

// directory attribute names, as lowercased by the source
const (
	attrOU        = "ou"
	attrCN        = "cn"
	attrUID       = "uid"
	attrFirstName = "givenname"
	attrLastName  = "sn"
	attrMail      = "mail"
	attrMember    = "uniquemember"
	attrLocked    = "lockedtime"
	attrLockedBy  = "lockedby"
	attrIsolated  = "isolatedcompany"
)

// Config carries the directory layout the synchronizer mirrors.
type Config struct {
	CompanyBaseDN string `valid:"required"`
	GroupBaseDN   string `valid:"required"`
	UserBaseDN    string `valid:"required"`

	// QuarantineDN is the distinguished company receiving isolated
	// accounts; it exists even when absent from the source subtree
	QuarantineDN string `valid:"required"`

	// PlaceholderMemberDN seeds newly created groups, since the
	// directory schema refuses a group without any member
	PlaceholderMemberDN string `valid:"required"`

	CompanyFilter string
	GroupFilter   string
	UserFilter    string
}

func (c *Config) applyDefaults() {
	if c.CompanyFilter == "" {
		c.CompanyFilter = "(objectClass=organizationalUnit)"
	}

	if c.GroupFilter == "" {
		c.GroupFilter = "(objectClass=groupOfUniqueNames)"
	}

	if c.UserFilter == "" {
		c.UserFilter = "(objectClass=inetOrgPerson)"
	}
}

// GrantRepairer heals delegation grants against a fresh snapshot;
// implemented by the delegate manager.
type GrantRepairer interface {
	Repair(ctx context.Context, companies map[string]*org.Company, groups map[string]*org.Group) error
}

// Synchronizer owns every path that mutates the mirror: the full
// teardown-and-rebuild resync, and the incremental mutations which
// touch the source of record first, then the persisted cache, then the
// in-memory index, in that order. A crash between layers leaves the
// mirror behind the source until the next full resync, which is the
// designed recovery path.
type Synchronizer struct {
	source directory.Source
	store  Store
	index  *Index
	grants GrantRepairer
	config Config
	logger *zap.Logger
}

// NewSynchronizer wires the synchronizer to its collaborators.
func NewSynchronizer(source directory.Source, store Store, index *Index, grants GrantRepairer, config Config, logger *zap.Logger) (*Synchronizer, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	if store == nil {
		return nil, ErrNilStore
	}

	if index == nil {
		return nil, ErrNilIndex
	}

	config.applyDefaults()
	if ok, err := govalidator.ValidateStruct(&config); !ok || err != nil {
		return nil, errors.Wrap(err, "synchronizer config validation failed")
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("[sync]")

	return &Synchronizer{
		source: source,
		store:  store,
		index:  index,
		grants: grants,
		config: config,
		logger: logger,
	}, nil
}

//---------------------------------------------------------------------------
// full resynchronization
//---------------------------------------------------------------------------

// FullResync rebuilds the whole mirror from the source of record. The
// new snapshot is assembled fully off to the side; only after the
// persisted cache has been rebuilt and the delegation grants repaired
// is it swapped into the index, so a failure partway through leaves
// the previous snapshot live.
func (s *Synchronizer) FullResync(ctx context.Context) (*Snapshot, error) {
	started := time.Now()
	s.logger.Info("fetching directory data")

	snap := NewSnapshot()

	if err := s.fetchCompanies(ctx, snap); err != nil {
		return nil, errors.Wrap(err, "failed to fetch companies")
	}

	rawSubRefs, rawUserRefs, err := s.fetchGroups(ctx, snap)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch groups")
	}

	if err = s.fetchUsers(ctx, snap); err != nil {
		return nil, errors.Wrap(err, "failed to fetch users")
	}

	s.linkMemberships(snap, rawUserRefs)

	dnToGroup := make(map[string]*org.Group, len(snap.Groups))
	for _, g := range snap.Groups {
		dnToGroup[dn.Normalize(g.DN)] = g
	}
	org.LinkGroupEdges(snap.Groups, rawSubRefs, dnToGroup, s.logger)

	// a timed-out resync must never publish a partial snapshot
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if err = s.store.Reset(ctx, snap); err != nil {
		return nil, errors.Wrap(err, "failed to rebuild persisted cache")
	}

	if s.grants != nil {
		if err = s.grants.Repair(ctx, snap.Companies, snap.Groups); err != nil {
			return nil, errors.Wrap(err, "failed to repair delegation grants")
		}
	}

	s.index.Publish(snap)

	s.logger.Info("directory snapshot rebuilt",
		zap.Int("companies", len(snap.Companies)),
		zap.Int("groups", len(snap.Groups)),
		zap.Int("users", len(snap.Users)),
		zap.Duration("took", time.Since(started)),
	)

	return snap, nil
}

func (s *Synchronizer) fetchCompanies(ctx context.Context, snap *Snapshot) error {
	entries, err := s.source.SearchAll(ctx, s.config.CompanyBaseDN, s.config.CompanyFilter)
	if err != nil {
		return err
	}

	for _, e := range entries {
		c := org.NewCompany(e.DN, e.Attr(attrOU))
		snap.Companies[c.ID] = c
	}

	// the quarantine company is configured, not discovered, and it
	// must never be mutated through the mirror
	quarantine := org.NewCompany(s.config.QuarantineDN, dn.ToRDN(s.config.QuarantineDN))
	quarantine.Locked = true
	snap.Companies[quarantine.ID] = quarantine

	for _, c := range snap.Companies {
		c.AncestorChain = org.BuildCompanyChain(c, snap.Companies)
	}

	return nil
}

// fetchGroups collects the groups and their raw member references,
// partitioned by the structural marker of the reference value: the
// uid-addressed ones are user references, the rest are candidate
// sub-groups validated later against the group map.
func (s *Synchronizer) fetchGroups(ctx context.Context, snap *Snapshot) (rawSubRefs map[string][]string, rawUserRefs map[string][]string, err error) {
	entries, err := s.source.SearchAll(ctx, s.config.GroupBaseDN, s.config.GroupFilter)
	if err != nil {
		return nil, nil, err
	}

	rawSubRefs = make(map[string][]string)
	rawUserRefs = make(map[string][]string)

	for _, e := range entries {
		g := org.NewGroup(e.DN, e.Attr(attrCN))
		snap.Groups[g.ID] = g

		for _, memberDN := range e.AttrValues(attrMember) {
			if dn.Normalize(memberDN) == dn.Normalize(s.config.PlaceholderMemberDN) {
				continue
			}

			if org.IsUserRef(memberDN) {
				rawUserRefs[g.ID] = append(rawUserRefs[g.ID], memberDN)
			} else {
				rawSubRefs[g.ID] = append(rawSubRefs[g.ID], memberDN)
			}
		}
	}

	return rawSubRefs, rawUserRefs, nil
}

func (s *Synchronizer) fetchUsers(ctx context.Context, snap *Snapshot) error {
	entries, err := s.source.SearchAll(ctx, s.config.UserBaseDN, s.config.UserFilter)
	if err != nil {
		return err
	}

	dnToCompany := make(map[string]*org.Company, len(snap.Companies))
	for _, c := range snap.Companies {
		dnToCompany[dn.Normalize(c.DN)] = c
	}

	for _, e := range entries {
		u := org.NewUser(e.DN)
		u.FirstName = e.Attr(attrFirstName)
		u.LastName = e.Attr(attrLastName)
		u.Mails = e.AttrValues(attrMail)
		u.Locked = e.Attr(attrLocked)
		u.LockedBy = e.Attr(attrLockedBy)
		u.Isolated = e.Attr(attrIsolated)

		if c, ok := dnToCompany[dn.Normalize(dn.Parent(e.DN))]; ok {
			u.Company = c.ID
		} else {
			s.logger.Warn("user without a resolvable company",
				zap.String("user", e.DN),
			)
		}

		snap.Users[u.ID] = u
	}

	return nil
}

// linkMemberships resolves the user-looking member references against
// the fetched users; broken references are logged and dropped.
func (s *Synchronizer) linkMemberships(snap *Snapshot, rawUserRefs map[string][]string) {
	for groupID, refs := range rawUserRefs {
		g := snap.Groups[groupID]

		for _, memberDN := range refs {
			uid := dn.Normalize(dn.ToRDN(memberDN))

			u, ok := snap.Users[uid]
			if !ok {
				s.logger.Warn("broken member reference",
					zap.String("group", g.DN),
					zap.String("member", memberDN),
				)
				continue
			}

			g.Members[u.ID] = struct{}{}
			u.Groups[g.ID] = struct{}{}
		}
	}
}

//---------------------------------------------------------------------------
// incremental mutations: source of record first, then persisted cache,
// then in-memory index
//---------------------------------------------------------------------------

// CreateCompany creates a company under the given parent company, or
// under the company base when parentID is empty.
func (s *Synchronizer) CreateCompany(ctx context.Context, name string, parentID string) (*org.Company, error) {
	companies, err := s.index.Companies(ctx)
	if err != nil {
		return nil, err
	}

	baseDN := s.config.CompanyBaseDN
	if parentID != "" {
		parent, ok := companies[dn.Normalize(parentID)]
		if !ok {
			return nil, org.ErrCompanyNotFound
		}

		baseDN = parent.DN
	}

	c := org.NewCompany(fmt.Sprintf("ou=%s,%s", name, baseDN), name)
	if ok, err := govalidator.ValidateStruct(c); !ok || err != nil {
		return nil, errors.Wrap(err, "company validation failed")
	}

	if _, ok := companies[c.ID]; ok {
		return nil, ErrCompanyAlreadyExists
	}

	err = s.source.Bind(ctx, c.DN, map[string][]string{
		"objectClass": {"top", "organizationalUnit"},
		"ou":          {name},
	})
	if err != nil {
		return nil, err
	}

	if err = s.store.CreateCompany(ctx, c); err != nil {
		return nil, err
	}

	c.AncestorChain = org.BuildCompanyChain(c, companies)
	c.AncestorChain = append(c.AncestorChain, c.ID)

	return c, s.index.PutCompany(c)
}

// CreateGroup creates a group under the group base.
func (s *Synchronizer) CreateGroup(ctx context.Context, name string) (*org.Group, error) {
	groups, err := s.index.Groups(ctx)
	if err != nil {
		return nil, err
	}

	g := org.NewGroup(fmt.Sprintf("cn=%s,%s", name, s.config.GroupBaseDN), name)
	if ok, err := govalidator.ValidateStruct(g); !ok || err != nil {
		return nil, errors.Wrap(err, "group validation failed")
	}

	if _, ok := groups[g.ID]; ok {
		return nil, ErrGroupAlreadyExists
	}

	err = s.source.Bind(ctx, g.DN, map[string][]string{
		"objectClass":  {"top", "groupOfUniqueNames"},
		"cn":           {name},
		"uniqueMember": {s.config.PlaceholderMemberDN},
	})
	if err != nil {
		return nil, err
	}

	if err = s.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}

	return g, s.index.PutGroup(g)
}

// CreateUserRequest carries the attributes of a new account.
type CreateUserRequest struct {
	ID        string   `valid:"required,printableascii"`
	FirstName string   `valid:"required"`
	LastName  string   `valid:"required"`
	Company   string   `valid:"required"`
	Mails     []string `valid:"-"`
}

// CreateUser creates an account inside the given company.
func (s *Synchronizer) CreateUser(ctx context.Context, req CreateUserRequest) (*org.User, error) {
	if ok, err := govalidator.ValidateStruct(&req); !ok || err != nil {
		return nil, errors.Wrap(err, "user validation failed")
	}

	companies, err := s.index.Companies(ctx)
	if err != nil {
		return nil, err
	}

	c, ok := companies[dn.Normalize(req.Company)]
	if !ok {
		return nil, org.ErrCompanyNotFound
	}

	users, err := s.index.Users(ctx)
	if err != nil {
		return nil, err
	}

	u := org.NewUser(fmt.Sprintf("uid=%s,%s", req.ID, c.DN))
	if _, ok = users[u.ID]; ok {
		return nil, ErrUserAlreadyExists
	}

	u.FirstName = req.FirstName
	u.LastName = req.LastName
	u.Mails = req.Mails
	u.Company = c.ID

	attrs := map[string][]string{
		"objectClass": {"top", "person", "organizationalPerson", "inetOrgPerson"},
		"uid":         {req.ID},
		"givenName":   {req.FirstName},
		"sn":          {req.LastName},
		"cn":          {req.FirstName + " " + req.LastName},
	}
	if len(req.Mails) > 0 {
		attrs["mail"] = req.Mails
	}

	if err = s.source.Bind(ctx, u.DN, attrs); err != nil {
		return nil, err
	}

	if err = s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	return u, s.index.PutUser(u)
}

// DeleteGroup removes a group and everything nested under its DN,
// detaching all graph edges before the rows go away.
func (s *Synchronizer) DeleteGroup(ctx context.Context, id string) error {
	groups, err := s.index.Groups(ctx)
	if err != nil {
		return err
	}

	g, ok := groups[dn.Normalize(id)]
	if !ok {
		return org.ErrGroupNotFound
	}

	// anything not nicely detached inside the subtree is deleted in
	// the source anyway, so the mirror follows suit
	doomed := make([]string, 0, 1)
	for _, candidate := range groups {
		if dn.EqualsOrParentOf(g.DN, candidate.DN) {
			doomed = append(doomed, candidate.ID)
		}
	}

	if err = s.source.Unbind(ctx, g.DN, true); err != nil {
		return err
	}

	for _, doomedID := range doomed {
		if err = s.store.DeleteGroup(ctx, doomedID); err != nil {
			return err
		}

		if err = s.index.DeleteGroup(doomedID); err != nil {
			return err
		}
	}

	return nil
}

// DeleteCompany removes a company. The caller must already have moved
// or deleted every user of the company; this precondition is not
// enforced here. The quarantine company refuses deletion.
func (s *Synchronizer) DeleteCompany(ctx context.Context, id string) error {
	companies, err := s.index.Companies(ctx)
	if err != nil {
		return err
	}

	c, ok := companies[dn.Normalize(id)]
	if !ok {
		return org.ErrCompanyNotFound
	}

	if c.Locked {
		return org.ErrCompanyLocked
	}

	doomed := make([]string, 0, 1)
	for _, candidate := range companies {
		if dn.EqualsOrParentOf(c.DN, candidate.DN) {
			doomed = append(doomed, candidate.ID)
		}
	}

	if err = s.source.Unbind(ctx, c.DN, true); err != nil {
		return err
	}

	for _, doomedID := range doomed {
		if err = s.store.DeleteCompany(ctx, doomedID); err != nil {
			return err
		}

		if err = s.index.DeleteCompany(doomedID); err != nil {
			return err
		}
	}

	return nil
}

// DeleteUser removes an account. The caller must already have removed
// the user from all groups; this precondition is not enforced here.
func (s *Synchronizer) DeleteUser(ctx context.Context, id string) error {
	users, err := s.index.Users(ctx)
	if err != nil {
		return err
	}

	u, ok := users[dn.Normalize(id)]
	if !ok {
		return org.ErrUserNotFound
	}

	if err = s.source.Unbind(ctx, u.DN, false); err != nil {
		return err
	}

	if err = s.store.DeleteUser(ctx, u.ID); err != nil {
		return err
	}

	return s.index.DeleteUser(u.ID)
}

func (s *Synchronizer) resolvePair(ctx context.Context, userID string, groupID string) (*org.User, *org.Group, error) {
	users, err := s.index.Users(ctx)
	if err != nil {
		return nil, nil, err
	}

	u, ok := users[dn.Normalize(userID)]
	if !ok {
		return nil, nil, org.ErrUserNotFound
	}

	groups, err := s.index.Groups(ctx)
	if err != nil {
		return nil, nil, err
	}

	g, ok := groups[dn.Normalize(groupID)]
	if !ok {
		return nil, nil, org.ErrGroupNotFound
	}

	return u, g, nil
}

// AddUserToGroup adds a membership. A source report that the member is
// already present counts as success.
func (s *Synchronizer) AddUserToGroup(ctx context.Context, userID string, groupID string) error {
	u, g, err := s.resolvePair(ctx, userID, groupID)
	if err != nil {
		return err
	}

	err = s.source.Modify(ctx, g.DN, []directory.Delta{
		{Op: directory.AddValues, Attr: attrMember, Values: []string{u.DN}},
	})
	if err != nil && err != directory.ErrAlreadySatisfied {
		return err
	}

	if err = s.store.AddMembership(ctx, g.ID, u.ID, MemberUser); err != nil {
		return err
	}

	return s.index.AddUserToGroup(u.ID, g.ID)
}

// RemoveUserFromGroup removes a membership. A source report that the
// member is already absent counts as success; a schema refusal (last
// member of the group) is surfaced naming the relationship.
func (s *Synchronizer) RemoveUserFromGroup(ctx context.Context, userID string, groupID string) error {
	u, g, err := s.resolvePair(ctx, userID, groupID)
	if err != nil {
		return err
	}

	err = s.source.Modify(ctx, g.DN, []directory.Delta{
		{Op: directory.DeleteValues, Attr: attrMember, Values: []string{u.DN}},
	})
	switch {
	case err == nil, err == directory.ErrAlreadySatisfied:
	case errors.Cause(err) == directory.ErrSchemaViolation:
		return errors.Wrapf(directory.ErrSchemaViolation,
			"user %s cannot leave group %s: last member", u.ID, g.ID)
	default:
		return err
	}

	if err = s.store.RemoveMembership(ctx, g.ID, u.ID, MemberUser); err != nil {
		return err
	}

	return s.index.RemoveUserFromGroup(u.ID, g.ID)
}

func (s *Synchronizer) resolveGroupPair(ctx context.Context, subID string, groupID string) (*org.Group, *org.Group, error) {
	groups, err := s.index.Groups(ctx)
	if err != nil {
		return nil, nil, err
	}

	sub, ok := groups[dn.Normalize(subID)]
	if !ok {
		return nil, nil, org.ErrGroupNotFound
	}

	g, ok := groups[dn.Normalize(groupID)]
	if !ok {
		return nil, nil, org.ErrGroupNotFound
	}

	return sub, g, nil
}

// AddGroupToGroup nests sub under group.
func (s *Synchronizer) AddGroupToGroup(ctx context.Context, subID string, groupID string) error {
	sub, g, err := s.resolveGroupPair(ctx, subID, groupID)
	if err != nil {
		return err
	}

	err = s.source.Modify(ctx, g.DN, []directory.Delta{
		{Op: directory.AddValues, Attr: attrMember, Values: []string{sub.DN}},
	})
	if err != nil && err != directory.ErrAlreadySatisfied {
		return err
	}

	if err = s.store.AddMembership(ctx, g.ID, sub.ID, MemberGroup); err != nil {
		return err
	}

	return s.index.AddGroupToGroup(sub.ID, g.ID)
}

// RemoveGroupFromGroup detaches sub from group.
func (s *Synchronizer) RemoveGroupFromGroup(ctx context.Context, subID string, groupID string) error {
	sub, g, err := s.resolveGroupPair(ctx, subID, groupID)
	if err != nil {
		return err
	}

	err = s.source.Modify(ctx, g.DN, []directory.Delta{
		{Op: directory.DeleteValues, Attr: attrMember, Values: []string{sub.DN}},
	})
	switch {
	case err == nil, err == directory.ErrAlreadySatisfied:
	case errors.Cause(err) == directory.ErrSchemaViolation:
		return errors.Wrapf(directory.ErrSchemaViolation,
			"group %s cannot leave group %s: last member", sub.ID, g.ID)
	default:
		return err
	}

	if err = s.store.RemoveMembership(ctx, g.ID, sub.ID, MemberGroup); err != nil {
		return err
	}

	return s.index.RemoveGroupFromGroup(sub.ID, g.ID)
}

// EmptyGroup removes every user member of a group in one operation,
// re-seeding the source entry with the placeholder member so the
// schema invariant holds.
func (s *Synchronizer) EmptyGroup(ctx context.Context, groupID string) error {
	groups, err := s.index.Groups(ctx)
	if err != nil {
		return err
	}

	g, ok := groups[dn.Normalize(groupID)]
	if !ok {
		return org.ErrGroupNotFound
	}

	// nested sub-group references survive the purge
	remaining := []string{s.config.PlaceholderMemberDN}
	for subID := range g.SubGroups {
		if sub, ok := groups[subID]; ok {
			remaining = append(remaining, sub.DN)
		}
	}

	err = s.source.Modify(ctx, g.DN, []directory.Delta{
		{Op: directory.ReplaceValues, Attr: attrMember, Values: remaining},
	})
	if err != nil {
		return err
	}

	if err = s.store.EmptyGroup(ctx, g.ID); err != nil {
		return err
	}

	return s.index.EmptyGroup(g.ID)
}

// MoveUser relocates an account into another company, repointing the
// stale member references held by the user's groups.
func (s *Synchronizer) MoveUser(ctx context.Context, userID string, companyID string) (*org.User, error) {
	users, err := s.index.Users(ctx)
	if err != nil {
		return nil, err
	}

	u, ok := users[dn.Normalize(userID)]
	if !ok {
		return nil, org.ErrUserNotFound
	}

	companies, err := s.index.Companies(ctx)
	if err != nil {
		return nil, err
	}

	c, ok := companies[dn.Normalize(companyID)]
	if !ok {
		return nil, org.ErrCompanyNotFound
	}

	groups, err := s.index.Groups(ctx)
	if err != nil {
		return nil, err
	}

	oldDN := u.DN
	newDN := fmt.Sprintf("uid=%s,%s", u.ID, c.DN)

	if err = s.source.Rename(ctx, oldDN, newDN); err != nil {
		return nil, err
	}

	// every group member attribute still points at the old DN
	for groupID := range u.Groups {
		g, ok := groups[groupID]
		if !ok {
			continue
		}

		err = s.source.Modify(ctx, g.DN, []directory.Delta{
			{Op: directory.DeleteValues, Attr: attrMember, Values: []string{oldDN}},
		})
		if err != nil && err != directory.ErrAlreadySatisfied {
			return nil, err
		}

		err = s.source.Modify(ctx, g.DN, []directory.Delta{
			{Op: directory.AddValues, Attr: attrMember, Values: []string{newDN}},
		})
		if err != nil && err != directory.ErrAlreadySatisfied {
			return nil, err
		}
	}

	u.DN = newDN
	u.Company = c.ID

	if err = s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	return u, s.index.PutUser(u)
}

// IsolateUser moves an account into the quarantine company, recording
// the previous company for a later restore. Isolating an already
// isolated user is a no-op.
func (s *Synchronizer) IsolateUser(ctx context.Context, userID string) error {
	users, err := s.index.Users(ctx)
	if err != nil {
		return err
	}

	u, ok := users[dn.Normalize(userID)]
	if !ok {
		return org.ErrUserNotFound
	}

	if u.Isolated != "" {
		return nil
	}

	previous := u.Company

	quarantineID := dn.Normalize(dn.ToRDN(s.config.QuarantineDN))
	if u, err = s.MoveUser(ctx, u.ID, quarantineID); err != nil {
		return err
	}

	err = s.source.Modify(ctx, u.DN, []directory.Delta{
		{Op: directory.ReplaceValues, Attr: attrIsolated, Values: []string{previous}},
	})
	if err != nil {
		return err
	}

	u.Isolated = previous

	if err = s.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	return s.index.PutUser(u)
}

// RestoreUser moves a quarantined account back to its recorded
// company. Restoring a non-isolated user is a no-op.
func (s *Synchronizer) RestoreUser(ctx context.Context, userID string) error {
	users, err := s.index.Users(ctx)
	if err != nil {
		return err
	}

	u, ok := users[dn.Normalize(userID)]
	if !ok {
		return org.ErrUserNotFound
	}

	if u.Isolated == "" {
		return nil
	}

	target := u.Isolated

	if u, err = s.MoveUser(ctx, u.ID, target); err != nil {
		return err
	}

	err = s.source.Modify(ctx, u.DN, []directory.Delta{
		{Op: directory.DeleteValues, Attr: attrIsolated},
	})
	if err != nil && err != directory.ErrAlreadySatisfied {
		return err
	}

	u.Isolated = ""

	if err = s.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	return s.index.PutUser(u)
}

// LockUser marks an account locked by the given actor. Locking an
// already locked account is a no-op.
func (s *Synchronizer) LockUser(ctx context.Context, userID string, actor string) error {
	users, err := s.index.Users(ctx)
	if err != nil {
		return err
	}

	u, ok := users[dn.Normalize(userID)]
	if !ok {
		return org.ErrUserNotFound
	}

	if u.IsLocked() {
		return nil
	}

	lockedAt := time.Now().UTC().Format(time.RFC3339)

	err = s.source.Modify(ctx, u.DN, []directory.Delta{
		{Op: directory.ReplaceValues, Attr: attrLocked, Values: []string{lockedAt}},
		{Op: directory.ReplaceValues, Attr: attrLockedBy, Values: []string{actor}},
	})
	if err != nil {
		return err
	}

	u.Locked = lockedAt
	u.LockedBy = actor

	if err = s.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	return s.index.PutUser(u)
}

// UnlockUser clears the lock of an account.
func (s *Synchronizer) UnlockUser(ctx context.Context, userID string) error {
	users, err := s.index.Users(ctx)
	if err != nil {
		return err
	}

	u, ok := users[dn.Normalize(userID)]
	if !ok {
		return org.ErrUserNotFound
	}

	if !u.IsLocked() {
		return nil
	}

	err = s.source.Modify(ctx, u.DN, []directory.Delta{
		{Op: directory.DeleteValues, Attr: attrLocked},
		{Op: directory.DeleteValues, Attr: attrLockedBy},
	})
	if err != nil && err != directory.ErrAlreadySatisfied {
		return err
	}

	u.Locked = ""
	u.LockedBy = ""

	if err = s.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	return s.index.PutUser(u)
}
