package delegate

import (
	"context"

	"github.com/google/uuid"
	"github.com/orgmirror/orgmirror/pkg/dn"
	"github.com/orgmirror/orgmirror/pkg/org"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Directory is the read side of the mirrored directory; satisfied by
// the cache index.
type Directory interface {
	Companies(ctx context.Context) (map[string]*org.Company, error)
	Groups(ctx context.Context) (map[string]*org.Group, error)
	Users(ctx context.Context) (map[string]*org.User, error)
}

// Manager owns the delegation grants: creation, update and revocation
// are themselves authorization-checked against the caller's admin
// coverage, and resolution folds every grant reachable through the
// caller's groups and company into one effective right set.
type Manager struct {
	store     Store
	directory Directory
	logger    *zap.Logger
}

// NewManager wires the manager to its grant store and directory view.
func NewManager(store Store, directory Directory, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if directory == nil {
		return nil, ErrNilDirectory
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		store:     store,
		directory: directory,
		logger:    logger.Named("[delegate]"),
	}, nil
}

// receiverClosure returns every (kind, id) pair through which the
// given user can hold grants: the user itself, every transitive group,
// and every company on the ancestor chain of the user's company.
func (m *Manager) receiverClosure(ctx context.Context, u *org.User) ([]ReceiverRef, error) {
	refs := []ReceiverRef{{Kind: ReceiverUser, Receiver: u.ID}}

	groups, err := m.directory.Groups(ctx)
	if err != nil {
		return nil, err
	}

	for groupID := range org.TransitiveGroups(u, groups) {
		refs = append(refs, ReceiverRef{Kind: ReceiverGroup, Receiver: groupID})
	}

	if u.Company != "" {
		companies, err := m.directory.Companies(ctx)
		if err != nil {
			return nil, err
		}

		if c, ok := companies[u.Company]; ok {
			for _, ancestorID := range c.AncestorChain {
				refs = append(refs, ReceiverRef{Kind: ReceiverCompany, Receiver: ancestorID})
			}
		}
	}

	return refs, nil
}

// RightsFor computes the effective rights of a principal over the
// given DN. Every account implicitly reads its own company subtree;
// everything beyond that must come from a grant covering the DN.
func (m *Manager) RightsFor(ctx context.Context, principalID string, targetDN string) (Rights, error) {
	users, err := m.directory.Users(ctx)
	if err != nil {
		return Rights{}, err
	}

	u, ok := users[dn.Normalize(principalID)]
	if !ok {
		return Rights{}, org.ErrUserNotFound
	}

	var rights Rights

	if u.Company != "" {
		companies, err := m.directory.Companies(ctx)
		if err != nil {
			return Rights{}, err
		}

		if c, ok := companies[u.Company]; ok && dn.EqualsOrParentOf(c.DN, targetDN) {
			rights.CanRead = true
		}
	}

	refs, err := m.receiverClosure(ctx, u)
	if err != nil {
		return Rights{}, err
	}

	grants, err := m.store.FetchGrantsByReceivers(ctx, refs)
	if err != nil {
		return Rights{}, err
	}

	for _, g := range grants {
		if dn.EqualsOrParentOf(g.DN, targetDN) {
			rights.merge(g)
		}
	}

	return rights, nil
}

// ReceivedBy returns every grant the principal holds, directly or
// through its groups and company.
func (m *Manager) ReceivedBy(ctx context.Context, principalID string) ([]Grant, error) {
	users, err := m.directory.Users(ctx)
	if err != nil {
		return nil, err
	}

	u, ok := users[dn.Normalize(principalID)]
	if !ok {
		return nil, org.ErrUserNotFound
	}

	refs, err := m.receiverClosure(ctx, u)
	if err != nil {
		return nil, err
	}

	return m.store.FetchGrantsByReceivers(ctx, refs)
}

// CreateGrantRequest carries the attributes of a new or updated grant.
// Scope is the identifier of the covered company or group, or the raw
// DN of the covered subtree for a tree grant.
type CreateGrantRequest struct {
	Kind         Kind
	Scope        string
	ReceiverKind ReceiverKind
	Receiver     string
	CanWrite     bool
	CanAdmin     bool
}

// resolveScope turns the requested scope into its subtree DN and
// normalized name. An unknown company or group scope is reported as
// not found regardless of whether it exists outside the caller's
// sight.
func (m *Manager) resolveScope(ctx context.Context, kind Kind, scope string) (name string, scopeDN string, err error) {
	switch kind {
	case KindCompany:
		companies, err := m.directory.Companies(ctx)
		if err != nil {
			return "", "", err
		}

		c, ok := companies[dn.Normalize(scope)]
		if !ok {
			return "", "", ErrScopeNotFound
		}

		return c.ID, c.DN, nil

	case KindGroup:
		groups, err := m.directory.Groups(ctx)
		if err != nil {
			return "", "", err
		}

		g, ok := groups[dn.Normalize(scope)]
		if !ok {
			return "", "", ErrScopeNotFound
		}

		return g.ID, g.DN, nil

	case KindTree:
		if !dn.IsValid(scope) {
			return "", "", errors.Wrapf(ErrInvalidTreeDN, "%q", scope)
		}

		return "", scope, nil
	}

	return "", "", errors.Wrapf(ErrUnknownKind, "%q", kind)
}

// resolveReceiver resolves the receiver identifier to its normalized
// ID and current DN.
func (m *Manager) resolveReceiver(ctx context.Context, kind ReceiverKind, receiver string) (id string, receiverDN string, err error) {
	switch kind {
	case ReceiverUser:
		users, err := m.directory.Users(ctx)
		if err != nil {
			return "", "", err
		}

		u, ok := users[dn.Normalize(receiver)]
		if !ok {
			return "", "", ErrReceiverNotFound
		}

		return u.ID, u.DN, nil

	case ReceiverGroup:
		groups, err := m.directory.Groups(ctx)
		if err != nil {
			return "", "", err
		}

		g, ok := groups[dn.Normalize(receiver)]
		if !ok {
			return "", "", ErrReceiverNotFound
		}

		return g.ID, g.DN, nil

	case ReceiverCompany:
		companies, err := m.directory.Companies(ctx)
		if err != nil {
			return "", "", err
		}

		c, ok := companies[dn.Normalize(receiver)]
		if !ok {
			return "", "", ErrReceiverNotFound
		}

		return c.ID, c.DN, nil
	}

	return "", "", errors.Wrapf(ErrUnknownReceiver, "%q", kind)
}

func (m *Manager) build(ctx context.Context, req CreateGrantRequest) (Grant, error) {
	if err := req.Kind.Validate(); err != nil {
		return Grant{}, err
	}

	if err := req.ReceiverKind.Validate(); err != nil {
		return Grant{}, err
	}

	name, scopeDN, err := m.resolveScope(ctx, req.Kind, req.Scope)
	if err != nil {
		return Grant{}, err
	}

	receiver, receiverDN, err := m.resolveReceiver(ctx, req.ReceiverKind, req.Receiver)
	if err != nil {
		return Grant{}, err
	}

	return Grant{
		Kind:         req.Kind,
		Name:         name,
		DN:           scopeDN,
		ReceiverKind: req.ReceiverKind,
		Receiver:     receiver,
		ReceiverDN:   receiverDN,
		CanWrite:     req.CanWrite,
		CanAdmin:     req.CanAdmin,
	}, nil
}

// authorize verifies the principal administers the given subtree.
func (m *Manager) authorize(ctx context.Context, principalID string, scopeDN string) error {
	rights, err := m.RightsFor(ctx, principalID, scopeDN)
	if err != nil {
		return err
	}

	if !rights.Covers(Rights{CanAdmin: true}) {
		return errors.Wrapf(ErrNotAuthorized, "%s over %s", principalID, scopeDN)
	}

	return nil
}

// Create hands out a new grant. The principal must administer the
// covered subtree.
func (m *Manager) Create(ctx context.Context, principalID string, req CreateGrantRequest) (Grant, error) {
	g, err := m.build(ctx, req)
	if err != nil {
		return Grant{}, err
	}

	if err = m.authorize(ctx, principalID, g.DN); err != nil {
		return Grant{}, err
	}

	g.ID = uuid.New()

	if err = m.store.CreateGrant(ctx, g); err != nil {
		return Grant{}, err
	}

	m.logger.Info("grant created",
		zap.String("id", g.ID.String()),
		zap.String("kind", string(g.Kind)),
		zap.String("dn", g.DN),
		zap.String("receiver", g.Receiver),
	)

	return g, nil
}

// Update replaces an existing grant. The principal must administer
// both the previously covered subtree and the new one.
func (m *Manager) Update(ctx context.Context, principalID string, id uuid.UUID, req CreateGrantRequest) (Grant, error) {
	existing, err := m.store.FetchGrantByID(ctx, id)
	if err != nil {
		return Grant{}, err
	}

	g, err := m.build(ctx, req)
	if err != nil {
		return Grant{}, err
	}

	if err = m.authorize(ctx, principalID, existing.DN); err != nil {
		return Grant{}, err
	}

	if dn.Normalize(g.DN) != dn.Normalize(existing.DN) {
		if err = m.authorize(ctx, principalID, g.DN); err != nil {
			return Grant{}, err
		}
	}

	g.ID = existing.ID

	if err = m.store.UpdateGrant(ctx, g); err != nil {
		return Grant{}, err
	}

	return g, nil
}

// Revoke removes a grant. The principal must administer the covered
// subtree.
func (m *Manager) Revoke(ctx context.Context, principalID string, id uuid.UUID) error {
	g, err := m.store.FetchGrantByID(ctx, id)
	if err != nil {
		return err
	}

	if err = m.authorize(ctx, principalID, g.DN); err != nil {
		return err
	}

	if err = m.store.DeleteGrant(ctx, g.ID); err != nil {
		return err
	}

	m.logger.Info("grant revoked",
		zap.String("id", g.ID.String()),
		zap.String("dn", g.DN),
	)

	return nil
}

// Repair reconciles the persisted grants with a fresh directory
// snapshot: the stored DNs follow renamed companies and groups, and
// grants whose scope or receiver no longer exists are deleted.
func (m *Manager) Repair(ctx context.Context, companies map[string]*org.Company, groups map[string]*org.Group) error {
	grants, err := m.store.FetchAllGrants(ctx)
	if err != nil {
		return err
	}

	for _, g := range grants {
		doomed := false
		dirty := false

		switch g.Kind {
		case KindCompany:
			if c, ok := companies[g.Name]; ok {
				if g.DN != c.DN {
					g.DN = c.DN
					dirty = true
				}
			} else {
				doomed = true
			}

		case KindGroup:
			if gr, ok := groups[g.Name]; ok {
				if g.DN != gr.DN {
					g.DN = gr.DN
					dirty = true
				}
			} else {
				doomed = true
			}
		}

		if !doomed {
			switch g.ReceiverKind {
			case ReceiverGroup:
				if gr, ok := groups[g.Receiver]; ok {
					if g.ReceiverDN != gr.DN {
						g.ReceiverDN = gr.DN
						dirty = true
					}
				} else {
					doomed = true
				}

			case ReceiverCompany:
				if c, ok := companies[g.Receiver]; ok {
					if g.ReceiverDN != c.DN {
						g.ReceiverDN = c.DN
						dirty = true
					}
				} else {
					doomed = true
				}
			}
		}

		switch {
		case doomed:
			if err = m.store.DeleteGrant(ctx, g.ID); err != nil {
				return err
			}

			m.logger.Warn("stale grant deleted",
				zap.String("id", g.ID.String()),
				zap.String("dn", g.DN),
				zap.String("receiver", g.Receiver),
			)

		case dirty:
			if err = m.store.UpdateGrant(ctx, g); err != nil {
				return err
			}

			m.logger.Info("grant repaired",
				zap.String("id", g.ID.String()),
				zap.String("dn", g.DN),
			)
		}
	}

	return nil
}
