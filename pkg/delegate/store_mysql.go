package delegate

import (
	"context"
	"database/sql"

	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MySQLStore is the default grant store.
type MySQLStore struct {
	db *dbr.Connection
}

// NewMySQLStore returns a grant store backed by MySQL.
func NewMySQLStore(db *dbr.Connection) (*MySQLStore, error) {
	if db == nil {
		return nil, ErrNilStore
	}

	return &MySQLStore{db: db}, nil
}

// grantRow is the flat table shape of Grant; the UUID travels as its
// canonical string form.
type grantRow struct {
	ID           string `db:"id"`
	Kind         string `db:"kind"`
	Name         string `db:"name"`
	DN           string `db:"dn"`
	ReceiverKind string `db:"receiver_kind"`
	Receiver     string `db:"receiver"`
	ReceiverDN   string `db:"receiver_dn"`
	CanWrite     bool   `db:"can_write"`
	CanAdmin     bool   `db:"can_admin"`
}

func newGrantRow(g Grant) grantRow {
	return grantRow{
		ID:           g.ID.String(),
		Kind:         string(g.Kind),
		Name:         g.Name,
		DN:           g.DN,
		ReceiverKind: string(g.ReceiverKind),
		Receiver:     g.Receiver,
		ReceiverDN:   g.ReceiverDN,
		CanWrite:     g.CanWrite,
		CanAdmin:     g.CanAdmin,
	}
}

func (r grantRow) grant() (Grant, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Grant{}, errors.Wrapf(err, "malformed grant id %q", r.ID)
	}

	return Grant{
		ID:           id,
		Kind:         Kind(r.Kind),
		Name:         r.Name,
		DN:           r.DN,
		ReceiverKind: ReceiverKind(r.ReceiverKind),
		Receiver:     r.Receiver,
		ReceiverDN:   r.ReceiverDN,
		CanWrite:     r.CanWrite,
		CanAdmin:     r.CanAdmin,
	}, nil
}

// CreateGrant persists a new grant.
func (s *MySQLStore) CreateGrant(ctx context.Context, g Grant) error {
	_, err := s.db.NewSession(nil).
		InsertInto("delegate_grant").
		Columns("id", "kind", "name", "dn", "receiver_kind", "receiver", "receiver_dn", "can_write", "can_admin").
		Record(newGrantRow(g)).
		ExecContext(ctx)

	return errors.Wrap(err, "failed to create grant")
}

// UpdateGrant replaces a persisted grant by ID.
func (s *MySQLStore) UpdateGrant(ctx context.Context, g Grant) error {
	row := newGrantRow(g)

	result, err := s.db.NewSession(nil).
		Update("delegate_grant").
		Set("kind", row.Kind).
		Set("name", row.Name).
		Set("dn", row.DN).
		Set("receiver_kind", row.ReceiverKind).
		Set("receiver", row.Receiver).
		Set("receiver_dn", row.ReceiverDN).
		Set("can_write", row.CanWrite).
		Set("can_admin", row.CanAdmin).
		Where("id = ?", row.ID).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to update grant")
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrGrantNotFound
	}

	return nil
}

// DeleteGrant removes a grant by ID.
func (s *MySQLStore) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewSession(nil).
		DeleteFrom("delegate_grant").
		Where("id = ?", id.String()).
		ExecContext(ctx)

	return errors.Wrap(err, "failed to delete grant")
}

// FetchGrantByID returns a single grant.
func (s *MySQLStore) FetchGrantByID(ctx context.Context, id uuid.UUID) (Grant, error) {
	var row grantRow

	err := s.db.NewSession(nil).
		Select("*").
		From("delegate_grant").
		Where("id = ?", id.String()).
		LoadOneContext(ctx, &row)
	if err != nil {
		if err == dbr.ErrNotFound || err == sql.ErrNoRows {
			return Grant{}, ErrGrantNotFound
		}

		return Grant{}, errors.Wrap(err, "failed to fetch grant")
	}

	return row.grant()
}

// FetchAllGrants returns every persisted grant.
func (s *MySQLStore) FetchAllGrants(ctx context.Context) ([]Grant, error) {
	var rows []grantRow

	_, err := s.db.NewSession(nil).
		Select("*").
		From("delegate_grant").
		LoadContext(ctx, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch grants")
	}

	grants := make([]Grant, 0, len(rows))
	for _, row := range rows {
		g, err := row.grant()
		if err != nil {
			return nil, err
		}

		grants = append(grants, g)
	}

	return grants, nil
}

// FetchGrantsByReceivers returns the grants held by any of the given
// receiver references.
func (s *MySQLStore) FetchGrantsByReceivers(ctx context.Context, refs []ReceiverRef) ([]Grant, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	conds := make([]dbr.Builder, 0, len(refs))
	for _, ref := range refs {
		conds = append(conds, dbr.And(
			dbr.Eq("receiver_kind", string(ref.Kind)),
			dbr.Eq("receiver", ref.Receiver),
		))
	}

	var rows []grantRow

	_, err := s.db.NewSession(nil).
		Select("*").
		From("delegate_grant").
		Where(dbr.Or(conds...)).
		LoadContext(ctx, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch grants by receiver")
	}

	grants := make([]Grant, 0, len(rows))
	for _, row := range rows {
		g, err := row.grant()
		if err != nil {
			return nil, err
		}

		grants = append(grants, g)
	}

	return grants, nil
}
