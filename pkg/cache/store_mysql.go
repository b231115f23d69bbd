package cache

import (
	"context"

	"github.com/gocraft/dbr/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/orgmirror/orgmirror/pkg/org"
	"github.com/pkg/errors"
)

// flushBatchSize bounds the amount of rows per bulk insert statement
// during a reset, to keep transaction memory flat on large directories.
const flushBatchSize = 500

// MySQLStore is the default persisted cache implementation.
type MySQLStore struct {
	db *dbr.Connection
}

// NewMySQLStore returns a persisted cache backed by MySQL.
func NewMySQLStore(db *dbr.Connection) (*MySQLStore, error) {
	if db == nil {
		return nil, ErrNilStore
	}

	return &MySQLStore{db: db}, nil
}

// userRow is the flat table shape of org.User; the mail list is kept
// as a JSON column since only the mirror ever reads it back.
type userRow struct {
	ID        string `db:"id"`
	DN        string `db:"dn"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Mails     string `db:"mails"`
	Company   string `db:"company"`
	Locked    string `db:"locked"`
	LockedBy  string `db:"locked_by"`
	Isolated  string `db:"isolated"`
}

func newUserRow(u *org.User) (userRow, error) {
	mails, err := jsoniter.MarshalToString(u.Mails)
	if err != nil {
		return userRow{}, errors.Wrap(err, "failed to encode user mails")
	}

	return userRow{
		ID:        u.ID,
		DN:        u.DN,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Mails:     mails,
		Company:   u.Company,
		Locked:    u.Locked,
		LockedBy:  u.LockedBy,
		Isolated:  u.Isolated,
	}, nil
}

// Reset rebuilds every cached table from the snapshot inside a single
// transaction: clear all, then staged bulk inserts. A failure rolls
// everything back, leaving the previous rows untouched.
func (s *MySQLStore) Reset(ctx context.Context, snap *Snapshot) error {
	sess := s.db.NewSession(nil)

	tx, err := sess.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin reset transaction")
	}
	defer tx.RollbackUnlessCommitted()

	for _, table := range []string{"cache_membership", "cache_user", "cache_group", "cache_company"} {
		if _, err = tx.DeleteFrom(table).ExecContext(ctx); err != nil {
			return errors.Wrapf(err, "failed to clear %s", table)
		}
	}

	//---------------------------------------------------------------------------
	// stage 1: companies
	//---------------------------------------------------------------------------
	stmt := tx.InsertInto("cache_company").Columns("id", "dn", "name", "locked")
	pending := 0
	for _, c := range snap.Companies {
		stmt.Record(c)
		if pending++; pending == flushBatchSize {
			if _, err = stmt.ExecContext(ctx); err != nil {
				return errors.Wrap(err, "failed to insert companies")
			}

			stmt = tx.InsertInto("cache_company").Columns("id", "dn", "name", "locked")
			pending = 0
		}
	}
	if pending > 0 {
		if _, err = stmt.ExecContext(ctx); err != nil {
			return errors.Wrap(err, "failed to insert companies")
		}
	}

	//---------------------------------------------------------------------------
	// stage 2: groups
	//---------------------------------------------------------------------------
	stmt = tx.InsertInto("cache_group").Columns("id", "dn", "name")
	pending = 0
	for _, g := range snap.Groups {
		stmt.Record(g)
		if pending++; pending == flushBatchSize {
			if _, err = stmt.ExecContext(ctx); err != nil {
				return errors.Wrap(err, "failed to insert groups")
			}

			stmt = tx.InsertInto("cache_group").Columns("id", "dn", "name")
			pending = 0
		}
	}
	if pending > 0 {
		if _, err = stmt.ExecContext(ctx); err != nil {
			return errors.Wrap(err, "failed to insert groups")
		}
	}

	//---------------------------------------------------------------------------
	// stage 3: users, with their membership rows per user
	//---------------------------------------------------------------------------
	for _, u := range snap.Users {
		row, err := newUserRow(u)
		if err != nil {
			return err
		}

		if _, err = tx.InsertInto("cache_user").
			Columns("id", "dn", "first_name", "last_name", "mails", "company", "locked", "locked_by", "isolated").
			Record(&row).
			ExecContext(ctx); err != nil {
			return errors.Wrapf(err, "failed to insert user %s", u.ID)
		}

		for groupID := range u.Groups {
			if _, err = tx.InsertInto("cache_membership").
				Columns("group_id", "member_id", "kind").
				Values(groupID, u.ID, MemberUser).
				ExecContext(ctx); err != nil {
				return errors.Wrapf(err, "failed to insert membership of %s", u.ID)
			}
		}
	}

	//---------------------------------------------------------------------------
	// stage 4: derived group-to-group rows
	//---------------------------------------------------------------------------
	for _, g := range snap.Groups {
		for subID := range g.SubGroups {
			if _, err = tx.InsertInto("cache_membership").
				Columns("group_id", "member_id", "kind").
				Values(g.ID, subID, MemberGroup).
				ExecContext(ctx); err != nil {
				return errors.Wrapf(err, "failed to insert sub-group row of %s", g.ID)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit reset transaction")
	}

	return nil
}

func (s *MySQLStore) CreateCompany(ctx context.Context, c *org.Company) error {
	_, err := s.db.NewSession(nil).
		InsertInto("cache_company").
		Columns("id", "dn", "name", "locked").
		Record(c).
		ExecContext(ctx)

	return err
}

func (s *MySQLStore) CreateGroup(ctx context.Context, g *org.Group) error {
	_, err := s.db.NewSession(nil).
		InsertInto("cache_group").
		Columns("id", "dn", "name").
		Record(g).
		ExecContext(ctx)

	return err
}

func (s *MySQLStore) CreateUser(ctx context.Context, u *org.User) error {
	row, err := newUserRow(u)
	if err != nil {
		return err
	}

	_, err = s.db.NewSession(nil).
		InsertInto("cache_user").
		Columns("id", "dn", "first_name", "last_name", "mails", "company", "locked", "locked_by", "isolated").
		Record(&row).
		ExecContext(ctx)

	return err
}

func (s *MySQLStore) UpdateUser(ctx context.Context, u *org.User) error {
	row, err := newUserRow(u)
	if err != nil {
		return err
	}

	res, err := s.db.NewSession(nil).
		Update("cache_user").
		SetMap(map[string]interface{}{
			"dn":         row.DN,
			"first_name": row.FirstName,
			"last_name":  row.LastName,
			"mails":      row.Mails,
			"company":    row.Company,
			"locked":     row.Locked,
			"locked_by":  row.LockedBy,
			"isolated":   row.Isolated,
		}).
		Where("id = ?", u.ID).
		ExecContext(ctx)
	if err != nil {
		return err
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if ra == 0 {
		return ErrNothingChanged
	}

	return nil
}

func (s *MySQLStore) DeleteCompany(ctx context.Context, id string) error {
	_, err := s.db.NewSession(nil).
		DeleteFrom("cache_company").
		Where("id = ?", id).
		ExecContext(ctx)

	return err
}

// DeleteGroup removes the group row together with every membership row
// referencing it from either side.
func (s *MySQLStore) DeleteGroup(ctx context.Context, id string) error {
	sess := s.db.NewSession(nil)

	tx, err := sess.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.RollbackUnlessCommitted()

	if _, err = tx.DeleteFrom("cache_membership").
		Where("group_id = ? OR (member_id = ? AND kind = ?)", id, id, MemberGroup).
		ExecContext(ctx); err != nil {
		return err
	}

	if _, err = tx.DeleteFrom("cache_group").Where("id = ?", id).ExecContext(ctx); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit group deletion")
}

func (s *MySQLStore) DeleteUser(ctx context.Context, id string) error {
	sess := s.db.NewSession(nil)

	tx, err := sess.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.RollbackUnlessCommitted()

	if _, err = tx.DeleteFrom("cache_membership").
		Where("member_id = ? AND kind = ?", id, MemberUser).
		ExecContext(ctx); err != nil {
		return err
	}

	if _, err = tx.DeleteFrom("cache_user").Where("id = ?", id).ExecContext(ctx); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit user deletion")
}

func (s *MySQLStore) AddMembership(ctx context.Context, groupID string, memberID string, kind MemberKind) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT IGNORE INTO cache_membership (group_id, member_id, kind) VALUES (?, ?, ?)",
		groupID,
		memberID,
		kind,
	)

	return err
}

func (s *MySQLStore) RemoveMembership(ctx context.Context, groupID string, memberID string, kind MemberKind) error {
	_, err := s.db.NewSession(nil).
		DeleteFrom("cache_membership").
		Where("group_id = ? AND member_id = ? AND kind = ?", groupID, memberID, kind).
		ExecContext(ctx)

	return err
}

func (s *MySQLStore) EmptyGroup(ctx context.Context, groupID string) error {
	_, err := s.db.NewSession(nil).
		DeleteFrom("cache_membership").
		Where("group_id = ? AND kind = ?", groupID, MemberUser).
		ExecContext(ctx)

	return err
}
