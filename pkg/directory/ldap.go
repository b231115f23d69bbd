package directory

import (
	"context"
	"crypto/tls"
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/orgmirror/orgmirror/pkg/dn"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LDAPConfig carries the connection settings of the LDAP source.
type LDAPConfig struct {
	URL          string `valid:"required"`
	BindDN       string `valid:"required"`
	BindPassword string `valid:"required"`
	SkipTLS      bool
}

// LDAPSource is the production Source implementation over LDAP.
type LDAPSource struct {
	conn   *ldap.Conn
	config LDAPConfig
	logger *zap.Logger
}

// NewLDAPSource dials the configured LDAP server and binds with the
// service credentials.
func NewLDAPSource(config LDAPConfig, logger *zap.Logger) (*LDAPSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("[ldap]")

	conn, err := dial(config)
	if err != nil {
		return nil, err
	}

	logger.Info("bound to directory", zap.String("url", config.URL))

	return &LDAPSource{
		conn:   conn,
		config: config,
		logger: logger,
	}, nil
}

func dial(config LDAPConfig) (*ldap.Conn, error) {
	var opts []ldap.DialOpt
	if config.SkipTLS {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}

	conn, err := ldap.DialURL(config.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(ErrSourceUnavailable, err.Error())
	}

	if err = conn.Bind(config.BindDN, config.BindPassword); err != nil {
		conn.Close()
		return nil, errors.Wrap(ErrSourceUnavailable, err.Error())
	}

	return conn, nil
}

// Close releases the underlying connection.
func (s *LDAPSource) Close() error {
	return s.conn.Close()
}

// translate maps an LDAP result code onto the package error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists),
		ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchAttribute):
		// the requested state already holds: either the value is
		// already present, or the value to remove is already gone
		return ErrAlreadySatisfied

	case ldap.IsErrorWithCode(err, ldap.LDAPResultObjectClassViolation),
		ldap.IsErrorWithCode(err, ldap.LDAPResultNotAllowedOnNonLeaf):
		return errors.Wrap(ErrSchemaViolation, err.Error())

	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return ErrEntryNotFound

	case ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists):
		return ErrEntryExists

	case ldap.IsErrorWithCode(err, ldap.ErrorNetwork):
		return errors.Wrap(ErrSourceUnavailable, err.Error())
	}

	return err
}

// SearchAll returns all entries below baseDN matching the filter.
func (s *LDAPSource) SearchAll(ctx context.Context, baseDN string, filter string) ([]RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{"*"},
		nil,
	)

	res, err := s.conn.Search(req)
	if err != nil {
		return nil, translate(err)
	}

	entries := make([]RawEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		attrs := make(map[string][]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[strings.ToLower(a.Name)] = a.Values
		}

		entries = append(entries, RawEntry{DN: e.DN, Attrs: attrs})
	}

	return entries, nil
}

// Bind creates a new entry.
func (s *LDAPSource) Bind(ctx context.Context, entryDN string, attrs map[string][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := ldap.NewAddRequest(entryDN, nil)
	for name, values := range attrs {
		req.Attribute(name, values)
	}

	return translate(s.conn.Add(req))
}

// Modify applies attribute deltas to an existing entry.
func (s *LDAPSource) Modify(ctx context.Context, entryDN string, deltas []Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := ldap.NewModifyRequest(entryDN, nil)
	for _, d := range deltas {
		switch d.Op {
		case AddValues:
			req.Add(d.Attr, d.Values)
		case DeleteValues:
			req.Delete(d.Attr, d.Values)
		case ReplaceValues:
			req.Replace(d.Attr, d.Values)
		}
	}

	return translate(s.conn.Modify(req))
}

// Rename moves an entry to a new DN.
func (s *LDAPSource) Rename(ctx context.Context, oldDN string, newDN string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	segments := dn.Split(newDN)
	if len(segments) == 0 {
		return ErrEntryNotFound
	}

	req := ldap.NewModifyDNRequest(oldDN, segments[0], true, strings.Join(segments[1:], ","))

	return translate(s.conn.ModifyDN(req))
}

// Unbind deletes an entry. With recursive set, the subtree entries are
// deleted leaf-first.
func (s *LDAPSource) Unbind(ctx context.Context, entryDN string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !recursive {
		return translate(s.conn.Del(ldap.NewDelRequest(entryDN, nil)))
	}

	children, err := s.SearchAll(ctx, entryDN, "(objectClass=*)")
	if err != nil {
		return err
	}

	// deepest entries first so that every delete hits a leaf
	sort.Slice(children, func(i, j int) bool {
		return dn.Depth(children[i].DN) > dn.Depth(children[j].DN)
	})

	s.logger.Debug("deleting subtree",
		zap.String("dn", entryDN),
		zap.Int("entries", len(children)),
	)

	for _, child := range children {
		if err = translate(s.conn.Del(ldap.NewDelRequest(child.DN, nil))); err != nil && err != ErrEntryNotFound {
			return err
		}
	}

	return nil
}

// Authenticate verifies the credential of the entry at dn by binding
// on a dedicated connection.
func (s *LDAPSource) Authenticate(ctx context.Context, entryDN string, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	conn, err := dial(s.config)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err = conn.Bind(entryDN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return false, nil
		}

		return false, translate(err)
	}

	return true, nil
}
