// Package directory defines the interface to the external hierarchical
// directory which is the system of record, together with its error
// taxonomy. Entries are addressed by DN; the package never interprets
// entry semantics, that is left to the synchronizer.
package directory

import (
	"context"

	"github.com/pkg/errors"
)

// errors
var (
	// ErrAlreadySatisfied means the directory reports the mutation's
	// target state already holds. Callers treat this as success.
	ErrAlreadySatisfied = errors.New("directory state already satisfied")

	// ErrSchemaViolation means the directory rejected a mutation that
	// would violate a structural invariant, e.g. removing the last
	// member of a group.
	ErrSchemaViolation = errors.New("directory schema violation")

	// ErrSourceUnavailable covers connection and protocol failures.
	ErrSourceUnavailable = errors.New("directory source unavailable")

	ErrEntryNotFound = errors.New("directory entry not found")
	ErrEntryExists   = errors.New("directory entry already exists")
)

// DeltaOp designates the kind of an attribute modification.
type DeltaOp uint8

// attribute modification kinds
const (
	AddValues DeltaOp = iota + 1
	DeleteValues
	ReplaceValues
)

// Delta is a single attribute modification applied by Modify.
type Delta struct {
	Op     DeltaOp
	Attr   string
	Values []string
}

// RawEntry is an uninterpreted directory entry: its DN plus all
// fetched attributes, multi-valued.
type RawEntry struct {
	DN    string
	Attrs map[string][]string
}

// Attr returns the first value of the named attribute, or empty.
func (e RawEntry) Attr(name string) string {
	if vs := e.Attrs[name]; len(vs) > 0 {
		return vs[0]
	}

	return ""
}

// AttrValues returns all values of the named attribute.
func (e RawEntry) AttrValues(name string) []string {
	return e.Attrs[name]
}

// Source is the external directory. All operations are blocking I/O
// and honor the caller's context deadline.
type Source interface {
	// SearchAll returns every entry of the subtree under baseDN
	// matching the given filter.
	SearchAll(ctx context.Context, baseDN string, filter string) ([]RawEntry, error)

	// Bind creates a new entry at the given DN.
	Bind(ctx context.Context, dn string, attrs map[string][]string) error

	// Modify applies the attribute deltas to an existing entry.
	Modify(ctx context.Context, dn string, deltas []Delta) error

	// Rename moves an entry to a new DN.
	Rename(ctx context.Context, oldDN string, newDN string) error

	// Unbind deletes an entry; with recursive set, the whole subtree.
	Unbind(ctx context.Context, dn string, recursive bool) error

	// Authenticate verifies the credential of the entry at dn.
	Authenticate(ctx context.Context, dn string, password string) (bool, error)
}
