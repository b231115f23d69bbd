package directory

import (
	"context"
	"strings"
	"sync"

	"github.com/orgmirror/orgmirror/pkg/dn"
)

// memoryEntry is a stored entry with its original-case DN.
type memoryEntry struct {
	dn    string
	attrs map[string][]string
}

// MemorySource is an in-memory Source implementation mirroring the
// directory's mutation semantics; used by tests and local development.
type MemorySource struct {
	entries map[string]*memoryEntry

	// attributes which must keep at least one value on an entry that
	// carries them; deleting the last value is a schema violation
	required map[string]bool

	sync.RWMutex
}

// NewMemorySource returns an empty in-memory directory. The
// uniquemember attribute is structural: a group cannot lose its last
// member.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		entries:  make(map[string]*memoryEntry),
		required: map[string]bool{"uniquemember": true},
	}
}

func cloneValues(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// matchFilter supports the equality and presence filters used by the
// synchronizer: "(attr=value)" and "(attr=*)".
func matchFilter(e *memoryEntry, filter string) bool {
	filter = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(filter), "("), ")")

	attr, value, found := strings.Cut(filter, "=")
	if !found {
		return false
	}

	attr = strings.ToLower(strings.TrimSpace(attr))
	if value == "*" {
		return len(e.attrs[attr]) > 0
	}

	for _, v := range e.attrs[attr] {
		if strings.EqualFold(v, value) {
			return true
		}
	}

	return false
}

// SearchAll returns all entries at or below baseDN matching the filter.
func (s *MemorySource) SearchAll(ctx context.Context, baseDN string, filter string) ([]RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	entries := make([]RawEntry, 0)
	for _, e := range s.entries {
		if !dn.EqualsOrParentOf(baseDN, e.dn) {
			continue
		}

		if !matchFilter(e, filter) {
			continue
		}

		attrs := make(map[string][]string, len(e.attrs))
		for name, values := range e.attrs {
			attrs[name] = cloneValues(values)
		}

		entries = append(entries, RawEntry{DN: e.dn, Attrs: attrs})
	}

	return entries, nil
}

// Bind creates a new entry.
func (s *MemorySource) Bind(ctx context.Context, entryDN string, attrs map[string][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	key := dn.Normalize(entryDN)
	if _, ok := s.entries[key]; ok {
		return ErrEntryExists
	}

	stored := make(map[string][]string, len(attrs))
	for name, values := range attrs {
		stored[strings.ToLower(name)] = cloneValues(values)
	}

	s.entries[key] = &memoryEntry{dn: entryDN, attrs: stored}

	return nil
}

// Modify applies attribute deltas to an existing entry.
func (s *MemorySource) Modify(ctx context.Context, entryDN string, deltas []Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	e, ok := s.entries[dn.Normalize(entryDN)]
	if !ok {
		return ErrEntryNotFound
	}

	for _, d := range deltas {
		attr := strings.ToLower(d.Attr)

		switch d.Op {
		case AddValues:
			for _, v := range d.Values {
				for _, existing := range e.attrs[attr] {
					if strings.EqualFold(existing, v) {
						return ErrAlreadySatisfied
					}
				}

				e.attrs[attr] = append(e.attrs[attr], v)
			}

		case DeleteValues:
			if len(d.Values) == 0 {
				delete(e.attrs, attr)
				continue
			}

			for _, v := range d.Values {
				values := e.attrs[attr]

				index := -1
				for i, existing := range values {
					if strings.EqualFold(existing, v) {
						index = i
						break
					}
				}

				if index == -1 {
					return ErrAlreadySatisfied
				}

				if s.required[attr] && len(values) == 1 {
					return ErrSchemaViolation
				}

				e.attrs[attr] = append(values[:index], values[index+1:]...)
			}

		case ReplaceValues:
			if len(d.Values) == 0 {
				delete(e.attrs, attr)
				continue
			}

			e.attrs[attr] = cloneValues(d.Values)
		}
	}

	return nil
}

// Rename moves an entry, rewriting the DN of its whole subtree.
func (s *MemorySource) Rename(ctx context.Context, oldDN string, newDN string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	oldKey := dn.Normalize(oldDN)
	if _, ok := s.entries[oldKey]; !ok {
		return ErrEntryNotFound
	}

	moved := make(map[string]*memoryEntry)
	for key, e := range s.entries {
		if !dn.EqualsOrParentOf(oldDN, e.dn) {
			continue
		}

		rewritten := newDN
		if key != oldKey {
			// keep the original-case leading segments of the moved entry
			keep := dn.Depth(e.dn) - dn.Depth(oldDN)
			rewritten = strings.Join(dn.Split(e.dn)[:keep], ",") + "," + newDN
		}

		delete(s.entries, key)
		e.dn = rewritten
		moved[dn.Normalize(rewritten)] = e
	}

	for key, e := range moved {
		s.entries[key] = e
	}

	return nil
}

// Unbind deletes an entry, or the whole subtree when recursive.
func (s *MemorySource) Unbind(ctx context.Context, entryDN string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	key := dn.Normalize(entryDN)
	if _, ok := s.entries[key]; !ok {
		return ErrEntryNotFound
	}

	for k, e := range s.entries {
		if k == key {
			continue
		}

		if dn.EqualsOrParentOf(entryDN, e.dn) {
			if !recursive {
				return ErrSchemaViolation
			}

			delete(s.entries, k)
		}
	}

	delete(s.entries, key)

	return nil
}

// Authenticate compares the given credential with the stored
// userPassword value.
func (s *MemorySource) Authenticate(ctx context.Context, entryDN string, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.RLock()
	defer s.RUnlock()

	e, ok := s.entries[dn.Normalize(entryDN)]
	if !ok {
		return false, ErrEntryNotFound
	}

	for _, v := range e.attrs["userpassword"] {
		if v == password {
			return true, nil
		}
	}

	return false, nil
}
