package org

import (
	"github.com/orgmirror/orgmirror/pkg/dn"
	"go.uber.org/zap"
)

// LinkGroupEdges resolves the raw sub-entry references collected for
// each group and populates both sides of the nesting edge. References
// that do not resolve to a known group are broken: they are logged and
// dropped, never surfaced as an error.
//
// rawSubRefs maps a group ID to the member DNs that did not look like
// user references; dnToGroup indexes all groups by normalized DN.
func LinkGroupEdges(groups map[string]*Group, rawSubRefs map[string][]string, dnToGroup map[string]*Group, logger *zap.Logger) {
	for id, g := range groups {
		for _, subDN := range rawSubRefs[id] {
			sub, ok := dnToGroup[dn.Normalize(subDN)]
			if !ok {
				logger.Warn("broken group reference",
					zap.String("group", g.DN),
					zap.String("member", subDN),
				)
				continue
			}

			g.SubGroups[sub.ID] = struct{}{}
			sub.ParentGroups[g.ID] = struct{}{}
		}
	}
}

// CascadeDetachGroup removes every edge touching the given group:
// child edges first, then parent edges, then user memberships.
// Children that no longer resolve are tolerated; calling this on an
// already edge-free group is a no-op.
func CascadeDetachGroup(g *Group, groups map[string]*Group, users map[string]*User) {
	// detach children before parents so a parent recompute never sees
	// a half-removed child
	for childID := range g.SubGroups {
		if child, ok := groups[childID]; ok {
			delete(child.ParentGroups, g.ID)
		}

		delete(g.SubGroups, childID)
	}

	for parentID := range g.ParentGroups {
		if parent, ok := groups[parentID]; ok {
			delete(parent.SubGroups, g.ID)
		}

		delete(g.ParentGroups, parentID)
	}

	for memberID := range g.Members {
		if u, ok := users[memberID]; ok {
			delete(u.Groups, g.ID)
		}

		delete(g.Members, memberID)
	}
}

// TransitiveGroups returns the IDs of all groups the user belongs to,
// directly or through group nesting: a user inside a sub-group also
// counts as belonging to every group that contains it. Traversal is
// edge-local with a visited set, so nesting cycles terminate.
func TransitiveGroups(u *User, groups map[string]*Group) map[string]struct{} {
	visited := make(map[string]struct{}, len(u.Groups))

	queue := make([]string, 0, len(u.Groups))
	for id := range u.Groups {
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		if g, ok := groups[id]; ok {
			for parentID := range g.ParentGroups {
				queue = append(queue, parentID)
			}
		}
	}

	return visited
}
