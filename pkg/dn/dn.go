// Package dn holds the pure string operations on hierarchical
// distinguished names: normalization, containment and decomposition.
// Comparisons are always case-insensitive; display values keep their
// original case and are normalized only at comparison time.
package dn

import (
	"regexp"
	"strings"
)

// segmentPattern matches a single "attr=value" RDN without any of the
// characters that would allow injection of additional directory
// statements (unescaped comma, plus, quote, angle brackets, semicolon).
var segmentPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*=[^,+"<>;\\=]+$`)

// Normalize folds a DN or a plain identifier to its canonical
// comparison form: trimmed, lowercased, with whitespace around segment
// separators collapsed.
func Normalize(s string) string {
	segments := Split(s)
	return strings.ToLower(strings.Join(segments, ","))
}

// Split breaks a DN into its trimmed segments, leaf first.
func Split(s string) []string {
	raw := strings.Split(s, ",")
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// ToRDN returns the value of the leaf segment: "ou=gfi,dc=org" -> "gfi".
// The value keeps its original case. Returns an empty string when the
// DN has no attribute segment.
func ToRDN(s string) string {
	segments := Split(s)
	if len(segments) == 0 {
		return ""
	}

	_, value, found := strings.Cut(segments[0], "=")
	if !found {
		return ""
	}

	return strings.TrimSpace(value)
}

// Parent returns the DN without its leaf segment, or an empty string
// for a single-segment DN.
func Parent(s string) string {
	segments := Split(s)
	if len(segments) < 2 {
		return ""
	}

	return strings.Join(segments[1:], ",")
}

// Depth returns the amount of segments of the DN.
func Depth(s string) int {
	return len(Split(s))
}

// EqualsOrParentOf tests whether parent contains child: either both
// normalize to the same DN, or child is located somewhere below parent.
// Containment is segment-wise, so "ou=a" does not contain "ou=ab,ou=x".
func EqualsOrParentOf(parent, child string) bool {
	np := Normalize(parent)
	nc := Normalize(child)

	if np == "" || nc == "" {
		return false
	}

	return nc == np || strings.HasSuffix(nc, ","+np)
}

// IsValid reports whether the given string is a syntactically
// well-formed DN. Used to reject free-form tree grants that would
// otherwise inject directory control characters.
func IsValid(s string) bool {
	segments := Split(s)
	if len(segments) == 0 {
		return false
	}

	for _, seg := range segments {
		if !segmentPattern.MatchString(seg) {
			return false
		}
	}

	return true
}
