package adblock

import (
	"regexp"
	"strings"
)

// FixupPattern turns the glob-like filter syntax of raw into a regular
// expression source prefixed with prefix.  The same transformation is applied
// to request URLs before their signatures are looked up.
//
// A leading '*' is dropped, '*' becomes ".*", '?' is escaped, and the anchor
// characters '|', '^' and '+' are removed.  Dots are kept unescaped.  A
// trailing ".*" is stripped.
func FixupPattern(prefix, raw string) (pattern string) {
	raw = strings.TrimPrefix(raw, "*")

	b := &strings.Builder{}
	b.Grow(len(prefix) + len(raw) + 8)
	b.WriteString(prefix)

	for i := range len(raw) {
		switch c := raw[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(`\?`)
		case '|', '^', '+':
			// Drop.
		default:
			b.WriteByte(c)
		}
	}

	return strings.TrimSuffix(b.String(), ".*")
}

// matchNonEmpty returns true if re has a non-empty match in s.
func matchNonEmpty(re *regexp.Regexp, s string) (ok bool) {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return false
	} else if loc[1] > loc[0] {
		return true
	}

	for _, loc = range re.FindAllStringIndex(s, -1) {
		if loc[1] > loc[0] {
			return true
		}
	}

	return false
}
