package adblock

import (
	"regexp"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
)

// SignatureSize is the length of a Signature Index key in bytes.
const SignatureSize = 8

// explicitRegexp matches "/…/" patterns that carry anchor or wildcard
// metacharacters.  Those go straight to the Overflow Pattern List.
var explicitRegexp = regexp.MustCompile(`^/.*[\^\$\*].*/$`)

// RuleIndex stores compiled URL rules.  Most rules are reachable through
// several fixed-size substrings of their pattern, the signatures.  The rest
// are kept in an ordered overflow list that is scanned linearly.
//
// RuleIndex is not safe for concurrent mutation.  Once loading is over, it
// may be read concurrently.
type RuleIndex struct {
	signatures map[string]*FilterRule

	// overflow maps patterns to rules, overflowOrder keeps the scan order.
	overflow      map[string]*FilterRule
	overflowOrder []string

	// patterns are the patterns of all stored rules.
	patterns *container.MapSet[string]
}

// NewRuleIndex returns a new properly initialized *RuleIndex.
func NewRuleIndex() (idx *RuleIndex) {
	return &RuleIndex{
		signatures: map[string]*FilterRule{},
		overflow:   map[string]*FilterRule{},
		patterns:   container.NewMapSet[string](),
	}
}

// Compile compiles pattern and inserts the resulting rule into the index.
// discard is true when the rule was not stored or when its overflow entry
// was dropped in favor of two or more signatures.  err is only returned for
// patterns that are not valid regular expressions.
func (idx *RuleIndex) Compile(pattern, options string) (discard bool, err error) {
	if pattern == "" || pattern == "^" || idx.patterns.Has(pattern) {
		return true, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return true, errors.Annotate(err, "compiling %q: %w", pattern)
	}

	rule := &FilterRule{
		re:      re,
		Pattern: pattern,
		Options: options,
		Domains: optionDomains(options),
	}
	idx.patterns.Add(pattern)

	if explicitRegexp.MatchString(pattern) {
		idx.addOverflow(rule)

		return false, nil
	}

	sigCount := 0
	for i := len(pattern) - SignatureSize; i >= 0; i-- {
		sig := pattern[i : i+SignatureSize]
		if !strings.Contains(sig, "*") {
			if _, ok := idx.signatures[sig]; !ok {
				idx.signatures[sig] = rule
				sigCount++

				continue
			}
		}

		if sig[0] == '*' {
			idx.addOverflow(rule)
		}
	}

	switch {
	case sigCount == 0:
		// Short patterns and patterns whose windows are all taken are only
		// reachable through the overflow list.
		idx.addOverflow(rule)
	case sigCount > 1 && idx.removeOverflow(pattern):
		return true, nil
	}

	return false, nil
}

// addOverflow adds rule to the overflow list unless its pattern is already
// there.
func (idx *RuleIndex) addOverflow(rule *FilterRule) {
	if _, ok := idx.overflow[rule.Pattern]; ok {
		return
	}

	idx.overflow[rule.Pattern] = rule
	idx.overflowOrder = append(idx.overflowOrder, rule.Pattern)
}

// removeOverflow removes pattern from the overflow list and reports whether
// it was there.
func (idx *RuleIndex) removeOverflow(pattern string) (ok bool) {
	if _, ok = idx.overflow[pattern]; !ok {
		return false
	}

	delete(idx.overflow, pattern)
	idx.overflowOrder = slices.DeleteFunc(idx.overflowOrder, func(p string) bool {
		return p == pattern
	})

	return true
}

// MatchBySignature looks requestURL up through the Signature Index and
// returns the first rule that passes the rule check, or nil.  Each rule is
// checked at most once per call.
func (idx *RuleIndex) MatchBySignature(requestURL, pageURL string) (rule *FilterRule) {
	u := FixupPattern("", requestURL)

	var rejected *container.MapSet[*FilterRule]
	for i := len(u) - SignatureSize; i >= 0; i-- {
		r, ok := idx.signatures[u[i:i+SignatureSize]]
		if !ok || (rejected != nil && rejected.Has(r)) {
			continue
		}

		if checkRule(r, requestURL, pageURL) {
			return r
		}

		if rejected == nil {
			rejected = container.NewMapSet[*FilterRule]()
		}

		rejected.Add(r)
	}

	return nil
}

// MatchByPattern scans the overflow list and returns the first rule that
// passes the rule check, or nil.
func (idx *RuleIndex) MatchByPattern(requestURL, pageURL string) (rule *FilterRule) {
	for _, p := range idx.overflowOrder {
		if r := idx.overflow[p]; checkRule(r, requestURL, pageURL) {
			return r
		}
	}

	return nil
}

// checkRule returns true if rule blocks requestURL loaded by pageURL.  A
// third-party rule doesn't block when its pattern also matches the page.
func checkRule(rule *FilterRule, requestURL, pageURL string) (ok bool) {
	if !matchNonEmpty(rule.re, requestURL) {
		return false
	}

	if pageURL != "" && rule.isThirdParty() && matchNonEmpty(rule.re, pageURL) {
		return false
	}

	return true
}

// isThirdParty returns true if the rule has the third-party option.
func (r *FilterRule) isThirdParty() (ok bool) {
	return strings.Contains(strings.ToLower(r.Options), "third-party")
}

// Counts returns the number of rules, signatures and overflow entries.
func (idx *RuleIndex) Counts() (c RuleCounts) {
	return RuleCounts{
		URLRules:   idx.patterns.Len(),
		Signatures: len(idx.signatures),
		Overflow:   len(idx.overflow),
	}
}
