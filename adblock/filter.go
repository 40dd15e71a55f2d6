package adblock

import (
	"io"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// FilterEngine is the interface for adblock filter engines.  An engine is
// filled with LoadRules, sealed with Finish, and then only read.
type FilterEngine interface {
	// LoadRules parses newline-delimited filter list text from r.  n is the
	// number of lines that produced a rule.  Malformed lines are skipped.
	LoadRules(r io.Reader) (n int, err error)

	// Finish must be called once all rules are loaded.
	Finish()

	// IsMatched returns true if requestURL loaded by pageURL must be
	// blocked.  pageURL may be empty.
	IsMatched(requestURL, pageURL string) (blocked bool)

	// Explain is like IsMatched but also reports the path and the rule that
	// produced the decision.
	Explain(requestURL, pageURL string) (d Decision)

	// InjectionScript returns the element hiding script for pageURL.  ok is
	// false if pageURL has no host.
	InjectionScript(pageURL string) (script string, ok bool)

	// GlobalStylesheet returns the stylesheet of all global element hiding
	// rules.
	GlobalStylesheet() (css string)

	// Counts returns the size of the loaded rule set.
	Counts() (c RuleCounts)
}

// NewFilterEngine returns a new empty engine of the given kind.  name is
// EngineSignature, EngineURLFilter, or empty for EngineSignature.
func NewFilterEngine(name string, conf *EngineConfig) (e FilterEngine, err error) {
	switch strings.ToLower(name) {
	case "", EngineSignature:
		return NewEngine(conf), nil
	case EngineURLFilter:
		return NewURLFilterEngine(conf), nil
	default:
		return nil, errors.Annotate(ErrUnknownEngine, "engine %q: %w", name)
	}
}
