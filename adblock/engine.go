package adblock

import (
	"bufio"
	"io"
	"log/slog"

	"midoriadblock/cache"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// DefaultMaxLineLength is the default number of bytes of a filter list line
// that are parsed.  The rest of a longer line is discarded.
const DefaultMaxLineLength = 2000

// Match paths reported in [Decision].
const (
	PathCache     = "cache"
	PathSignature = "signature"
	PathPattern   = "pattern"
	PathNetwork   = "network"
)

// EngineConfig is the configuration structure for a filter engine.
type EngineConfig struct {
	// Logger is used for the engine's own messages.  It must not be nil.
	Logger *slog.Logger

	// Metrics is used to report matching statistics.  It must not be nil.
	Metrics Metrics

	// DecisionCacheSize bounds the Decision Cache.  Zero or less means the
	// cache is unbounded.
	DecisionCacheSize int

	// MaxLineLength is the number of bytes of a line that are parsed.  If
	// zero, DefaultMaxLineLength is used.
	MaxLineLength int
}

// maxLineLength returns the line length limit of c.
func (c *EngineConfig) maxLineLength() (n int) {
	if c.MaxLineLength > 0 {
		return c.MaxLineLength
	}

	return DefaultMaxLineLength
}

// Decision describes how a request was matched.
type Decision struct {
	// Path is where the decision came from: PathCache, PathSignature,
	// PathPattern, PathNetwork, or empty if no rule matched.
	Path string `json:"path"`

	// Pattern is the regular expression or rule text that matched.
	Pattern string `json:"pattern,omitempty"`

	// Options is the option string of the matching rule.
	Options string `json:"options,omitempty"`

	Blocked bool `json:"blocked"`
}

// Engine is the signature-based filter engine.  It owns the Rule Index, the
// Overflow Pattern List, the Decision Cache, and the CSS Hiding Rule Store
// of one loaded rule set.
//
// Loading methods must not be called concurrently with each other or with
// matching.  Once Finish has been called, the matching methods are safe for
// concurrent use.
type Engine struct {
	logger  *slog.Logger
	metrics Metrics
	index   *RuleIndex
	css     *CSSHideStore
	cache   *cache.DecisionCache

	maxLineLength int
}

// type check
var _ FilterEngine = (*Engine)(nil)

// NewEngine returns a new empty *Engine.  conf must not be nil.
func NewEngine(conf *EngineConfig) (e *Engine) {
	return &Engine{
		logger:        conf.Logger,
		metrics:       conf.Metrics,
		index:         NewRuleIndex(),
		css:           NewCSSHideStore(),
		cache:         cache.NewDecisionCache(conf.DecisionCacheSize),
		maxLineLength: conf.maxLineLength(),
	}
}

// LoadRules implements the [FilterEngine] interface for *Engine.
func (e *Engine) LoadRules(r io.Reader) (n int, err error) {
	err = readLines(r, e.maxLineLength, func(line string) {
		if e.AddRule(line) {
			n++
		}
	})

	return n, err
}

// AddRule parses line and adds the resulting rule, if any.  added is false if
// the line produced no rule.
func (e *Engine) AddRule(line string) (added bool) {
	r := ParseLine(line)
	if r == nil {
		return false
	}

	switch r.Kind {
	case RuleKindGlobalCSS:
		e.css.AddGlobalRule(r.Selector)
	case RuleKindDomainCSS:
		for _, d := range r.Domains {
			e.css.AddDomainRule(d, r.Selector)
		}
	case RuleKindURL:
		before := e.index.patterns.Len()
		_, err := e.index.Compile(FixupPattern(r.Prefix, r.Pattern), r.Options)
		if err != nil {
			e.logger.Warn("dropping url rule", slogutil.KeyError, err)

			return false
		}

		return e.index.patterns.Len() > before
	}

	return true
}

// Finish implements the [FilterEngine] interface for *Engine.
func (e *Engine) Finish() {
	c := e.Counts()
	e.metrics.SetRuleCounts(c)

	e.logger.Debug(
		"rules loaded",
		"url", c.URLRules,
		"signatures", c.Signatures,
		"overflow", c.Overflow,
		"global_css", c.GlobalCSS,
		"domain_css", c.DomainCSS,
	)
}

// IsMatched implements the [FilterEngine] interface for *Engine.
func (e *Engine) IsMatched(requestURL, pageURL string) (blocked bool) {
	if blocked, ok := e.cache.Get(requestURL); ok {
		e.metrics.ObserveCacheLookup(true)

		return blocked
	}

	e.metrics.ObserveCacheLookup(false)

	blocked = e.match(requestURL, pageURL).Blocked
	e.cache.Put(requestURL, blocked)

	return blocked
}

// Explain returns the decision for requestURL with the path that produced it.
// Unlike IsMatched, it doesn't store anything in the Decision Cache.
func (e *Engine) Explain(requestURL, pageURL string) (d Decision) {
	if blocked, ok := e.cache.Get(requestURL); ok {
		return Decision{
			Path:    PathCache,
			Blocked: blocked,
		}
	}

	return e.match(requestURL, pageURL)
}

// match checks requestURL against the Signature Index and then against the
// Overflow Pattern List.
func (e *Engine) match(requestURL, pageURL string) (d Decision) {
	if r := e.index.MatchBySignature(requestURL, pageURL); r != nil {
		return Decision{
			Path:    PathSignature,
			Pattern: r.Pattern,
			Options: r.Options,
			Blocked: true,
		}
	}

	if r := e.index.MatchByPattern(requestURL, pageURL); r != nil {
		return Decision{
			Path:    PathPattern,
			Pattern: r.Pattern,
			Options: r.Options,
			Blocked: true,
		}
	}

	return Decision{}
}

// InjectionScript implements the [FilterEngine] interface for *Engine.
func (e *Engine) InjectionScript(pageURL string) (script string, ok bool) {
	return e.css.InjectionScript(pageURL)
}

// GlobalStylesheet implements the [FilterEngine] interface for *Engine.
func (e *Engine) GlobalStylesheet() (css string) {
	return e.css.GlobalStylesheet()
}

// Counts implements the [FilterEngine] interface for *Engine.
func (e *Engine) Counts() (c RuleCounts) {
	c = e.index.Counts()
	c.GlobalCSS, c.DomainCSS = e.css.Counts()

	return c
}

// readLines calls f for every line of r.  Lines longer than maxLen bytes are
// truncated to maxLen and the rest of them is skipped.
func readLines(r io.Reader, maxLen int, f func(line string)) (err error) {
	br := bufio.NewReaderSize(r, maxLen)

	skipping := false
	for {
		frag, isPrefix, rerr := br.ReadLine()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}

			return errors.Annotate(rerr, "reading rules: %w")
		}

		if skipping {
			skipping = isPrefix

			continue
		}

		skipping = isPrefix
		if len(frag) > maxLen {
			frag = frag[:maxLen]
		}

		f(string(frag))
	}
}
