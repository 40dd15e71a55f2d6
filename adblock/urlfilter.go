package adblock

import (
	"io"
	"log/slog"
	"strings"

	"midoriadblock/cache"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"
)

// URLFilterEngine is a filter engine that matches requests with the
// AdGuard network engine.  Unlike [Engine], it supports "@@" exceptions and
// checks third-party requests by host.  Element hiding rules go to the same
// kind of CSS Hiding Rule Store as in [Engine].
type URLFilterEngine struct {
	logger  *slog.Logger
	metrics Metrics
	css     *CSSHideStore
	cache   *cache.DecisionCache

	// text accumulates network rules until Finish is called.
	text *strings.Builder

	// engine is nil until Finish is called.
	engine *urlfilter.NetworkEngine

	maxLineLength int
	ruleCount     int
}

// type check
var _ FilterEngine = (*URLFilterEngine)(nil)

// NewURLFilterEngine returns a new empty *URLFilterEngine.  conf must not be
// nil.
func NewURLFilterEngine(conf *EngineConfig) (e *URLFilterEngine) {
	return &URLFilterEngine{
		logger:        conf.Logger,
		metrics:       conf.Metrics,
		css:           NewCSSHideStore(),
		cache:         cache.NewDecisionCache(conf.DecisionCacheSize),
		text:          &strings.Builder{},
		maxLineLength: conf.maxLineLength(),
	}
}

// LoadRules implements the [FilterEngine] interface for *URLFilterEngine.
func (e *URLFilterEngine) LoadRules(r io.Reader) (n int, err error) {
	err = readLines(r, e.maxLineLength, func(line string) {
		if e.addLine(line) {
			n++
		}
	})

	return n, err
}

// addLine sorts line into the CSS store or the network rule text.
func (e *URLFilterEngine) addLine(line string) (added bool) {
	line = strings.TrimRight(line, " \t\r\n")
	if strings.HasPrefix(line, "@@") {
		e.addNetworkRule(line)

		return true
	}

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
		e.addNetworkRule(line)
	}

	return true
}

// addNetworkRule appends a line for the network engine.
func (e *URLFilterEngine) addNetworkRule(line string) {
	e.text.WriteString(line)
	e.text.WriteByte('\n')
	e.ruleCount++
}

// Finish implements the [FilterEngine] interface for *URLFilterEngine.
func (e *URLFilterEngine) Finish() {
	lists := []filterlist.Interface{
		filterlist.NewString(&filterlist.StringConfig{
			RulesText:      e.text.String(),
			ID:             1,
			IgnoreCosmetic: true,
		}),
	}

	storage, err := filterlist.NewRuleStorage(lists)
	if err != nil {
		e.logger.Error("creating rule storage", slogutil.KeyError, err)
	} else {
		e.engine = urlfilter.NewNetworkEngine(storage)
		e.ruleCount = e.engine.RulesCount
	}

	e.text = &strings.Builder{}
	e.metrics.SetRuleCounts(e.Counts())
}

// IsMatched implements the [FilterEngine] interface for *URLFilterEngine.
func (e *URLFilterEngine) IsMatched(requestURL, pageURL string) (blocked bool) {
	if blocked, ok := e.cache.Get(requestURL); ok {
		e.metrics.ObserveCacheLookup(true)

		return blocked
	}

	e.metrics.ObserveCacheLookup(false)

	blocked = e.match(requestURL, pageURL).Blocked
	e.cache.Put(requestURL, blocked)

	return blocked
}

// Explain implements the [FilterEngine] interface for *URLFilterEngine.
func (e *URLFilterEngine) Explain(requestURL, pageURL string) (d Decision) {
	if blocked, ok := e.cache.Get(requestURL); ok {
		return Decision{
			Path:    PathCache,
			Blocked: blocked,
		}
	}

	return e.match(requestURL, pageURL)
}

// match asks the network engine about requestURL.  An exception rule allows
// the request.
func (e *URLFilterEngine) match(requestURL, pageURL string) (d Decision) {
	if e.engine == nil {
		return Decision{}
	}

	rule, ok := e.engine.Match(rules.NewRequest(requestURL, pageURL, rules.TypeOther))
	if !ok || rule == nil {
		return Decision{}
	}

	text := rule.Text()

	return Decision{
		Path:    PathNetwork,
		Pattern: text,
		Blocked: !strings.HasPrefix(text, "@@"),
	}
}

// InjectionScript implements the [FilterEngine] interface for
// *URLFilterEngine.
func (e *URLFilterEngine) InjectionScript(pageURL string) (script string, ok bool) {
	return e.css.InjectionScript(pageURL)
}

// GlobalStylesheet implements the [FilterEngine] interface for
// *URLFilterEngine.
func (e *URLFilterEngine) GlobalStylesheet() (css string) {
	return e.css.GlobalStylesheet()
}

// Counts implements the [FilterEngine] interface for *URLFilterEngine.
func (e *URLFilterEngine) Counts() (c RuleCounts) {
	c.URLRules = e.ruleCount
	c.GlobalCSS, c.DomainCSS = e.css.Counts()

	return c
}
