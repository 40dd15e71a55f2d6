package adblock

import (
	"regexp"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	// ErrUnknownEngine is returned when the configured engine name is not
	// one of the supported engines.
	ErrUnknownEngine errors.Error = "unknown adblock engine"

	// ErrListTooLarge is returned when a downloaded filter list exceeds the
	// configured size limit.
	ErrListTooLarge errors.Error = "filter list is too large"

	// ErrEmptyList is returned when a filter list download has an empty body.
	ErrEmptyList errors.Error = "filter list is empty"

	// ErrSourceNotFound is returned for operations on an unknown source URI.
	ErrSourceNotFound errors.Error = "filter list source not found"

	// ErrInvalidRule is returned when a custom rule is empty or spans
	// several lines.
	ErrInvalidRule errors.Error = "custom rule must be a single non-empty line"
)

// Engine names accepted by [NewFilterEngine].
const (
	EngineSignature = "signature"
	EngineURLFilter = "urlfilter"
)

// Access types written in front of the rule options.
const (
	accessTypeURI     = "uri"
	accessTypeFullURI = "fulluri"
)

// RuleKind is the classification of one filter list line.
type RuleKind uint8

const (
	// RuleKindURL is a URL blocking pattern.
	RuleKindURL RuleKind = iota + 1
	// RuleKindGlobalCSS is a "##selector" element hiding rule.
	RuleKindGlobalCSS
	// RuleKindDomainCSS is a "domain##selector" element hiding rule.
	RuleKindDomainCSS
)

// String implements the [fmt.Stringer] interface for RuleKind.
func (k RuleKind) String() string {
	switch k {
	case RuleKindURL:
		return "url"
	case RuleKindGlobalCSS:
		return "global_css"
	case RuleKindDomainCSS:
		return "domain_css"
	default:
		return "unknown"
	}
}

// ParsedRule is the result of classifying one filter list line.
type ParsedRule struct {
	// Prefix is "^" for anchored rules and empty otherwise.  Only set for
	// RuleKindURL.
	Prefix string

	// Pattern is the raw glob-like pattern of a URL rule.
	Pattern string

	// Options is the access type followed by the comma separated "$"
	// options, e.g. "fulluri,domain=example.com".
	Options string

	// Selector is the CSS selector of an element hiding rule.
	Selector string

	// Domains are the domains of a per-domain element hiding rule.
	Domains []string

	Kind RuleKind
}

// FilterRule is one compiled URL blocking rule.
type FilterRule struct {
	re *regexp.Regexp

	// Pattern is the regular expression source the rule was compiled from.
	Pattern string

	// Options is the option string the rule was parsed with.
	Options string

	// Domains are the values of the "domain=" option.  They are kept for
	// reporting and are not consulted while matching.
	Domains []string
}

// RuleCounts describes the size of a loaded rule set.
type RuleCounts struct {
	// URLRules is the number of compiled URL rules.
	URLRules int `json:"url_rules"`

	// Signatures is the number of Signature Index entries.
	Signatures int `json:"signatures"`

	// Overflow is the number of Overflow Pattern List entries.
	Overflow int `json:"overflow"`

	// GlobalCSS is the number of global element hiding selectors.
	GlobalCSS int `json:"global_css"`

	// DomainCSS is the number of per-domain element hiding selectors.
	DomainCSS int `json:"domain_css"`
}

// Total returns the number of rules of all kinds.
func (c RuleCounts) Total() int {
	return c.URLRules + c.GlobalCSS + c.DomainCSS
}

// Action is the decision for an outgoing request.
type Action uint8

const (
	// ActionAllow lets the request through.
	ActionAllow Action = iota
	// ActionBlock cancels the request.
	ActionBlock
)

// String implements the [fmt.Stringer] interface for Action.
func (a Action) String() string {
	if a == ActionBlock {
		return "block"
	}

	return "allow"
}
