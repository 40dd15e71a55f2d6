package adblock

import (
	"regexp"
	"strings"
)

// legacyDomainOption is a Firefox specific marker found in old domain lists.
const legacyDomainOption = "~pregecko2"

// colonInBrackets matches selectors whose colons only appear inside an
// attribute selector.
var colonInBrackets = regexp.MustCompile(`\[.*:.*\]`)

// ParseLine classifies a single filter list line.  It returns nil when the
// line produces no rule: blank lines, comments, whitelist and section lines,
// unsupported element hiding syntax, and subdocument rules.
func ParseLine(line string) (r *ParsedRule) {
	line = strings.TrimRight(line, " \t\r\n")
	if line == "" {
		return nil
	}

	switch {
	case
		line[0] == ' ',
		line[0] == '!',
		line[0] == '[',
		strings.HasPrefix(line, "@@"):
		return nil
	case strings.HasPrefix(line, "##"):
		return parseGlobalCSS(line[2:])
	case line[0] == '#':
		// Legacy element hiding syntax.
		return nil
	}

	if domainSpec, sel, ok := strings.Cut(line, "##"); ok {
		return parseDomainCSS(domainSpec, sel)
	}

	if domainSpec, sel, ok := strings.Cut(line, "#"); ok {
		return parseDomainCSS(domainSpec, sel)
	}

	return parseURLRule(line)
}

// parseGlobalCSS returns a global element hiding rule for sel or nil if sel
// can't be used.
func parseGlobalCSS(sel string) (r *ParsedRule) {
	if !isSimpleSelector(sel) {
		return nil
	}

	return &ParsedRule{
		Selector: sel,
		Kind:     RuleKindGlobalCSS,
	}
}

// parseDomainCSS returns a per-domain element hiding rule or nil if either
// the selector or the domain list can't be used.
func parseDomainCSS(domainSpec, sel string) (r *ParsedRule) {
	if !isSimpleSelector(sel) {
		return nil
	}

	var domains []string
	for d := range strings.SplitSeq(domainSpec, ",") {
		d = strings.TrimSpace(d)
		if d == legacyDomainOption {
			continue
		}

		// TODO: Honor "~domain" exclusions instead of treating them
		// as plain domains.
		d = strings.TrimPrefix(d, "~")
		if d != "" {
			domains = append(domains, d)
		}
	}

	if len(domains) == 0 {
		return nil
	}

	return &ParsedRule{
		Selector: sel,
		Domains:  domains,
		Kind:     RuleKindDomainCSS,
	}
}

// isSimpleSelector returns true if sel can be safely joined with other
// selectors and embedded into a script.
func isSimpleSelector(sel string) (ok bool) {
	if sel == "" || strings.Contains(sel, "'") {
		return false
	}

	return !strings.Contains(sel, ":") || colonInBrackets.MatchString(sel)
}

// parseURLRule returns a URL blocking rule for line.
func parseURLRule(line string) (r *ParsedRule) {
	prefix, accessType := "", accessTypeURI
	if rest, ok := strings.CutPrefix(line, "||"); ok {
		line, prefix, accessType = rest, "^", accessTypeFullURI
	} else if rest, ok = strings.CutPrefix(line, "|"); ok {
		line, prefix, accessType = rest, "^", accessTypeFullURI
	}

	parts := strings.SplitN(line, "$", 3)

	pattern, options := parts[0], accessType
	switch len(parts) {
	case 3:
		pattern = parts[0] + parts[1]
		options = accessType + "," + parts[2]
	case 2:
		options = accessType + "," + parts[1]
	}

	if strings.Contains(strings.ToLower(options), "subdocument") {
		return nil
	}

	return &ParsedRule{
		Prefix:  prefix,
		Pattern: pattern,
		Options: options,
		Domains: optionDomains(options),
		Kind:    RuleKindURL,
	}
}

// optionDomains returns the domains listed in the "domain=" option, if any.
func optionDomains(options string) (domains []string) {
	for opt := range strings.SplitSeq(options, ",") {
		val, ok := strings.CutPrefix(strings.TrimSpace(opt), "domain=")
		if !ok {
			continue
		}

		for d := range strings.SplitSeq(val, "|") {
			d = strings.TrimPrefix(d, "~")
			if d != "" {
				domains = append(domains, d)
			}
		}
	}

	return domains
}
