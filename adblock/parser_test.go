package adblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	testCases := []struct {
		want *ParsedRule
		name string
		line string
	}{{
		want: nil,
		name: "empty",
		line: "",
	}, {
		want: nil,
		name: "comment",
		line: "! Title: EasyList",
	}, {
		want: nil,
		name: "whitelist",
		line: "@@||example.com^$document",
	}, {
		want: nil,
		name: "section",
		line: "[Adblock Plus 2.0]",
	}, {
		want: nil,
		name: "leading_space",
		line: " ||example.com^",
	}, {
		want: nil,
		name: "empty_global_selector",
		line: "##",
	}, {
		want: nil,
		name: "legacy_hiding",
		line: "#div(ad)",
	}, {
		want: nil,
		name: "quoted_selector",
		line: "##a[href='x']",
	}, {
		want: nil,
		name: "pseudo_class",
		line: "##div:first-child",
	}, {
		want: nil,
		name: "subdocument",
		line: "||ads.example.com^$subdocument,third-party",
	}, {
		want: &ParsedRule{
			Selector: ".banner",
			Kind:     RuleKindGlobalCSS,
		},
		name: "global_css",
		line: "##.banner",
	}, {
		want: &ParsedRule{
			Selector: `a[href^="http://ads"]`,
			Kind:     RuleKindGlobalCSS,
		},
		name: "colon_in_brackets",
		line: `##a[href^="http://ads"]`,
	}, {
		want: &ParsedRule{
			Selector: ".ad",
			Domains:  []string{"example.com", "example.org", "example.net"},
			Kind:     RuleKindDomainCSS,
		},
		name: "domain_css",
		line: "example.com,~example.org,~pregecko2,example.net##.ad\r\n",
	}, {
		want: nil,
		name: "domain_css_only_legacy",
		line: "~pregecko2##.ad",
	}, {
		want: &ParsedRule{
			Selector: "div.sponsor",
			Domains:  []string{"example.com"},
			Kind:     RuleKindDomainCSS,
		},
		name: "domain_css_single_hash",
		line: "example.com#div.sponsor",
	}, {
		want: &ParsedRule{
			Pattern: "/banner/*/img",
			Options: "uri",
			Kind:    RuleKindURL,
		},
		name: "url",
		line: "/banner/*/img",
	}, {
		want: &ParsedRule{
			Prefix:  "^",
			Pattern: "ads.example.com^",
			Options: "fulluri,third-party",
			Kind:    RuleKindURL,
		},
		name: "url_double_pipe",
		line: "||ads.example.com^$third-party",
	}, {
		want: &ParsedRule{
			Prefix:  "^",
			Pattern: "http://ads.example.com/",
			Options: "fulluri,domain=a.com|~b.com",
			Domains: []string{"a.com", "b.com"},
			Kind:    RuleKindURL,
		},
		name: "url_single_pipe",
		line: "|http://ads.example.com/$domain=a.com|~b.com",
	}, {
		want: &ParsedRule{
			Pattern: "/ad.jsx",
			Options: "uri,image",
			Kind:    RuleKindURL,
		},
		name: "url_two_dollars",
		line: "/ad.js$x$image",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLine(tc.line))
		})
	}
}

func TestIsSimpleSelector(t *testing.T) {
	assert.True(t, isSimpleSelector("#ad"))
	assert.True(t, isSimpleSelector("[style*=\"a:b\"]"))
	assert.False(t, isSimpleSelector(""))
	assert.False(t, isSimpleSelector("a:hover"))
	assert.False(t, isSimpleSelector("div[x='y']"))
}
