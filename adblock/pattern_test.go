package adblock

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixupPattern(t *testing.T) {
	testCases := []struct {
		name   string
		prefix string
		raw    string
		want   string
	}{{
		name:   "leading_wildcard",
		prefix: "",
		raw:    "*ads.foo.bar*",
		want:   "ads.foo.bar",
	}, {
		name:   "anchors",
		prefix: "^",
		raw:    "^http://ads.bla.blub/*",
		want:   "^http://ads.bla.blub/",
	}, {
		name:   "pipes_and_wildcards",
		prefix: "",
		raw:    "/addyn|*|adtech;",
		want:   "/addyn.*adtech;",
	}, {
		name:   "question_mark",
		prefix: "",
		raw:    "engine.adct.ru/*?",
		want:   `engine.adct.ru/.*\?`,
	}, {
		name:   "trailing_wildcard_after_dot",
		prefix: "",
		raw:    "example.com.*",
		want:   "example.com.",
	}, {
		name:   "plus",
		prefix: "",
		raw:    "a+b",
		want:   "ab",
	}, {
		name:   "domain_anchor",
		prefix: "^",
		raw:    "example.com^",
		want:   "^example.com",
	}, {
		name:   "url",
		prefix: "",
		raw:    "http://www.test.dom/test?var=1",
		want:   `http://www.test.dom/test\?var=1`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FixupPattern(tc.prefix, tc.raw))
		})
	}
}

func TestMatchNonEmpty(t *testing.T) {
	assert.True(t, matchNonEmpty(regexp.MustCompile(`ads`), "http://ads.example/"))
	assert.False(t, matchNonEmpty(regexp.MustCompile(`ads`), "http://example/"))

	// The leftmost match is empty, a later one is not.
	assert.True(t, matchNonEmpty(regexp.MustCompile(`x*`), "abx"))
	assert.False(t, matchNonEmpty(regexp.MustCompile(`x*`), "abc"))
}
