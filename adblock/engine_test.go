package adblock

import (
	"strings"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFilterList is a mixed filter list covering every rule kind.
const testFilterList = `*ads.foo.bar*
*ads.bogus.name*
||^http://ads.bla.blub/*
|http://ads.blub.boing/*$domain=xxx.com
engine.adct.ru/*?
/addyn|*|adtech;
doubleclick.net/pfadx/*.mtvi
objects.tremormedia.com/embed/xml/*.xml?r=
videostrip.com^*/admatcherclient.
test.dom/test?var
/adpage.
br.gcl.ru/cgi-bin/br/
`

// newTestEngine returns an empty signature engine for tests.
func newTestEngine(tb testing.TB) (e *Engine) {
	tb.Helper()

	return NewEngine(&EngineConfig{
		Logger:  slogutil.NewDiscardLogger(),
		Metrics: EmptyMetrics{},
	})
}

// loadTestEngine returns a signature engine with rules loaded and finished.
func loadTestEngine(tb testing.TB, rules string) (e *Engine) {
	tb.Helper()

	e = newTestEngine(tb)
	_, err := e.LoadRules(strings.NewReader(rules))
	require.NoError(tb, err)

	e.Finish()

	return e
}

func TestEngine_IsMatched(t *testing.T) {
	e := loadTestEngine(t, testFilterList)

	testCases := []struct {
		url  string
		want bool
	}{{
		url:  "http://www.engadget.com/_uac/adpage.html",
		want: true,
	}, {
		url:  "http://ads.foo.bar/teddy",
		want: true,
	}, {
		url:  "http://ads.fuu.bar/teddy",
		want: false,
	}, {
		url:  "https://ads.bogus.name/blub",
		want: true,
	}, {
		url:  "http://add.doubleclick.net/pfadx/aaaa.mtvi",
		want: true,
	}, {
		url:  "http://add.doubleclick.net/pfadx/aaaa.mtv",
		want: false,
	}, {
		url:  "http://google.com",
		want: false,
	}, {
		url:  "http://ads.bla.blub/banner.gif",
		want: true,
	}, {
		url:  "http://xyz.com/addyn/3.0/adtech;size=1",
		want: true,
	}, {
		url:  "http://www.test.dom/test?var=1",
		want: true,
	}}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			assert.Equal(t, tc.want, e.IsMatched(tc.url, ""))
		})
	}
}

func TestEngine_IsMatched_cache(t *testing.T) {
	e := loadTestEngine(t, "tracker.example.com/$third-party\n")

	const u = "http://tracker.example.com/pixel.gif"
	require.True(t, e.IsMatched(u, ""))

	d := e.Explain(u, "")
	assert.Equal(t, PathCache, d.Path)
	assert.True(t, d.Blocked)

	// The cache is keyed by the request URL only.
	assert.True(t, e.IsMatched(u, "http://tracker.example.com/"))
}

func TestEngine_Explain(t *testing.T) {
	e := loadTestEngine(t, testFilterList)

	d := e.Explain("http://add.doubleclick.net/pfadx/aaaa.mtvi", "")
	assert.Equal(t, PathSignature, d.Path)
	assert.Equal(t, "doubleclick.net/pfadx/.*.mtvi", d.Pattern)
	assert.Equal(t, "uri", d.Options)

	d = e.Explain("http://ad.example/addyn/0/adtech;", "")
	assert.Equal(t, PathPattern, d.Path)
	assert.Equal(t, "/addyn.*adtech;", d.Pattern)

	d = e.Explain("http://ads.blub.boing/x.js", "")
	assert.True(t, d.Blocked)
	assert.Equal(t, "fulluri,domain=xxx.com", d.Options)

	d = e.Explain("http://google.com", "")
	assert.Equal(t, Decision{}, d)
}

func TestEngine_thirdParty(t *testing.T) {
	e := loadTestEngine(t, "tracker.example.com/$third-party\n")

	const u = "http://tracker.example.com/pixel.gif"

	d := e.Explain(u, "http://tracker.example.com/")
	assert.False(t, d.Blocked)

	d = e.Explain(u, "http://news.example.org/")
	assert.True(t, d.Blocked)

	d = e.Explain(u, "")
	assert.True(t, d.Blocked)
}

func TestEngine_shortPatterns(t *testing.T) {
	e := loadTestEngine(t, "/ad.js\n")

	c := e.Counts()
	assert.Equal(t, 1, c.URLRules)
	assert.Zero(t, c.Signatures)
	assert.Equal(t, 1, c.Overflow)

	assert.True(t, e.IsMatched("http://example.com/ad.js", ""))
	assert.False(t, e.IsMatched("http://example.com/app.js", ""))
}

func TestEngine_LoadRules(t *testing.T) {
	e := newTestEngine(t)

	list := strings.Join([]string{
		"! comment",
		"[Adblock Plus 2.0]",
		"@@||example.com^",
		"",
		"  indented",
		"##.ad-banner",
		"###ad-id",
		"#legacy",
		"example.com,~pregecko2##.sidebar-ad",
		"example.org#div.sponsor",
		"||example.net^$subdocument",
		"ads.example.net^\r",
		"/bad(regex/",
		"||",
	}, "\n")

	n, err := e.LoadRules(strings.NewReader(list))
	require.NoError(t, err)
	e.Finish()

	assert.Equal(t, 5, n)
	assert.Equal(t, RuleCounts{
		URLRules:   1,
		Signatures: 8,
		GlobalCSS:  2,
		DomainCSS:  2,
	}, e.Counts())

	assert.True(t, e.IsMatched("http://ads.example.net/x.js", ""))
	assert.Equal(t, "z-non-exist, .ad-banner, #ad-id { display: none !important }", e.GlobalStylesheet())
}

func TestEngine_LoadRules_longLines(t *testing.T) {
	e := NewEngine(&EngineConfig{
		Logger:        slogutil.NewDiscardLogger(),
		Metrics:       EmptyMetrics{},
		MaxLineLength: 32,
	})

	long := "first.example.com/" + strings.Repeat("x", 100) + "$third-party"
	list := long + "\nsecond.example.com^\n"

	n, err := e.LoadRules(strings.NewReader(list))
	require.NoError(t, err)
	e.Finish()

	assert.Equal(t, 2, n)

	// The truncated line has lost its options.
	d := e.Explain("http://first.example.com/"+strings.Repeat("x", 14), "http://first.example.com/")
	assert.True(t, d.Blocked)
	assert.Equal(t, "uri", d.Options)

	assert.True(t, e.IsMatched("http://second.example.com/", ""))
}

func TestEngine_InjectionScript(t *testing.T) {
	e := loadTestEngine(t, strings.Join([]string{
		"example.com##.ad-box",
		"news.example.com##.news-ad",
		"example.com##.other-ad",
		"ample.com##.never",
	}, "\n"))

	script, ok := e.InjectionScript("https://news.example.com/story")
	require.True(t, ok)

	assert.Contains(t, script, ".ad-box , .other-ad , .news-ad , z-non-exist { display: none !important }")
	assert.NotContains(t, script, ".never")
	assert.Contains(t, script, "if (document.getElementById('madblock'))")

	script, ok = e.InjectionScript("https://unrelated.org/")
	require.True(t, ok)
	assert.Contains(t, script, "'z-non-exist { display: none !important }'")

	_, ok = e.InjectionScript("not a url")
	assert.False(t, ok)
}

func BenchmarkEngine_IsMatched(b *testing.B) {
	e := loadTestEngine(b, testFilterList)

	b.ReportAllocs()
	for b.Loop() {
		_ = e.match("http://add.doubleclick.net/pfadx/aaaa.mtv", "")
	}
}
