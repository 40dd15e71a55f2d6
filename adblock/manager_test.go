package adblock

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"midoriadblock/config"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 5 * time.Second

const (
	testListURI   = "https://lists.example/easylist.txt"
	brokenListURI = "https://lists.example/broken.txt"
)

const testRemoteList = `! Title: remote
ads.example.com/
##.banner
example.com##.sidebar
`

// fakeDownloader writes testRemoteList for every URI but brokenListURI.
type fakeDownloader struct {
	mu    sync.Mutex
	calls map[string]int
}

// type check
var _ Downloader = (*fakeDownloader)(nil)

// Download implements the [Downloader] interface for *fakeDownloader.
func (d *fakeDownloader) Download(_ context.Context, src *SourceInfo, dst string) (err error) {
	d.mu.Lock()
	d.calls[src.URI]++
	d.mu.Unlock()

	if src.URI == brokenListURI {
		return fmt.Errorf("requesting %q: bad status 404 Not Found", src.URI)
	}

	src.ETag = `"test"`

	return os.WriteFile(dst, []byte(testRemoteList), 0o644)
}

// callsFor returns the number of downloads of uri.
func (d *fakeDownloader) callsFor(uri string) (n int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls[uri]
}

// fakeStyler records the registered stylesheets.
type fakeStyler struct {
	mu     sync.Mutex
	sheets map[string]string
}

// type check
var _ Styler = (*fakeStyler)(nil)

// RegisterStylesheet implements the [Styler] interface for *fakeStyler.
func (s *fakeStyler) RegisterStylesheet(id, css string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sheets[id] = css
}

// UnregisterStylesheet implements the [Styler] interface for *fakeStyler.
func (s *fakeStyler) UnregisterStylesheet(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sheets, id)
}

// sheet returns the stylesheet with id and whether it's registered.
func (s *fakeStyler) sheet(id string) (css string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	css, ok = s.sheets[id]

	return css, ok
}

// newTestManager returns a started manager with one remote source.
func newTestManager(t *testing.T) (m *Manager, d *fakeDownloader, s *fakeStyler) {
	t.Helper()

	d = &fakeDownloader{calls: map[string]int{}}
	s = &fakeStyler{sheets: map[string]string{}}

	m, err := NewManager(&ManagerConfig{
		Logger:     slogutil.NewDiscardLogger(),
		Styler:     s,
		Downloader: d,
		AdBlock: &config.AdBlockConfig{
			Enable:         true,
			ConfigDir:      t.TempDir(),
			CacheDir:       t.TempDir(),
			StalenessHours: 24,
			Filters: []config.FilterListSource{
				{URI: testListURI, Active: true},
			},
		},
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	require.NoError(t, m.Start(ctx))

	// The list is downloaded in the background and then loaded.
	require.Eventually(t, func() (ok bool) {
		return m.Test("http://ads.example.com/x.js", "").Blocked
	}, testTimeout, 10*time.Millisecond)

	return m, d, s
}

func TestManager_Start(t *testing.T) {
	m, d, s := newTestManager(t)

	assert.Equal(t, 1, d.callsFor(testListURI))

	css, ok := s.sheet(StylesheetID)
	require.True(t, ok)
	assert.Contains(t, css, ".banner")

	srcs := m.Sources()
	require.Len(t, srcs, 1)
	assert.Equal(t, StatusActive, srcs[0].Status)
	assert.Equal(t, 3, srcs[0].RuleCount)

	m.Close()

	_, ok = s.sheet(StylesheetID)
	assert.False(t, ok)
}

func TestManager_Hooks(t *testing.T) {
	m, _, _ := newTestManager(t)

	const adURL = "http://ads.example.com/banner.gif"
	assert.Equal(t, ActionBlock, m.OnRequestStarting(adURL, "http://news.example/"))
	assert.Equal(t, ActionAllow, m.OnRequestStarting("http://cdn.example/app.js", ""))
	assert.Equal(t, []string{adURL}, m.RecentlyBlocked())

	st := m.GetStats()
	assert.Equal(t, int64(1), st.BlockedTotal)
	assert.Equal(t, int64(1), st.BlockedToday)
	assert.Equal(t, 1, st.SourcesCount)
	assert.Equal(t, 3, st.TotalRules)
	assert.True(t, st.Enabled)
	assert.NotEmpty(t, st.LastUpdate)

	script := m.OnDocumentStart("https://www.example.com/")
	assert.Contains(t, script, ".sidebar , z-non-exist")
	assert.Empty(t, m.OnDocumentStart("about:blank"))

	m.SetEnabled(false)
	assert.False(t, m.Enabled())
	assert.Equal(t, ActionAllow, m.OnRequestStarting(adURL, ""))
	assert.Empty(t, m.OnDocumentStart("https://www.example.com/"))

	m.SetEnabled(true)
	assert.Equal(t, ActionBlock, m.OnRequestStarting(adURL, ""))
}

func TestManager_AddCustomRule(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	err := m.AddCustomRule(ctx, "tracker.example.org/$third-party")
	require.NoError(t, err)

	custom, err := m.CustomRules()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(custom, "tracker.example.org/$third-party\n"))

	// The remote list survives the reload.
	assert.True(t, m.Test("http://ads.example.com/x.js", "").Blocked)

	// Without a page URL, the last committed navigation is used.
	m.OnNavigationCommitted("http://tracker.example.org/")
	assert.Equal(t, ActionAllow, m.OnRequestStarting("http://tracker.example.org/a.gif", ""))
	assert.Equal(t, ActionBlock, m.OnRequestStarting("http://tracker.example.org/b.gif", "http://news.example/"))

	assert.ErrorIs(t, m.AddCustomRule(ctx, "a.example/\nb.example/"), ErrInvalidRule)
	assert.ErrorIs(t, m.AddCustomRule(ctx, "   "), ErrInvalidRule)
}

func TestManager_UpdateRules(t *testing.T) {
	m, d, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.UpdateRules(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 1, d.callsFor(testListURI))

	res, err = m.UpdateRules(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.FailedSources)
	assert.Equal(t, 3, res.TotalRules)
	assert.Equal(t, 2, d.callsFor(testListURI))
}

func TestManager_Sources(t *testing.T) {
	m, d, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AddSource(ctx, brokenListURI, true))

	require.Eventually(t, func() (ok bool) {
		return len(m.GetStats().FailedSources) == 1
	}, testTimeout, 10*time.Millisecond)

	srcs := m.Sources()
	require.Len(t, srcs, 2)
	assert.Equal(t, StatusFailed, srcs[1].Status)
	assert.NotEmpty(t, srcs[1].LastError)
	assert.Equal(t, 1, d.callsFor(brokenListURI))

	res, err := m.UpdateRules(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{brokenListURI}, res.FailedSources)

	require.NoError(t, m.SetSourceActive(ctx, testListURI, false))
	assert.False(t, m.Test("http://ads.example.com/y.js", "").Blocked)

	require.NoError(t, m.RemoveSource(ctx, brokenListURI))
	assert.Equal(t, []config.FilterListSource{
		{URI: testListURI, Active: false},
	}, m.FilterSources())

	assert.ErrorIs(t, m.RemoveSource(ctx, brokenListURI), ErrSourceNotFound)
}

func TestManager_OnLoadFinished(t *testing.T) {
	m, _, _ := newTestManager(t)

	const (
		pageURL = "http://news.example/"
		adURL   = "http://ads.example.com/banner.gif"
	)

	assert.Empty(t, m.OnLoadFinished(pageURL))

	m.OnNavigationCommitted(pageURL)
	require.Equal(t, ActionBlock, m.OnRequestStarting(adURL, ""))
	require.Equal(t, ActionBlock, m.OnRequestStarting(adURL, pageURL))
	require.Equal(t, ActionAllow, m.OnRequestStarting("http://cdn.example/app.js", ""))

	script := m.OnLoadFinished(pageURL)
	assert.Contains(t, script, "var uris = ['"+adURL+"'];")

	// Another page has its own list.
	assert.Empty(t, m.OnLoadFinished("http://other.example/"))

	m.SetEnabled(false)
	assert.Empty(t, m.OnLoadFinished(pageURL))
	m.SetEnabled(true)

	// A new navigation to the page starts over.
	m.OnNavigationCommitted(pageURL)
	assert.Empty(t, m.OnLoadFinished(pageURL))
}

func TestManager_ReloadResetsDecisions(t *testing.T) {
	m, _, _ := newTestManager(t)

	const reqURL = "http://pixel.example.net/p.gif"
	require.Equal(t, ActionAllow, m.OnRequestStarting(reqURL, ""))
	require.Equal(t, ActionAllow, m.OnRequestStarting(reqURL, ""))

	require.NoError(t, m.AddCustomRule(context.Background(), "pixel.example.net/"))

	assert.Equal(t, ActionBlock, m.OnRequestStarting(reqURL, ""))
}

func TestManager_Close(t *testing.T) {
	m, d, _ := newTestManager(t)

	const lateURI = "https://lists.example/late.txt"

	m.Close()

	// The reload still installs the rules, but no download starts after
	// Close.
	require.NoError(t, m.AddSource(context.Background(), lateURI, true))

	assert.Never(t, func() (ok bool) {
		return d.callsFor(lateURI) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.True(t, m.Test("http://ads.example.com/x.js", "").Blocked)
}
