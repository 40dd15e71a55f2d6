package adblock

import "slices"

// Response of a blocked request.  The blank text body replaces the
// resource.
const (
	BlockedContentType = "text/plain"
	BlockedBody        = "adblock"
)

// Hooks is the interface between the filter engine and the browser.
type Hooks interface {
	// OnRequestStarting is called before a subresource request is sent.
	// pageURL is the URL of the page that issues the request and may be
	// empty.
	OnRequestStarting(requestURL, pageURL string) (a Action)

	// OnNavigationCommitted is called when a top-level navigation commits.
	OnNavigationCommitted(pageURL string)

	// OnDocumentStart returns the script to evaluate at document start of
	// pageURL, or an empty string.
	OnDocumentStart(pageURL string) (script string)

	// OnLoadFinished returns the script collapsing the elements of pageURL
	// whose requests were blocked, or an empty string.
	OnLoadFinished(pageURL string) (script string)
}

// OnRequestStarting implements the [Hooks] interface for *Manager.  An empty
// pageURL is replaced by the last committed navigation.
func (m *Manager) OnRequestStarting(requestURL, pageURL string) (a Action) {
	if !m.Enabled() {
		return ActionAllow
	}

	if pageURL == "" {
		m.pageMu.Lock()
		pageURL = m.lastPageURL
		m.pageMu.Unlock()
	}

	blocked := m.currentEngine().IsMatched(requestURL, pageURL)
	m.metrics.ObserveRequest(blocked)
	if !blocked {
		return ActionAllow
	}

	m.stats.RecordBlock()
	m.recent.Add(requestURL)
	m.recordPageBlock(pageURL, requestURL)

	return ActionBlock
}

// recordPageBlock remembers that requestURL was blocked on pageURL.
func (m *Manager) recordPageBlock(pageURL, requestURL string) {
	if pageURL == "" {
		return
	}

	m.pageMu.Lock()
	defer m.pageMu.Unlock()

	var uris []string
	if v, ok := m.pageBlocked.Get(pageURL); ok {
		uris = v.([]string)
	}

	if len(uris) >= maxBlockedPerPage || slices.Contains(uris, requestURL) {
		return
	}

	m.pageBlocked.Add(pageURL, append(slices.Clip(uris), requestURL))
}

// OnNavigationCommitted implements the [Hooks] interface for *Manager.
func (m *Manager) OnNavigationCommitted(pageURL string) {
	m.pageMu.Lock()
	defer m.pageMu.Unlock()

	m.lastPageURL = pageURL

	// 新的导航从空的拦截列表开始
	m.pageBlocked.Remove(pageURL)
}

// OnDocumentStart implements the [Hooks] interface for *Manager.
func (m *Manager) OnDocumentStart(pageURL string) (script string) {
	if !m.Enabled() {
		return ""
	}

	script, ok := m.currentEngine().InjectionScript(pageURL)
	if !ok {
		return ""
	}

	return script
}

// OnLoadFinished implements the [Hooks] interface for *Manager.
func (m *Manager) OnLoadFinished(pageURL string) (script string) {
	if !m.Enabled() {
		return ""
	}

	m.pageMu.Lock()
	v, ok := m.pageBlocked.Get(pageURL)
	m.pageMu.Unlock()

	if !ok {
		return ""
	}

	return ElementHiderScript(v.([]string))
}
