package adblock

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"midoriadblock/cache"
	"midoriadblock/config"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// StylesheetID is the id under which the global element hiding stylesheet is
// registered with the [Styler].
const StylesheetID = "adblock-blockcss"

// customListName is the name of the custom list in the config directory.
const customListName = "custom.list"

const (
	// pageHistorySize is the number of pages whose blocked URIs are kept.
	pageHistorySize = 32

	// maxBlockedPerPage limits the blocked URIs kept for a single page.
	maxBlockedPerPage = 256
)

// Styler is the page styling collaborator.
type Styler interface {
	// RegisterStylesheet installs css under id, replacing any stylesheet
	// with the same id.
	RegisterStylesheet(id, css string)

	// UnregisterStylesheet removes the stylesheet with id.
	UnregisterStylesheet(id string)
}

// EmptyStyler is a [Styler] that does nothing.
type EmptyStyler struct{}

// type check
var _ Styler = EmptyStyler{}

// RegisterStylesheet implements the [Styler] interface for EmptyStyler.
func (EmptyStyler) RegisterStylesheet(_, _ string) {}

// UnregisterStylesheet implements the [Styler] interface for EmptyStyler.
func (EmptyStyler) UnregisterStylesheet(_ string) {}

// ManagerConfig is the configuration structure for [NewManager].
type ManagerConfig struct {
	// Logger is used for the manager and its engines.  It must not be nil.
	Logger *slog.Logger

	// Metrics receives matching and loading statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics

	// Styler receives the global stylesheet.  If nil, [EmptyStyler] is
	// used.
	Styler Styler

	// Downloader fetches remote lists.  If nil, an [HTTPDownloader] built
	// from AdBlock is used.
	Downloader Downloader

	// AdBlock is the adblock configuration.  It must not be nil.
	AdBlock *config.AdBlockConfig
}

// Manager owns the filter list sources and the current filter engine.  It
// rebuilds the engine from scratch on every reload and swaps it whole.
type Manager struct {
	logger     *slog.Logger
	metrics    Metrics
	styler     Styler
	downloader Downloader
	sources    *SourceManager
	stats      *Stats
	recent     cache.RecentlyBlockedTracker

	// bgCtx bounds the background downloads and the update ticker.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	// bgMu protects closed and orders bgWG.Add before bgWG.Wait.
	bgMu   sync.Mutex
	closed bool

	// downloads deduplicates concurrent downloads of the same URI.
	downloads singleflight.Group

	// reloadMu serializes reloads.
	reloadMu sync.Mutex

	// mu protects engine and lastUpdate.
	mu         sync.RWMutex
	engine     FilterEngine
	lastUpdate time.Time

	// pageMu protects lastPageURL and the updates of pageBlocked.
	pageMu      sync.Mutex
	lastPageURL string

	// pageBlocked maps page URLs to the URIs blocked on them.
	pageBlocked *lru.Cache

	engineName    string
	customPath    string
	engineConf    *EngineConfig
	updateEvery   time.Duration
	staleness     time.Duration
	maxConcurrent int

	enabled atomic.Bool
}

// type check
var _ Hooks = (*Manager)(nil)

// NewManager returns a new manager with an empty engine.  Call
// [Manager.Start] or [Manager.ReloadRules] to load the rules.
func NewManager(conf *ManagerConfig) (m *Manager, err error) {
	ab := conf.AdBlock

	metrics := conf.Metrics
	if metrics == nil {
		metrics = EmptyMetrics{}
	}

	styler := conf.Styler
	if styler == nil {
		styler = EmptyStyler{}
	}

	engConf := &EngineConfig{
		Logger:            conf.Logger,
		Metrics:           metrics,
		DecisionCacheSize: ab.DecisionCacheSize,
		MaxLineLength:     ab.MaxLineLength,
	}

	engine, err := NewFilterEngine(ab.Engine, engConf)
	if err != nil {
		return nil, err
	}

	engine.Finish()

	sources, err := NewSourceManager(ab, conf.Logger)
	if err != nil {
		return nil, errors.Annotate(err, "creating source manager: %w")
	}

	customPath := filepath.Join(ab.ConfigDir, customListName)
	if err = ensureCustomList(customPath); err != nil {
		return nil, errors.Annotate(err, "creating custom list: %w")
	}

	downloader := conf.Downloader
	if downloader == nil {
		downloader = NewHTTPDownloader(&HTTPDownloaderConfig{
			Logger:  conf.Logger,
			Metrics: metrics,
			Timeout: time.Duration(ab.DownloadTimeoutSeconds) * time.Second,
			MaxSize: ab.MaxListSize,
		})
	}

	maxConcurrent := ab.MaxConcurrentDownloads
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentDownloads
	}

	pageBlocked, err := lru.New(pageHistorySize)
	if err != nil {
		return nil, errors.Annotate(err, "creating page history: %w")
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	m = &Manager{
		logger:        conf.Logger,
		metrics:       metrics,
		styler:        styler,
		downloader:    downloader,
		sources:       sources,
		stats:         NewStats(),
		recent:        cache.NewRecentlyBlockedTracker(),
		bgCtx:         bgCtx,
		bgCancel:      bgCancel,
		engine:        engine,
		engineName:    strings.ToLower(ab.Engine),
		customPath:    customPath,
		engineConf:    engConf,
		updateEvery:   time.Duration(ab.UpdateIntervalHours) * time.Hour,
		staleness:     time.Duration(ab.StalenessHours) * time.Hour,
		maxConcurrent: maxConcurrent,
		pageBlocked:   pageBlocked,
	}
	m.enabled.Store(ab.Enable)

	return m, nil
}

// Start loads the rules and, if an update interval is configured, starts
// updating the lists in the background until ctx is canceled or the manager
// is closed.
func (m *Manager) Start(ctx context.Context) (err error) {
	err = m.ReloadRules(ctx, false)
	if err != nil {
		m.logger.WarnContext(ctx, "initial reload", slogutil.KeyError, err)
	}

	if m.updateEvery <= 0 {
		return nil
	}

	m.goBackground(func() { m.updateLoop(ctx) })

	return nil
}

// goBackground runs f in a tracked goroutine.  It returns false and doesn't
// run f once the manager is closed.
func (m *Manager) goBackground(f func()) (ok bool) {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()

	if m.closed {
		return false
	}

	m.bgWG.Add(1)
	go func() {
		defer m.bgWG.Done()

		f()
	}()

	return true
}

// updateLoop calls UpdateRules on every tick.
func (m *Manager) updateLoop(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, m.logger)

	ticker := time.NewTicker(m.updateEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := m.UpdateRules(m.bgCtx, false)
			if err != nil {
				m.logger.ErrorContext(ctx, "scheduled update", slogutil.KeyError, err)

				continue
			}

			m.logger.InfoContext(
				ctx,
				"scheduled update",
				"rules", res.TotalRules,
				"updated", res.Updated,
				"failed", len(res.FailedSources),
			)
		case <-ctx.Done():
			return
		case <-m.bgCtx.Done():
			return
		}
	}
}

// Close stops the background work and unregisters the global stylesheet.
func (m *Manager) Close() {
	m.bgMu.Lock()
	m.closed = true
	m.bgMu.Unlock()

	m.bgCancel()
	m.bgWG.Wait()
	m.styler.UnregisterStylesheet(StylesheetID)
}

// ReloadRules builds a new engine from the custom list and, unless
// customOnly, from every active source, then swaps it in.  A source without a
// local copy is downloaded in the background and another reload follows.
//
// Source failures are logged and never fail the reload.  err is only
// returned when ctx is canceled or the custom list can't be read, and the
// rules that were loaded are installed anyway.
func (m *Manager) ReloadRules(ctx context.Context, customOnly bool) (err error) {
	return m.reload(ctx, customOnly, true)
}

// reload is ReloadRules that doesn't start downloads unless allowDownloads.
func (m *Manager) reload(ctx context.Context, customOnly, allowDownloads bool) (err error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	start := time.Now()

	// The engine name has been validated in NewManager.
	eng, _ := NewFilterEngine(m.engineName, m.engineConf)

	var errs []error
	if _, cerr := loadFile(eng, m.customPath); cerr != nil {
		errs = append(errs, errors.Annotate(cerr, "loading custom list: %w"))
	}

	if !customOnly {
		errs = append(errs, m.loadSources(ctx, eng, allowDownloads))
	}

	eng.Finish()
	m.styler.RegisterStylesheet(StylesheetID, eng.GlobalStylesheet())

	m.mu.Lock()
	m.engine = eng
	m.lastUpdate = time.Now()
	m.mu.Unlock()

	dur := time.Since(start)
	m.metrics.ObserveReload(dur)

	c := eng.Counts()
	m.logger.InfoContext(
		ctx,
		"rules reloaded",
		"custom_only", customOnly,
		"url_rules", c.URLRules,
		"css_rules", c.GlobalCSS+c.DomainCSS,
		"elapsed", dur,
	)

	return errors.Join(errs...)
}

// loadSources feeds the local copies of all active sources into eng.  It
// only returns an error when ctx is canceled.
func (m *Manager) loadSources(ctx context.Context, eng FilterEngine, allowDownloads bool) (err error) {
	for _, src := range m.sources.Snapshot() {
		if err = ctx.Err(); err != nil {
			return errors.Annotate(err, "loading sources: %w")
		}

		if !src.Active {
			continue
		}

		n, lerr := loadFile(eng, m.sources.CachePath(src.URI))
		switch {
		case lerr == nil:
			m.sources.SetRuleCount(src.URI, n)
		case errors.Is(lerr, fs.ErrNotExist) && IsRemote(src.URI):
			if allowDownloads {
				m.downloadAsync(src)
			}
		default:
			m.logger.WarnContext(ctx, "loading source", "uri", src.URI, slogutil.KeyError, lerr)
			m.sources.UpdateStatus(&src, lerr)
		}
	}

	return nil
}

// downloadAsync downloads src in the background and reloads the rules once
// the download is done.  The follow-up reload starts no downloads.
func (m *Manager) downloadAsync(src SourceInfo) {
	m.goBackground(func() {
		defer slogutil.RecoverAndLog(m.bgCtx, m.logger)

		if err := m.fetch(m.bgCtx, src); err != nil {
			m.logger.WarnContext(m.bgCtx, "downloading source", "uri", src.URI, slogutil.KeyError, err)

			return
		}

		if err := m.sources.Save(); err != nil {
			m.logger.WarnContext(m.bgCtx, "saving source metadata", slogutil.KeyError, err)
		}

		if err := m.reload(m.bgCtx, false, false); err != nil {
			m.logger.WarnContext(m.bgCtx, "reloading after download", slogutil.KeyError, err)
		}
	})
}

// fetch downloads src into its cache path and records the result.
// Concurrent fetches of the same URI share one download.
func (m *Manager) fetch(ctx context.Context, src SourceInfo) (err error) {
	_, err, _ = m.downloads.Do(src.URI, func() (_ any, dlErr error) {
		dlErr = m.downloader.Download(ctx, &src, m.sources.CachePath(src.URI))
		m.sources.UpdateStatus(&src, dlErr)

		return nil, dlErr
	})

	return err
}

// UpdateRules downloads the active remote sources, skipping those updated
// within the staleness period unless force is set, and reloads the rules.
func (m *Manager) UpdateRules(ctx context.Context, force bool) (res *UpdateResult, err error) {
	start := time.Now()
	all := m.sources.Snapshot()
	res = &UpdateResult{
		Sources: len(all),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrent)

	for _, src := range all {
		if !src.Active || !IsRemote(src.URI) {
			continue
		}

		if !force && m.isFresh(src) {
			res.Skipped++

			continue
		}

		g.Go(func() (_ error) {
			fetchErr := m.fetch(gctx, src)

			mu.Lock()
			defer mu.Unlock()

			if fetchErr != nil {
				m.logger.WarnContext(gctx, "updating source", "uri", src.URI, slogutil.KeyError, fetchErr)
				res.FailedSources = append(res.FailedSources, src.URI)
			} else {
				res.Updated++
			}

			return nil
		})
	}

	_ = g.Wait()

	if err = m.sources.Save(); err != nil {
		m.logger.WarnContext(ctx, "saving source metadata", slogutil.KeyError, err)
	}

	err = m.reload(ctx, false, false)

	res.TotalRules = m.currentEngine().Counts().Total()
	res.DurationSeconds = time.Since(start).Seconds()

	return res, err
}

// isFresh returns true if the local copy of src is younger than the
// staleness period.
func (m *Manager) isFresh(src SourceInfo) (ok bool) {
	if src.LastUpdate.IsZero() || time.Since(src.LastUpdate) >= m.staleness {
		return false
	}

	_, err := os.Stat(m.sources.CachePath(src.URI))

	return err == nil
}

// currentEngine returns the installed engine.
func (m *Manager) currentEngine() (e FilterEngine) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.engine
}

// SetEnabled enables or disables filtering.  A disabled manager allows every
// request and injects nothing.
func (m *Manager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// Enabled returns true if filtering is enabled.
func (m *Manager) Enabled() (ok bool) {
	return m.enabled.Load()
}

// Test returns the decision for requestURL without recording it.
func (m *Manager) Test(requestURL, pageURL string) (d Decision) {
	return m.currentEngine().Explain(requestURL, pageURL)
}

// GlobalStylesheet returns the global element hiding stylesheet of the
// installed engine.
func (m *Manager) GlobalStylesheet() (css string) {
	return m.currentEngine().GlobalStylesheet()
}

// AddCustomRule appends line to the custom list and reloads the rules.
func (m *Manager) AddCustomRule(ctx context.Context, line string) (err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.ContainsAny(line, "\r\n") {
		return ErrInvalidRule
	}

	err = appendLine(m.customPath, line)
	if err != nil {
		return errors.Annotate(err, "writing custom list: %w")
	}

	return m.ReloadRules(ctx, false)
}

// appendLine appends line to the file at path.
func appendLine(path, line string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	_, err = f.WriteString(line + "\n")

	return err
}

// CustomRules returns the content of the custom list.
func (m *Manager) CustomRules() (content string, err error) {
	data, err := os.ReadFile(m.customPath)
	if err != nil {
		return "", errors.Annotate(err, "reading custom list: %w")
	}

	return string(data), nil
}

// Sources returns the status of all sources.
func (m *Manager) Sources() (statuses []SourceStatus) {
	return m.sources.Statuses()
}

// FilterSources returns the sources in configuration form.
func (m *Manager) FilterSources() (srcs []config.FilterListSource) {
	return m.sources.Sources()
}

// AddSource adds a source and saves the metadata.  The rules are reloaded
// so that an active source is downloaded.
func (m *Manager) AddSource(ctx context.Context, uri string, active bool) (err error) {
	if err = m.sources.Add(uri, active); err != nil {
		return err
	}

	return m.saveAndReload(ctx)
}

// RemoveSource removes a source with its cached list and reloads the rules.
func (m *Manager) RemoveSource(ctx context.Context, uri string) (err error) {
	if err = m.sources.Remove(uri); err != nil {
		return err
	}

	return m.saveAndReload(ctx)
}

// SetSourceActive enables or disables a source and reloads the rules.
func (m *Manager) SetSourceActive(ctx context.Context, uri string, active bool) (err error) {
	if err = m.sources.SetActive(uri, active); err != nil {
		return err
	}

	return m.saveAndReload(ctx)
}

// saveAndReload saves the source metadata and reloads the rules.
func (m *Manager) saveAndReload(ctx context.Context) (err error) {
	if err = m.sources.Save(); err != nil {
		return errors.Annotate(err, "saving source metadata: %w")
	}

	return m.ReloadRules(ctx, false)
}

// RecentlyBlocked returns the most recently blocked request URLs, oldest
// first.
func (m *Manager) RecentlyBlocked() (urls []string) {
	return m.recent.GetAll()
}

// GetStats returns the current adblock statistics.
func (m *Manager) GetStats() (st AdBlockStats) {
	m.mu.RLock()
	counts := m.engine.Counts()
	lastUpdate := m.lastUpdate
	m.mu.RUnlock()

	return m.stats.GetStats(&statsInput{
		lastUpdate:    lastUpdate,
		engine:        m.engineName,
		failedSources: m.sources.FailedSources(),
		counts:        counts,
		sourcesCount:  len(m.sources.Statuses()),
		enabled:       m.Enabled(),
	})
}
