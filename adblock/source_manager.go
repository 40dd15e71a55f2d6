package adblock

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"midoriadblock/config"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/renameio/v2"
)

// Source statuses.
const (
	StatusActive = "active"
	StatusFailed = "failed"
	StatusBad    = "bad"
)

// badFailCount is the number of consecutive failures after which a source is
// considered bad.
const badFailCount = 3

// metaFileName is the name of the source metadata file in the cache
// directory.
const metaFileName = "sources_meta.json"

// SourceStatus is the public view of a filter list source.
type SourceStatus struct {
	URI        string    `json:"uri"`
	Status     string    `json:"status"`
	LastError  string    `json:"last_error"`
	LastUpdate time.Time `json:"last_update"`
	RuleCount  int       `json:"rule_count"`
	Active     bool      `json:"active"`
}

// SourceInfo is a filter list source with its download metadata.
type SourceInfo struct {
	URI          string    `json:"uri"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	LastUpdate   time.Time `json:"last_update"`
	LastError    string    `json:"last_error"`
	Status       string    `json:"status"` // active | failed | bad
	RuleCount    int       `json:"rule_count"`
	FailCount    int       `json:"fail_count"`
	Active       bool      `json:"active"`
}

// IsRemote returns true if uri is downloaded over HTTP.
func IsRemote(uri string) (ok bool) {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// SourceManager keeps the ordered list of filter list sources and their
// metadata.  It is safe for concurrent use.
type SourceManager struct {
	logger   *slog.Logger
	sources  []*SourceInfo
	cacheDir string
	metaFile string
	mu       sync.RWMutex
}

// NewSourceManager creates the cache directory, loads the saved metadata, and
// returns a source manager with the sources from conf, in order.
func NewSourceManager(conf *config.AdBlockConfig, logger *slog.Logger) (sm *SourceManager, err error) {
	if err = os.MkdirAll(conf.CacheDir, 0o755); err != nil {
		return nil, errors.Annotate(err, "creating cache dir: %w")
	}

	sm = &SourceManager{
		logger:   logger,
		cacheDir: conf.CacheDir,
		metaFile: filepath.Join(conf.CacheDir, metaFileName),
	}

	saved, err := sm.loadMeta()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Start with a clean slate.
		logger.Warn("loading source metadata", slogutil.KeyError, err)
	}

	for _, f := range conf.Filters {
		if f.URI == "" || sm.find(f.URI) != nil {
			continue
		}

		s := saved[f.URI]
		if s == nil {
			s = &SourceInfo{
				URI:    f.URI,
				Status: StatusActive,
			}
		}

		s.Active = f.Active
		sm.sources = append(sm.sources, s)
	}

	return sm, nil
}

// loadMeta 读取元数据文件
func (sm *SourceManager) loadMeta() (map[string]*SourceInfo, error) {
	data, err := os.ReadFile(sm.metaFile)
	if err != nil {
		return nil, err
	}

	var sources []*SourceInfo
	if err = json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", sm.metaFile, err)
	}

	saved := make(map[string]*SourceInfo, len(sources))
	for _, s := range sources {
		saved[s.URI] = s
	}

	return saved, nil
}

// Save writes the metadata file atomically.
func (sm *SourceManager) Save() (err error) {
	sm.mu.RLock()
	data, err := json.MarshalIndent(sm.sources, "", "  ")
	sm.mu.RUnlock()
	if err != nil {
		return errors.Annotate(err, "encoding source metadata: %w")
	}

	return renameio.WriteFile(sm.metaFile, data, 0o644)
}

// find returns the source with uri.  sm.mu must be held.
func (sm *SourceManager) find(uri string) (s *SourceInfo) {
	for _, s = range sm.sources {
		if s.URI == uri {
			return s
		}
	}

	return nil
}

// CachePath returns the local path of the list for uri.  "file:" URIs and
// plain paths are used as is, remote lists live in the cache directory under
// the MD5 of their URI.
func (sm *SourceManager) CachePath(uri string) (path string) {
	if !IsRemote(uri) {
		path = strings.TrimPrefix(uri, "file://")

		return strings.TrimPrefix(path, "file:")
	}

	sum := md5.Sum([]byte(uri))

	return filepath.Join(sm.cacheDir, hex.EncodeToString(sum[:]))
}

// Sources returns the configured sources in order.
func (sm *SourceManager) Sources() (srcs []config.FilterListSource) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	srcs = make([]config.FilterListSource, 0, len(sm.sources))
	for _, s := range sm.sources {
		srcs = append(srcs, config.FilterListSource{
			URI:    s.URI,
			Active: s.Active,
		})
	}

	return srcs
}

// Snapshot returns copies of all sources in order.
func (sm *SourceManager) Snapshot() (infos []SourceInfo) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	infos = make([]SourceInfo, 0, len(sm.sources))
	for _, s := range sm.sources {
		infos = append(infos, *s)
	}

	return infos
}

// Add appends a source.  If uri is already known, only its active flag is
// updated.
func (sm *SourceManager) Add(uri string, active bool) (err error) {
	if uri == "" {
		return errors.Error("empty source uri")
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s := sm.find(uri); s != nil {
		s.Active = active

		return nil
	}

	sm.sources = append(sm.sources, &SourceInfo{
		URI:    uri,
		Status: StatusActive,
		Active: active,
	})

	return nil
}

// Remove removes a source and its cached list.
func (sm *SourceManager) Remove(uri string) (err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for i, s := range sm.sources {
		if s.URI != uri {
			continue
		}

		sm.sources = append(sm.sources[:i], sm.sources[i+1:]...)
		if IsRemote(uri) {
			err = os.Remove(sm.CachePath(uri))
			if errors.Is(err, fs.ErrNotExist) {
				err = nil
			}
		}

		return err
	}

	return errors.Annotate(ErrSourceNotFound, "%q: %w", uri)
}

// SetActive enables or disables a source.
func (sm *SourceManager) SetActive(uri string, active bool) (err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := sm.find(uri)
	if s == nil {
		return errors.Annotate(ErrSourceNotFound, "%q: %w", uri)
	}

	s.Active = active

	return nil
}

// UpdateStatus records the result of fetching updated.URI.  The cache
// headers of updated are kept on success.
func (sm *SourceManager) UpdateStatus(updated *SourceInfo, fetchErr error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := sm.find(updated.URI)
	if s == nil {
		return
	}

	s.LastUpdate = time.Now()
	if fetchErr != nil {
		s.LastError = fetchErr.Error()
		s.FailCount++
		s.Status = StatusFailed
		if s.FailCount >= badFailCount {
			s.Status = StatusBad
		}

		return
	}

	s.ETag = updated.ETag
	s.LastModified = updated.LastModified
	s.LastError = ""
	s.FailCount = 0
	s.Status = StatusActive
}

// SetRuleCount records the number of rules parsed from the list of uri.
func (sm *SourceManager) SetRuleCount(uri string, n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s := sm.find(uri); s != nil {
		s.RuleCount = n
	}
}

// Statuses returns the public view of all sources in order.
func (sm *SourceManager) Statuses() (statuses []SourceStatus) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	statuses = make([]SourceStatus, 0, len(sm.sources))
	for _, s := range sm.sources {
		statuses = append(statuses, SourceStatus{
			URI:        s.URI,
			Status:     s.Status,
			LastError:  s.LastError,
			LastUpdate: s.LastUpdate,
			RuleCount:  s.RuleCount,
			Active:     s.Active,
		})
	}

	return statuses
}

// FailedSources returns the URIs of active sources that failed.
func (sm *SourceManager) FailedSources() (uris []string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, s := range sm.sources {
		if s.Active && (s.Status == StatusFailed || s.Status == StatusBad) {
			uris = append(uris, s.URI)
		}
	}

	return uris
}

// customListHeader is written into a new custom list.
const customListHeader = `! midoriadblock custom filter list
!
! One rule per line, in Adblock Plus syntax:
!   ads.example.com/           block URLs containing ads.example.com/
!   */banner/*                 block URLs containing /banner/
!   example.com##.ad-box       hide .ad-box on example.com
!   ##.sponsored               hide .sponsored everywhere
!
! Lines starting with '!' are comments.
`

// ensureCustomList 如果自定义规则文件不存在，则创建带注释头的文件
func ensureCustomList(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return renameio.WriteFile(path, []byte(customListHeader), 0o644)
}
