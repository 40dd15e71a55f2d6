package adblock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/c2h5oh/datasize"
	"github.com/google/renameio/v2"
)

const (
	defaultMaxConcurrentDownloads = 5
	defaultDownloadTimeout        = 30 * time.Second
	defaultMaxListSize            = 50 * datasize.MB
)

// Downloader fetches a remote filter list into a local file.
type Downloader interface {
	// Download fetches src.URI into dst.  It may use and update the cache
	// headers of src.  A list that is not modified leaves dst untouched and
	// is not an error.
	Download(ctx context.Context, src *SourceInfo, dst string) (err error)
}

// UpdateResult is the result of [Manager.UpdateRules].
type UpdateResult struct {
	TotalRules      int      `json:"total_rules"`
	Sources         int      `json:"sources"`
	Updated         int      `json:"updated"`
	Skipped         int      `json:"skipped"`
	FailedSources   []string `json:"failed_sources"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// HTTPDownloaderConfig is the configuration structure for
// [*HTTPDownloader].
type HTTPDownloaderConfig struct {
	// Logger is used for download messages.  It must not be nil.
	Logger *slog.Logger

	// Metrics receives download results.  It must not be nil.
	Metrics Metrics

	// Client is the HTTP client.  If nil, a client with Timeout is used.
	Client *http.Client

	// Timeout is the timeout of a single download.
	Timeout time.Duration

	// MaxSize is the size limit of a list.
	MaxSize datasize.ByteSize
}

// HTTPDownloader is the HTTP implementation of [Downloader].  It sends
// conditional requests when the cache headers of a source are known.
type HTTPDownloader struct {
	logger  *slog.Logger
	metrics Metrics
	client  *http.Client
	maxSize datasize.ByteSize
}

// type check
var _ Downloader = (*HTTPDownloader)(nil)

// NewHTTPDownloader returns a new properly initialized *HTTPDownloader.
func NewHTTPDownloader(conf *HTTPDownloaderConfig) (d *HTTPDownloader) {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}

	client := conf.Client
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
		}
	}

	maxSize := conf.MaxSize
	if maxSize == 0 {
		maxSize = defaultMaxListSize
	}

	return &HTTPDownloader{
		logger:  conf.Logger,
		metrics: conf.Metrics,
		client:  client,
		maxSize: maxSize,
	}
}

// Download implements the [Downloader] interface for *HTTPDownloader.
func (d *HTTPDownloader) Download(ctx context.Context, src *SourceInfo, dst string) (err error) {
	defer func() {
		if err != nil {
			d.metrics.ObserveDownload(DownloadResultError)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URI, nil)
	if err != nil {
		return errors.Annotate(err, "creating request: %w")
	}

	// Only ask for a conditional response when there is something to keep.
	if _, statErr := os.Stat(dst); statErr == nil {
		if src.ETag != "" {
			req.Header.Set(httphdr.IfNoneMatch, src.ETag)
		}

		if src.LastModified != "" {
			req.Header.Set(httphdr.IfModifiedSince, src.LastModified)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Annotate(err, "requesting %q: %w", src.URI)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	switch resp.StatusCode {
	case http.StatusOK:
		// Go on.
	case http.StatusNotModified:
		d.logger.Debug("list not modified", "uri", src.URI)
		d.metrics.ObserveDownload(DownloadResultNotModified)

		return nil
	default:
		return fmt.Errorf("requesting %q: bad status %s", src.URI, resp.Status)
	}

	n, err := writeLimited(dst, resp.Body, d.maxSize)
	if err != nil {
		return errors.Annotate(err, "downloading %q: %w", src.URI)
	}

	src.ETag = resp.Header.Get(httphdr.ETag)
	src.LastModified = resp.Header.Get(httphdr.LastModified)

	d.logger.Info("list downloaded", "uri", src.URI, "size", datasize.ByteSize(n).HR())
	d.metrics.ObserveDownload(DownloadResultOK)

	return nil
}

// writeLimited atomically replaces dst with the contents of r.  dst is left
// untouched if r is empty or larger than maxSize.
func writeLimited(dst string, r io.Reader, maxSize datasize.ByteSize) (n int64, err error) {
	pf, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.WithDeferred(err, pf.Cleanup()) }()

	limit := int64(maxSize.Bytes())
	n, err = io.Copy(pf, io.LimitReader(r, limit+1))
	if err != nil {
		return n, err
	}

	switch {
	case n == 0:
		return 0, ErrEmptyList
	case n > limit:
		return n, fmt.Errorf("%w: over %s", ErrListTooLarge, maxSize.HR())
	}

	return n, pf.CloseAtomicallyReplace()
}

// loadFile feeds the list at path into e.
func loadFile(e FilterEngine, path string) (n int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	return e.LoadRules(f)
}
