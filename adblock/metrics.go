package adblock

import (
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Download results reported to [Metrics.ObserveDownload].
const (
	DownloadResultOK          = "ok"
	DownloadResultNotModified = "not_modified"
	DownloadResultError       = "error"
)

// Metrics is the interface for the filter engine and manager statistics.
type Metrics interface {
	// ObserveRequest records the decision for one request.
	ObserveRequest(blocked bool)

	// ObserveCacheLookup records a Decision Cache lookup.
	ObserveCacheLookup(hit bool)

	// SetRuleCounts sets the sizes of the currently installed rule set.
	SetRuleCounts(c RuleCounts)

	// ObserveReload records the duration of a rule reload.
	ObserveReload(dur time.Duration)

	// ObserveDownload records the result of a filter list download.  result
	// is one of DownloadResultOK, DownloadResultNotModified, or
	// DownloadResultError.
	ObserveDownload(result string)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveRequest implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveRequest(_ bool) {}

// ObserveCacheLookup implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveCacheLookup(_ bool) {}

// SetRuleCounts implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetRuleCounts(_ RuleCounts) {}

// ObserveReload implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveReload(_ time.Duration) {}

// ObserveDownload implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveDownload(_ string) {}

// subsystem is the Prometheus subsystem of all adblock metrics.
const subsystem = "adblock"

// PrometheusMetrics is the Prometheus-based implementation of the [Metrics]
// interface.
type PrometheusMetrics struct {
	// requests is a counter of request decisions labeled "blocked" or
	// "allowed".
	requests *prometheus.CounterVec

	// cacheLookups is a counter of Decision Cache lookups labeled "hit" or
	// "miss".
	cacheLookups *prometheus.CounterVec

	// rules is a gauge with the number of loaded rules by kind.
	rules *prometheus.GaugeVec

	// reloadDuration is a histogram of rule reload durations.
	reloadDuration prometheus.Histogram

	// downloads is a counter of filter list downloads by result.
	downloads *prometheus.CounterVec
}

// type check
var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the adblock metrics in reg and returns a
// properly initialized *PrometheusMetrics.
func NewPrometheusMetrics(
	namespace string,
	reg prometheus.Registerer,
) (m *PrometheusMetrics, err error) {
	const (
		requestsTotal     = "requests_total"
		cacheLookupsTotal = "decision_cache_lookups_total"
		rulesGauge        = "rules"
		reloadSeconds     = "reload_duration_seconds"
		downloadsTotal    = "downloads_total"
	)

	m = &PrometheusMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      requestsTotal,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "The number of matched requests by decision.",
		}, []string{"decision"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      cacheLookupsTotal,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "The number of decision cache lookups.",
		}, []string{"result"}),
		rules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      rulesGauge,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "The number of loaded rules by kind.",
		}, []string{"kind"}),
		reloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      reloadSeconds,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "Time spent rebuilding the filter engine.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      downloadsTotal,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "The number of filter list downloads by result.",
		}, []string{"result"}),
	}

	var errs []error
	collectors := container.KeyValues[string, prometheus.Collector]{{
		Key:   requestsTotal,
		Value: m.requests,
	}, {
		Key:   cacheLookupsTotal,
		Value: m.cacheLookups,
	}, {
		Key:   rulesGauge,
		Value: m.rules,
	}, {
		Key:   reloadSeconds,
		Value: m.reloadDuration,
	}, {
		Key:   downloadsTotal,
		Value: m.downloads,
	}}

	for _, c := range collectors {
		err = reg.Register(c.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.Key, err))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveRequest implements the [Metrics] interface for *PrometheusMetrics.
func (m *PrometheusMetrics) ObserveRequest(blocked bool) {
	decision := "allowed"
	if blocked {
		decision = "blocked"
	}

	m.requests.WithLabelValues(decision).Inc()
}

// ObserveCacheLookup implements the [Metrics] interface for
// *PrometheusMetrics.
func (m *PrometheusMetrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	m.cacheLookups.WithLabelValues(result).Inc()
}

// SetRuleCounts implements the [Metrics] interface for *PrometheusMetrics.
func (m *PrometheusMetrics) SetRuleCounts(c RuleCounts) {
	m.rules.WithLabelValues(RuleKindURL.String()).Set(float64(c.URLRules))
	m.rules.WithLabelValues(RuleKindGlobalCSS.String()).Set(float64(c.GlobalCSS))
	m.rules.WithLabelValues(RuleKindDomainCSS.String()).Set(float64(c.DomainCSS))
	m.rules.WithLabelValues("signatures").Set(float64(c.Signatures))
	m.rules.WithLabelValues("overflow").Set(float64(c.Overflow))
}

// ObserveReload implements the [Metrics] interface for *PrometheusMetrics.
func (m *PrometheusMetrics) ObserveReload(dur time.Duration) {
	m.reloadDuration.Observe(dur.Seconds())
}

// ObserveDownload implements the [Metrics] interface for *PrometheusMetrics.
func (m *PrometheusMetrics) ObserveDownload(result string) {
	m.downloads.WithLabelValues(result).Inc()
}
