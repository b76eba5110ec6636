// Package metrics exposes Prometheus metrics for the results API: request
// counters plus gauges describing the last published pipeline run, read from
// the store on each scrape.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grantlens/internal/store"
)

// HTTPRequests counts API requests by route and status class.
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "grantlens_http_requests_total",
		Help: "Total HTTP requests by route and status class",
	},
	[]string{"route", "status"},
)

var (
	nonprofitsDesc = prometheus.NewDesc(
		"grantlens_published_nonprofits",
		"Nonprofit count in the last published run",
		nil, nil,
	)
	grantsDesc = prometheus.NewDesc(
		"grantlens_published_grants",
		"Grant count in the last published run",
		nil, nil,
	)
	unresolvedDesc = prometheus.NewDesc(
		"grantlens_unresolved_grants",
		"Grants excluded from aggregation in the last published run",
		nil, nil,
	)
	completedDesc = prometheus.NewDesc(
		"grantlens_last_run_completed_timestamp_seconds",
		"Completion time of the last published run as a Unix timestamp",
		nil, nil,
	)
)

// RunCollector reads the last published run manifest on each scrape.
type RunCollector struct {
	store  *store.Store
	logger *slog.Logger
}

// Describe sends the metric descriptors to the channel.
func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nonprofitsDesc
	ch <- grantsDesc
	ch <- unresolvedDesc
	ch <- completedDesc
}

// Collect queries the manifest and emits run gauges. A store with no
// published run emits nothing.
func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	manifest, err := c.store.LatestManifest(context.Background())
	if err != nil {
		if !errors.Is(err, store.ErrNoPublishedRun) {
			c.logger.Error("failed to collect run metrics", "error", err)
		}
		return
	}

	ch <- prometheus.MustNewConstMetric(nonprofitsDesc, prometheus.GaugeValue, float64(manifest.NonprofitCount))
	ch <- prometheus.MustNewConstMetric(grantsDesc, prometheus.GaugeValue, float64(manifest.GrantCount))
	ch <- prometheus.MustNewConstMetric(unresolvedDesc, prometheus.GaugeValue, float64(manifest.UnresolvedGrants))
	ch <- prometheus.MustNewConstMetric(completedDesc, prometheus.GaugeValue, float64(manifest.CompletedAt.Unix()))
}

var registerOnce sync.Once

// Init registers the run collector. Must be called once at server startup.
func Init(s *store.Store, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	registerOnce.Do(func() {
		prometheus.MustRegister(&RunCollector{store: s, logger: logger})
	})
}
