package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes whitelist pipeline and HTTP metrics.
type PrometheusCollector struct {
	publishTotal    *prometheus.CounterVec
	publishDuration prometheus.Histogram
	batchSize       prometheus.Histogram
	syncTotal       prometheus.Counter
	purgedURLsTotal prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		publishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_publish_total",
			Help: "Publish attempts by outcome (updated, unchanged, error)",
		}, []string{"outcome"}),

		publishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_publish_duration_seconds",
			Help:    "Duration of publish pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		batchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_publish_batch_size",
			Help:    "Number of users coalesced into one publish",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),

		syncTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_role_sync_total",
			Help: "Total role sync reconciliations",
		}),

		purgedURLsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_cdn_purged_urls_total",
			Help: "Total URLs purged from the CDN cache",
		}),

		httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) ObservePublish(outcome string, duration time.Duration) {
	p.publishTotal.WithLabelValues(outcome).Inc()
	p.publishDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) ObserveBatchSize(users int) {
	p.batchSize.Observe(float64(users))
}

func (p *PrometheusCollector) ObservePurge(urls int) {
	p.purgedURLsTotal.Add(float64(urls))
}

func (p *PrometheusCollector) RecordSync() {
	p.syncTotal.Inc()
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
