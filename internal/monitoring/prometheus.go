package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics exports request, aggregation and loader metrics. Each
// instance owns its registry so several can coexist in one process.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requests           *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	aggregations       *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec
	aggregatedRecords  *prometheus.CounterVec
	loaderStage        prometheus.Gauge
	datasetRows        *prometheus.GaugeVec
	rateLimited        prometheus.Counter
}

// NewPrometheusMetrics creates the collectors, including the Go runtime and
// process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpr_http_requests_total",
				Help: "HTTP requests by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		requestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vpr_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		aggregations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpr_aggregations_total",
				Help: "Aggregations by kind and whether they were served from the memo.",
			},
			[]string{"kind", "cached"},
		),
		aggregationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vpr_aggregation_duration_seconds",
				Help:    "Time spent producing an aggregation, including the store query.",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"kind"},
		),
		aggregatedRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpr_aggregated_records_total",
				Help: "Records folded into aggregations.",
			},
			[]string{"kind"},
		),
		loaderStage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vpr_loader_stage",
			Help: "Current dataset loading stage; equals the stage count once loading is done.",
		}),
		datasetRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vpr_dataset_rows",
				Help: "Rows in the current dataset per collection.",
			},
			[]string{"collection"},
		),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "vpr_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
}

// ObserveRequest records one served HTTP request
func (pm *PrometheusMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	pm.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	pm.requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAggregation records one aggregation
func (pm *PrometheusMetrics) ObserveAggregation(kind string, records int, cached bool, duration time.Duration) {
	pm.aggregations.WithLabelValues(kind, strconv.FormatBool(cached)).Inc()
	pm.aggregationLatency.WithLabelValues(kind).Observe(duration.Seconds())
	pm.aggregatedRecords.WithLabelValues(kind).Add(float64(records))
}

// SetLoaderStage publishes the loader position
func (pm *PrometheusMetrics) SetLoaderStage(stage int) {
	pm.loaderStage.Set(float64(stage))
}

// SetDatasetRows publishes the row count of one collection
func (pm *PrometheusMetrics) SetDatasetRows(collection string, rows int) {
	pm.datasetRows.WithLabelValues(collection).Set(float64(rows))
}

// IncRateLimited counts a rejected request
func (pm *PrometheusMetrics) IncRateLimited() {
	pm.rateLimited.Inc()
}

// Registry exposes the underlying registry for tests
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus text format
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}
