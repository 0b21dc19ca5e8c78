package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reurl"

// PrometheusRecorder implements Recorder with client_golang collectors
// registered on a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	redirects        *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	redirectDuration prometheus.Histogram
	linksCreated     prometheus.Counter
	linksDeleted     prometheus.Counter
	aliasCollisions  prometheus.Counter
	visits           *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
}

// NewPrometheus registers the application collectors, plus the Go runtime
// and process collectors, on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		redirects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Alias resolutions by outcome.",
		}, []string{"outcome"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirect_cache_hits_total",
			Help:      "Alias lookups answered by the cache.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirect_cache_misses_total",
			Help:      "Alias lookups that fell through to the database.",
		}),
		redirectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "redirect_duration_seconds",
			Help:      "Time spent resolving an alias, including the analytics insert.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		linksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_created_total",
			Help:      "Links created.",
		}),
		linksDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_deleted_total",
			Help:      "Links deleted by their owner.",
		}),
		aliasCollisions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alias_collisions_total",
			Help:      "Generated aliases rejected by the unique constraint.",
		}),
		visits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_recorded_total",
			Help:      "Analytics inserts by status.",
		}, []string{"status"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter, by scope.",
		}, []string{"scope"}),
	}
}

// Registry returns the registry to expose on /metrics.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncRedirect(outcome string) {
	p.redirects.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRedirectCacheHit() {
	p.cacheHits.Inc()
}

func (p *PrometheusRecorder) IncRedirectCacheMiss() {
	p.cacheMisses.Inc()
}

func (p *PrometheusRecorder) ObserveRedirectDuration(duration time.Duration) {
	p.redirectDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncLinkCreated() {
	p.linksCreated.Inc()
}

func (p *PrometheusRecorder) IncLinkDeleted() {
	p.linksDeleted.Inc()
}

func (p *PrometheusRecorder) IncAliasCollision() {
	p.aliasCollisions.Inc()
}

func (p *PrometheusRecorder) IncVisitRecorded(ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	p.visits.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncRateLimited(scope string) {
	p.rateLimited.WithLabelValues(scope).Inc()
}
