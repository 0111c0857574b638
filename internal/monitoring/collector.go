package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "insights_sync"

type Collector struct {
	remoteRequests  *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	leadsDiscovered *prometheus.CounterVec
	strategyErrors  *prometheus.CounterVec
	prospectWrites  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		remoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "requests_total",
			Help:      "Remote ad platform requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		remoteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "request_duration_seconds",
			Help:      "Duration of remote ad platform requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Insights cache lookups by tier and result",
		}, []string{"tier", "result"}),
		leadsDiscovered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "discovered_total",
			Help:      "Raw leads returned by each discovery strategy",
		}, []string{"strategy"}),
		strategyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "strategy_errors_total",
			Help:      "Discovery strategies that stopped early",
		}, []string{"strategy"}),
		prospectWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prospects",
			Name:      "writes_total",
			Help:      "Prospect persistence outcomes",
		}, []string{"outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (c *Collector) RemoteRequest(endpoint string, err error, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.remoteRequests.WithLabelValues(endpoint, outcome).Inc()
	c.remoteDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (c *Collector) CacheLookup(tier string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(tier, result).Inc()
}

func (c *Collector) LeadsDiscovered(strategy string, n int, failed bool) {
	if c == nil {
		return
	}
	c.leadsDiscovered.WithLabelValues(strategy).Add(float64(n))
	if failed {
		c.strategyErrors.WithLabelValues(strategy).Inc()
	}
}

func (c *Collector) ProspectWrites(saved, skipped, failed int) {
	if c == nil {
		return
	}
	c.prospectWrites.WithLabelValues("saved").Add(float64(saved))
	c.prospectWrites.WithLabelValues("skipped").Add(float64(skipped))
	c.prospectWrites.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
