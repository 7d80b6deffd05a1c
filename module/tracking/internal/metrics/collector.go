package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Processed      *prometheus.CounterVec // result: ok|fallback
	Stages         *prometheus.CounterVec // stage, status
	Published      *prometheus.CounterVec // result: ok|error
	RoutesFetched  *prometheus.CounterVec // result: ok|no_route|error|skipped
	Invalid        prometheus.Counter
	ProcessLatency prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_locations_processed_total",
			Help: "Location updates processed, by result.",
		}, []string{"result"}),
		Stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_pipeline_stage_total",
			Help: "Pipeline stage outcomes.",
		}, []string{"stage", "status"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_broadcast_published_total",
			Help: "Processed locations broadcast to trackers.",
		}, []string{"result"}),
		RoutesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_route_requests_total",
			Help: "Reference route materialization attempts.",
		}, []string{"result"}),
		Invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracking_invalid_messages_total",
			Help: "Inbound GPS messages dropped by validation.",
		}),
		ProcessLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracking_process_duration_seconds",
			Help:    "Duration of a full location update pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.Processed, c.Stages, c.Published, c.RoutesFetched,
		c.Invalid, c.ProcessLatency,
	)
	return c
}

// TrackCacheSize exposes a cache size as a gauge sampled at scrape time.
func (c *Collector) TrackCacheSize(cache string, size func() int) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "tracking_cache_entries",
		Help:        "Entries currently held in an in-memory cache.",
		ConstLabels: prometheus.Labels{"cache": cache},
	}, func() float64 { return float64(size()) }))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveProcess(d time.Duration, fallback bool) {
	c.ProcessLatency.Observe(d.Seconds())
	if fallback {
		c.Processed.WithLabelValues("fallback").Inc()
		return
	}
	c.Processed.WithLabelValues("ok").Inc()
}

func (c *Collector) StageResult(stage, status string) {
	c.Stages.WithLabelValues(stage, status).Inc()
}

func (c *Collector) RouteFetched(result string) {
	c.RoutesFetched.WithLabelValues(result).Inc()
}

func (c *Collector) PublishResult(err error) {
	if err != nil {
		c.Published.WithLabelValues("error").Inc()
		return
	}
	c.Published.WithLabelValues("ok").Inc()
}

func (c *Collector) InvalidMessage() {
	c.Invalid.Inc()
}
