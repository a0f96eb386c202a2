// Package metrics exposes Prometheus instrumentation for feed polling,
// classification and publishing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"subwaywatch/internal/transit"
)

// Collector owns a private registry so tests can create many of them.
type Collector struct {
	reg *prometheus.Registry

	FeedFetches   *prometheus.CounterVec // feed, result=ok|error
	FetchDuration *prometheus.HistogramVec
	RouteTrips    *prometheus.GaugeVec
	TripStatuses  *prometheus.GaugeVec // route, status
	LastUpdate    prometheus.Gauge
	Refreshes     *prometheus.CounterVec // route, result=fetched|cooldown|error

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	PollInterval prometheus.Gauge // seconds
}

// NewCollector creates and registers all metrics.
func NewCollector(pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subwaywatch_feed_fetches_total",
			Help: "GTFS-RT feed fetches by feed and result.",
		}, []string{"feed", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subwaywatch_feed_fetch_duration_seconds",
			Help:    "Duration of a feed fetch including retries.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"feed"}),
		RouteTrips: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subwaywatch_route_trips",
			Help: "Trips in the current schedule per route.",
		}, []string{"route"}),
		TripStatuses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subwaywatch_trip_statuses",
			Help: "Classified trips per route and status.",
		}, []string{"route", "status"}),
		LastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subwaywatch_last_update_timestamp_seconds",
			Help: "Unix time of the last schedule update.",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subwaywatch_route_refreshes_total",
			Help: "On-demand route refreshes by result.",
		}, []string{"route", "result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwaywatch_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwaywatch_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subwaywatch_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subwaywatch_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subwaywatch_poll_interval_seconds",
			Help: "Feed poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.FeedFetches, c.FetchDuration, c.RouteTrips, c.TripStatuses,
		c.LastUpdate, c.Refreshes,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.PollInterval,
	)
	c.PollInterval.Set(pollInterval.Seconds())

	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// ObserveFetch records one feed fetch.
func (c *Collector) ObserveFetch(feed string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.FeedFetches.WithLabelValues(feed, result).Inc()
	c.FetchDuration.WithLabelValues(feed).Observe(d.Seconds())
}

// SetRouteTrips records the trip count of a route.
func (c *Collector) SetRouteTrips(route string, n int) {
	c.RouteTrips.WithLabelValues(route).Set(float64(n))
}

// SetLastUpdate records when the schedule last changed.
func (c *Collector) SetLastUpdate(t time.Time) {
	c.LastUpdate.Set(float64(t.Unix()))
}

// ObserveStatuses records the classification breakdown of a route.
// Kinds absent from counts are reset to zero.
func (c *Collector) ObserveStatuses(route string, counts map[transit.Kind]int) {
	for _, k := range []transit.Kind{transit.OutOfService, transit.Idling, transit.EnRoute, transit.AtStation} {
		c.TripStatuses.WithLabelValues(route, k.String()).Set(float64(counts[k]))
	}
}

// RefreshResult records the outcome of an on-demand refresh.
func (c *Collector) RefreshResult(route, result string) {
	c.Refreshes.WithLabelValues(route, result).Inc()
}

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
