package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	reg *prometheus.Registry

	Refreshes       prometheus.Counter
	RefreshDuration prometheus.Histogram
	FetchErrors     *prometheus.CounterVec // source label: feed|hours

	Facilities     prometheus.Gauge
	Events         *prometheus.GaugeVec // facility label
	WaitDays       *prometheus.GaugeVec // facility label
	FacilityOpen   *prometheus.GaugeVec // facility label, 1 if open at last refresh
	LastRefreshUTC prometheus.Gauge

	APIRequests *prometheus.CounterVec // route, code labels
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dininghours_refreshes_total",
			Help: "Total snapshot refreshes.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dininghours_refresh_duration_seconds",
			Help:    "Duration of a full snapshot refresh.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dininghours_fetch_errors_total",
			Help: "Upstream fetch or decode failures.",
		}, []string{"source"}),
		Facilities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dininghours_facilities",
			Help: "Number of facilities in the current snapshot.",
		}),
		Events: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dininghours_facility_events",
			Help: "Service intervals known per facility.",
		}, []string{"facility"}),
		WaitDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dininghours_facility_wait_days",
			Help: "Days with wait-time observations per facility.",
		}, []string{"facility"}),
		FacilityOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dininghours_facility_open",
			Help: "1 if the facility was open at the last refresh, 0 otherwise.",
		}, []string{"facility"}),
		LastRefreshUTC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dininghours_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dininghours_api_requests_total",
			Help: "API requests by route and status code.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		c.Refreshes, c.RefreshDuration, c.FetchErrors,
		c.Facilities, c.Events, c.WaitDays, c.FacilityOpen, c.LastRefreshUTC,
		c.APIRequests,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
