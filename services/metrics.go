package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PollMetrics instruments the snapshot poller
type PollMetrics struct {
	attempts    prometheus.Counter
	successes   prometheus.Counter
	failures    *prometheus.CounterVec
	skipped     prometheus.Counter
	discarded   prometheus.Counter
	latency     prometheus.Histogram
	lastSuccess prometheus.Gauge
	events      prometheus.Gauge
}

// NewPollMetrics creates the collectors and registers them on reg. A nil
// registerer leaves them unregistered.
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	m := &PollMetrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siem_console_fetch_attempts_total",
			Help: "Dashboard fetches started.",
		}),
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siem_console_fetch_success_total",
			Help: "Dashboard fetches that replaced the snapshot.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siem_console_fetch_failures_total",
			Help: "Dashboard fetches that failed, by error kind.",
		}, []string{"kind"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siem_console_fetch_skipped_total",
			Help: "Fetches not started because another was in flight.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siem_console_fetch_discarded_total",
			Help: "Fetch results dropped because the poller was stopped.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "siem_console_fetch_latency_seconds",
			Help:    "Dashboard fetch latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 11),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siem_console_last_snapshot_unixtime",
			Help: "Unix time of the last stored snapshot.",
		}),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siem_console_snapshot_events",
			Help: "Events in the current snapshot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.successes, m.failures, m.skipped, m.discarded, m.latency, m.lastSuccess, m.events)
	}
	return m
}
