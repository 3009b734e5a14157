// Package metrics exports run activity as prometheus series.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"volley/internal/runner"
)

// Collector is a runner.Publisher that counts what it observes.
type Collector struct {
	requestsSent  prometheus.Counter
	responses     *prometheus.CounterVec
	responseTimes prometheus.Histogram
	activeRuns    prometheus.Gauge
	runs          *prometheus.CounterVec
}

// NewCollector registers the volley series on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		requestsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "volley_requests_sent_total",
			Help: "Requests issued by load test workers.",
		}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "volley_responses_total",
			Help: "Completed requests by outcome (success, failure, error) and status code.",
		}, []string{"outcome", "code"}),
		responseTimes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "volley_response_time_seconds",
			Help:    "Response times observed by workers.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "volley_active_runs",
			Help: "Load tests currently running.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "volley_runs_total",
			Help: "Finished load tests by final state.",
		}, []string{"state"}),
	}
}

func (c *Collector) Publish(ev runner.Event) {
	switch ev.Type {
	case runner.EventStarted:
		c.activeRuns.Inc()
	case runner.EventStopped:
		c.activeRuns.Dec()
		c.runs.WithLabelValues("stopped").Inc()
	case runner.EventCompleted:
		c.activeRuns.Dec()
		c.runs.WithLabelValues("completed").Inc()
	case runner.EventUpdate:
		if ev.Update != nil {
			c.observe(ev.Update)
		}
	}
}

func (c *Collector) observe(u *runner.Update) {
	if u.Action == runner.ActionRequestSent {
		c.requestsSent.Inc()
		return
	}

	outcome, code := "error", "none"
	if o := runner.Classify(u.StatusCode, false); o.StatusCode != 0 {
		code = strconv.Itoa(o.StatusCode)
		outcome = "failure"
		if o.Success {
			outcome = "success"
		}
	}
	c.responses.WithLabelValues(outcome, code).Inc()
	c.responseTimes.Observe(float64(u.ResponseTimeMs) / 1000)
}
