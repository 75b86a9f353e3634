// Package metrics exposes coordinator activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "hoist"

var logger = loggo.GetLogger("hoist.metrics")

// Native update outcomes.
const (
	OutcomeInstalled = "installed"
	OutcomeDeclined  = "declined"
	OutcomeFailed    = "failed"
)

// Collector is a prometheus.Collector for the update coordinator.
type Collector struct {
	checks         *prometheus.CounterVec
	checkDuration  prometheus.Histogram
	checkInFlight  prometheus.Gauge
	events         *prometheus.CounterVec
	nativeUpdates  *prometheus.CounterVec
	dialogsShown   prometheus.Counter
	downloadedByte prometheus.Counter
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "web_checks_total",
				Help:      "Web bundle update checks by outcome.",
			}, []string{"outcome"},
		),
		checkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "web_check_duration_seconds",
				Help:      "Time taken by web bundle update checks.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		checkInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "web_check_in_progress",
				Help:      "1 while a web bundle update check is outstanding.",
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "lifecycle_events_total",
				Help:      "Web bundle lifecycle events handled, by kind.",
			}, []string{"kind"},
		),
		nativeUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "native_updates_total",
				Help:      "Native update attempts by outcome.",
			}, []string{"outcome"},
		),
		dialogsShown: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "confirmations_shown_total",
				Help:      "Confirmation prompts shown to the user.",
			},
		),
		downloadedByte: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "native_downloaded_bytes_total",
				Help:      "Bytes downloaded by native updates.",
			},
		),
	}
}

// CheckStarted marks a web bundle check as outstanding.
func (c *Collector) CheckStarted() {
	c.checkInFlight.Set(1)
}

// CheckFinished records the outcome of a web bundle check.
func (c *Collector) CheckFinished(outcome string, took time.Duration) {
	c.checkInFlight.Set(0)
	c.checks.WithLabelValues(outcome).Inc()
	c.checkDuration.Observe(took.Seconds())
}

// CheckSkipped records a check refused because another was outstanding.
func (c *Collector) CheckSkipped() {
	c.checks.WithLabelValues("skipped").Inc()
}

// Event records a handled lifecycle event.
func (c *Collector) Event(kind string) {
	c.events.WithLabelValues(kind).Inc()
}

// DialogShown records a confirmation prompt.
func (c *Collector) DialogShown() {
	c.dialogsShown.Inc()
}

// NativeUpdate records the outcome of a native update attempt.
func (c *Collector) NativeUpdate(outcome string, downloaded int64) {
	c.nativeUpdates.WithLabelValues(outcome).Inc()
	if downloaded > 0 {
		c.downloadedByte.Add(float64(downloaded))
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.checks.Describe(ch)
	c.checkDuration.Describe(ch)
	c.checkInFlight.Describe(ch)
	c.events.Describe(ch)
	c.nativeUpdates.Describe(ch)
	c.dialogsShown.Describe(ch)
	c.downloadedByte.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.checks.Collect(ch)
	c.checkDuration.Collect(ch)
	c.checkInFlight.Collect(ch)
	c.events.Collect(ch)
	c.nativeUpdates.Collect(ch)
	c.dialogsShown.Collect(ch)
	c.downloadedByte.Collect(ch)
}

// Serve exposes reg on addr at /metrics, and status at /status when it is
// not nil, until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, status http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if status != nil {
		mux.Handle("/status", status)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Infof("serving metrics on %s/metrics", addr)

	select {
	case err := <-errc:
		return errors.Annotatef(err, "serving metrics on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Trace(srv.Shutdown(shutdownCtx))
	}
}
