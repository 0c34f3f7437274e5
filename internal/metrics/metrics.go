// Package metrics exposes pass counters for the scheduler's prometheus endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billscanner"

// Recorder groups the collectors updated by the passes. A nil *Recorder is a no-op.
type Recorder struct {
	extracted    *prometheus.CounterVec
	enriched     prometheus.Counter
	flushed      prometheus.Counter
	retries      *prometheus.CounterVec
	pending      *prometheus.GaugeVec
	passDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		extracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_items_total",
			Help:      "Bills that went through text extraction, by outcome.",
		}, []string{"outcome"}),
		enriched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enriched_documents_total",
			Help:      "Documents written back with generated fields.",
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Enrichment batches flushed to the document store.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_retries_total",
			Help:      "Passes restarted after a transient store fault.",
		}, []string{"pass"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_items",
			Help:      "Items scheduled by the latest pass.",
		}, []string{"pass"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of each pass, by result.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"pass", "result"}),
	}

	if reg != nil {
		reg.MustRegister(r.extracted, r.enriched, r.flushed, r.retries, r.pending, r.passDuration)
	}
	return r
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (r *Recorder) ItemExtracted(ok bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	r.extracted.WithLabelValues(outcome).Inc()
}

func (r *Recorder) DocumentEnriched() {
	if r == nil {
		return
	}
	r.enriched.Inc()
}

func (r *Recorder) BatchFlushed() {
	if r == nil {
		return
	}
	r.flushed.Inc()
}

func (r *Recorder) TransientRetry(pass string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(pass).Inc()
}

func (r *Recorder) Pending(pass string, n int) {
	if r == nil {
		return
	}
	r.pending.WithLabelValues(pass).Set(float64(n))
}

// ObservePass records how long a pass took and whether it failed.
func (r *Recorder) ObservePass(pass string, started time.Time, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.passDuration.WithLabelValues(pass, result).Observe(time.Since(started).Seconds())
}
