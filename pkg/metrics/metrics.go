// Package metrics holds the prometheus collectors shared by the session, upload and cache
// components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeResolved = "resolved"
	OutcomeErrored  = "errored"
	OutcomeLimited  = "limited"
	OutcomeRollback = "rollback"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
	ResultOK    = "ok"
	ResultNoop  = "noop"
)

// Metrics groups the client-side collectors
type Metrics struct {
	Sends          *prometheus.CounterVec
	UploadDuration *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec
	PageFetches    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "session",
			Name:      "sends_total",
			Help:      "Message sends by final outcome.",
		}, []string{"outcome"}),
		UploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "upload",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock time of attachment upload batches.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		}, []string{"result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "attachment_cache",
			Name:      "lookups_total",
			Help:      "Attachment cache lookups by result.",
		}, []string{"result"}),
		PageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "history",
			Name:      "page_fetches_total",
			Help:      "History page fetches by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Sends, m.UploadDuration, m.CacheLookups, m.PageFetches)
	}

	return m
}

// Nop returns unregistered collectors, for components built without metrics
func Nop() *Metrics {
	return New(nil)
}
