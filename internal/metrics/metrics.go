// Package metrics exposes attendance counters for prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded for submissions.
const (
	OutcomeRecorded = "recorded"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "not_enrolled"
	OutcomeError    = "error"
)

// Metrics groups the collectors the handlers update.
type Metrics struct {
	Submissions     *prometheus.CounterVec
	Resets          prometheus.Counter
	PersistFailures prometheus.Counter
	Present         prometheus.GaugeFunc
	Enrolled        prometheus.GaugeFunc
}

// Counts reports the present and enrolled totals at scrape time.
type Counts func() (present, enrolled int)

// New creates the collectors and registers them with reg. The gauges are
// read from counts on every scrape.
func New(reg prometheus.Registerer, counts Counts) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "submissions_total",
			Help:      "Attendance submissions by outcome.",
		}, []string{"outcome"}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "session_resets_total",
			Help:      "Sessions started by a faculty reset.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "persist_failures_total",
			Help:      "Mutations aborted because the backend write failed.",
		}),
		Present: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Name:      "present_students",
			Help:      "Students marked present in the current session.",
		}, func() float64 {
			present, _ := counts()
			return float64(present)
		}),
		Enrolled: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Name:      "enrolled_students",
			Help:      "Students on the roster.",
		}, func() float64 {
			_, enrolled := counts()
			return float64(enrolled)
		}),
	}
	reg.MustRegister(m.Submissions, m.Resets, m.PersistFailures, m.Present, m.Enrolled)
	return m
}
