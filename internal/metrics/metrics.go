package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	Marks      *prometheus.CounterVec
	Rejections *prometheus.CounterVec
	Edits      prometheus.Counter
	Events     *prometheus.CounterVec
	Sessions   *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "marks_total",
			Help:      "Attendance records written, by status and marker role.",
		}, []string{"status", "by"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "rejections_total",
			Help:      "Attendance attempts refused, by reason.",
		}, []string{"reason"}),
		Edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "edits_total",
			Help:      "Attendance records overridden by a teacher.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "events_consumed_total",
			Help:      "Audit events consumed from the queue, by type.",
		}, []string{"type"}),
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Name:      "sessions",
			Help:      "Class sessions by time-window state at the last sweep.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.Marks, m.Rejections, m.Edits, m.Events, m.Sessions)
	}
	return m
}
