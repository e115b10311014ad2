package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusDelivered = "delivered"
	statusFailed    = "failed"
)

// Metrics holds Prometheus metrics for reminder scheduling and delivery.
// A nil *Metrics records nothing.
type Metrics struct {
	SweepsTotal        prometheus.Counter
	RemindersSentTotal *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	RemindersScheduled prometheus.Counter
	RemindersPruned    prometheus.Counter
}

// NewMetrics creates the reminder metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SweepsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "homestead",
			Name:      "reminder_sweeps_total",
			Help:      "Total number of reminder sweeps run",
		}),
		RemindersSentTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homestead",
			Name:      "reminders_sent_total",
			Help:      "Total number of reminders processed by the sweep",
		}, []string{"status"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "homestead",
			Name:      "reminder_sweep_duration_seconds",
			Help:      "Time taken by one reminder sweep",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10},
		}),
		RemindersScheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "homestead",
			Name:      "reminders_scheduled_total",
			Help:      "Total number of reminders written by the scheduler",
		}),
		RemindersPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "homestead",
			Name:      "reminders_pruned_total",
			Help:      "Total number of sent reminders removed by retention",
		}),
	}
}

func (m *Metrics) observeSweep(delivered, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
	m.RemindersSentTotal.WithLabelValues(statusDelivered).Add(float64(delivered))
	m.RemindersSentTotal.WithLabelValues(statusFailed).Add(float64(failed))
	m.SweepDuration.Observe(seconds)
}

func (m *Metrics) addScheduled(n int) {
	if m == nil {
		return
	}
	m.RemindersScheduled.Add(float64(n))
}

func (m *Metrics) addPruned(n int64) {
	if m == nil {
		return
	}
	m.RemindersPruned.Add(float64(n))
}
