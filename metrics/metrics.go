package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registration intake and payment confirmation.
// A nil *Metrics records nothing.
type Metrics struct {
	RegistrationsCreated  prometheus.Counter
	RegistrationsRejected *prometheus.CounterVec
	RegisterDuration      prometheus.Histogram
	ConfirmationsApplied  prometheus.Counter
	ConfirmationsDropped  *prometheus.CounterVec
	ConfirmationRetries   prometheus.Counter
	PendingConfirmations  prometheus.Gauge
}

// New creates a Metrics instance with every collector registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "meeting_registrations_created_total",
			Help: "Total number of registrations accepted into the ledger",
		}),
		RegistrationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_registrations_rejected_total",
			Help: "Total number of registration submissions rejected, by reason",
		}, []string{"reason"}),
		RegisterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_register_duration_seconds",
			Help:    "Duration of Register operations including the durable write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ConfirmationsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "meeting_confirmations_applied_total",
			Help: "Total number of scheduled payment confirmations that ran successfully",
		}),
		ConfirmationsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_confirmations_dropped_total",
			Help: "Total number of scheduled payment confirmations that failed, by outcome",
		}, []string{"outcome"}),
		ConfirmationRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "meeting_confirmation_retries_total",
			Help: "Total number of failed payment confirmations requeued with backoff",
		}),
		PendingConfirmations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_confirmations_pending",
			Help: "Number of payment confirmations waiting for their delay to elapse",
		}),
	}
}

func (m *Metrics) IncrementRegistrationsCreated() {
	if m == nil {
		return
	}
	m.RegistrationsCreated.Inc()
}

func (m *Metrics) IncrementRegistrationsRejected(reason string) {
	if m == nil {
		return
	}
	m.RegistrationsRejected.WithLabelValues(reason).Inc()
}

// ObserveRegister records the duration of a Register call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	if m == nil {
		return
	}
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementConfirmationsApplied() {
	if m == nil {
		return
	}
	m.ConfirmationsApplied.Inc()
}

func (m *Metrics) IncrementConfirmationsDropped(outcome string) {
	if m == nil {
		return
	}
	m.ConfirmationsDropped.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementConfirmationRetries() {
	if m == nil {
		return
	}
	m.ConfirmationRetries.Inc()
}

func (m *Metrics) SetPendingConfirmations(n int) {
	if m == nil {
		return
	}
	m.PendingConfirmations.Set(float64(n))
}
