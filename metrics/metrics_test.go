package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("counters and gauge record", func(t *testing.T) {
		m := New(prometheus.NewRegistry())

		m.IncrementRegistrationsCreated()
		m.IncrementRegistrationsCreated()
		m.IncrementRegistrationsRejected("INVALID_REGISTRATION")
		m.IncrementConfirmationsApplied()
		m.IncrementConfirmationsDropped("not_found")
		m.IncrementConfirmationRetries()
		m.SetPendingConfirmations(3)
		m.ObserveRegister(time.Now())

		assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistrationsCreated))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsRejected.WithLabelValues("INVALID_REGISTRATION")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmationsApplied))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmationsDropped.WithLabelValues("not_found")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmationRetries))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.PendingConfirmations))
	})

	t.Run("nil metrics is a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.IncrementRegistrationsCreated()
			m.IncrementRegistrationsRejected("x")
			m.ObserveRegister(time.Now())
			m.IncrementConfirmationsApplied()
			m.IncrementConfirmationsDropped("x")
			m.IncrementConfirmationRetries()
			m.SetPendingConfirmations(1)
		})
	})
}
