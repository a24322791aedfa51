package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	m := New("shadowing")
	reg := prometheus.NewRegistry()

	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg), "duplicate registration is rejected")

	m.Reservations.WithLabelValues(OutcomeOK).Inc()
	m.Reservations.WithLabelValues(OutcomeUnavailable).Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reservations.WithLabelValues(OutcomeUnavailable)))

	count, err := testutil.GatherAndCount(reg, "shadowing_booking_reservations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New("shadowing"), New("shadowing")
	a.MirrorFailures.WithLabelValues("add").Inc()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.MirrorFailures.WithLabelValues("add")))
	require.NoError(t, b.Register(prometheus.NewRegistry()))
}
