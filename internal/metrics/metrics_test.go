package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuth_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuth(reg)

	m.Logins.WithLabelValues("ok").Inc()
	m.Logins.WithLabelValues("invalid_credentials").Add(2)
	m.ReuseDetected.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Logins.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReuseDetected))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewAuth_NilRegistererIsAllowed(t *testing.T) {
	m := NewAuth(nil)
	m.Refreshes.WithLabelValues("ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("ok")))
}

func TestNewHTTP_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewHTTP(reg)
	assert.Panics(t, func() { NewHTTP(reg) })
}
