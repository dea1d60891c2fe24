package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg, "test")
	require.NoError(t, err)

	m.EventDropped()
	m.EventDropped()
	m.ReconnectAttempt(metrics.ResultError)
	m.Command("send", metrics.ResultSuccess)
	m.WebhookRequest(metrics.ResultRejected)
	m.GatewaySend(metrics.ResultSuccess)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "test_events_dropped_total" {
			assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestMetrics_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg, "dup")
	require.NoError(t, err)
	_, err = metrics.New(reg, "dup")
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.EventDropped()
	m.ReconnectAttempt(metrics.ResultSuccess)
	m.Command("ping", metrics.ResultSuccess)
	m.WebhookRequest(metrics.ResultSuccess)
	m.GatewaySend(metrics.ResultError)
}
