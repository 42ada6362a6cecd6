package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters_Increment(t *testing.T) {
	t.Run("token_renewals_by_outcome", func(t *testing.T) {
		before := testutil.ToFloat64(TokenRenewalsTotal.WithLabelValues("success"))
		TokenRenewalsTotal.WithLabelValues("success").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(TokenRenewalsTotal.WithLabelValues("success")))
	})

	t.Run("events_received_by_name", func(t *testing.T) {
		before := testutil.ToFloat64(ChannelEventsReceived.WithLabelValues("analytics_update"))
		ChannelEventsReceived.WithLabelValues("analytics_update").Add(2)
		assert.Equal(t, before+2, testutil.ToFloat64(ChannelEventsReceived.WithLabelValues("analytics_update")))
	})

	t.Run("view_refreshes_by_mode", func(t *testing.T) {
		labels := []string{"users", "silent", "success"}
		before := testutil.ToFloat64(ViewRefreshesTotal.WithLabelValues(labels...))
		ViewRefreshesTotal.WithLabelValues(labels...).Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(ViewRefreshesTotal.WithLabelValues(labels...)))
	})
}

func TestGauges_Set(t *testing.T) {
	ChannelState.Set(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(ChannelState))

	ChannelHandlersRegistered.WithLabelValues("new_notification").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ChannelHandlersRegistered.WithLabelValues("new_notification")))
}

func TestMetricsCollectors(t *testing.T) {
	collectors := []prometheus.Collector{
		HTTPRequestDuration,
		HTTPRequestsTotal,
		BackendRequestDuration,
		TokenRenewalsTotal,
		TokenVerificationsTotal,
		ChannelState,
		ChannelReconnectAttemptsTotal,
		ChannelEventsReceived,
		ChannelHandlersRegistered,
		ViewRefreshesTotal,
		ViewResponsesDiscarded,
	}

	for _, c := range collectors {
		assert.NotNil(t, c)
	}
}
