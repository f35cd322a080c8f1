package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, m prometheus.Metric) *dto.Metric {
	t.Helper()
	out := &dto.Metric{}
	require.NoError(t, m.Write(out))
	return out
}

func TestOrderMetrics(t *testing.T) {
	// no-op until Create
	IncOrderAdmitted("accepted")
	assert.Empty(t, MetricCollectionCounterVec)

	require.NoError(t, Create("test-host", "test", "group_factory_test"))
	t.Cleanup(func() { MetricSystemEnabled = false })

	IncOrderAdmitted("accepted")
	IncOrderAdmitted("accepted")
	IncOrderAdmitted("limit_exceeded")
	admitted := MetricCollectionCounterVec[SystemOrders+MetricOrderAdmitted]
	assert.Equal(t, 2.0, read(t, admitted.WithLabelValues("accepted")).GetCounter().GetValue())
	assert.Equal(t, 1.0, read(t, admitted.WithLabelValues("limit_exceeded")).GetCounter().GetValue())

	IncOrderRunsSkipped()
	skipped := MetricCollectionCounters[SystemOrders+MetricOrderRunsSkipped]
	assert.Equal(t, 1.0, read(t, skipped).GetCounter().GetValue())

	GatewayConnOpened("fulfillment")
	GatewayConnOpened("fulfillment")
	GatewayConnClosed("fulfillment")
	open := MetricCollectionGaugeVec[SystemGateway+MetricGatewayOpenConnections]
	assert.Equal(t, 1.0, read(t, open.WithLabelValues("fulfillment")).GetGauge().GetValue())

	AddOrderFulfillmentDuration(1.5, "completed")
	duration := MetricCollectionHistogramVec[SystemOrders+MetricOrderFulfillmentDuration]
	observer := duration.WithLabelValues("completed").(prometheus.Metric)
	assert.EqualValues(t, 1, read(t, observer).GetHistogram().GetSampleCount())

	AddOrderAdmissionDuration(0.01)
	admission := MetricCollectionHistogram[SystemOrders+MetricOrderAdmissionDuration]
	assert.EqualValues(t, 1, read(t, admission).GetHistogram().GetSampleCount())
}

func TestCreateMetric_UnknownType(t *testing.T) {
	err := CreateMetric("summary", SystemOrders, "unused")
	assert.EqualError(t, err, "metric type summary is not defined")
}
