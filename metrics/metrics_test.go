package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRollsTotal_Increment(t *testing.T) {
	before := testutil.ToFloat64(RollsTotal.WithLabelValues("test-web", OutcomeSuccess))
	RollsTotal.WithLabelValues("test-web", OutcomeSuccess).Inc()
	after := testutil.ToFloat64(RollsTotal.WithLabelValues("test-web", OutcomeSuccess))

	assert.Equal(t, before+1, after)
}

func TestRollRetriesTotal_Increment(t *testing.T) {
	before := testutil.ToFloat64(RollRetriesTotal.WithLabelValues("test-local"))
	RollRetriesTotal.WithLabelValues("test-local").Inc()
	after := testutil.ToFloat64(RollRetriesTotal.WithLabelValues("test-local"))

	assert.Equal(t, before+1, after)
}

func TestMultiworldQueueDepth_SetValue(t *testing.T) {
	MultiworldQueueDepth.Set(3)
	value := testutil.ToFloat64(MultiworldQueueDepth)

	assert.Equal(t, float64(3), value)
}

func TestOpenRooms_SetValue(t *testing.T) {
	OpenRooms.Set(5)
	value := testutil.ToFloat64(OpenRooms)

	assert.Equal(t, float64(5), value)
}

func TestRollDuration_Observe(t *testing.T) {
	RollDuration.WithLabelValues("test-mw").Observe(120)
	count := testutil.CollectAndCount(RollDuration)

	assert.Greater(t, count, 0)
}

func TestMetrics_LabelsAppliedCorrectly(t *testing.T) {
	source := "test-labels"

	RollsTotal.WithLabelValues(source, OutcomeSuccess).Inc()

	metricValue := testutil.ToFloat64(RollsTotal.WithLabelValues(source, OutcomeSuccess))
	assert.Greater(t, metricValue, float64(0))

	// A source that never rolled stays behind one that did.
	differentSource := "test-labels-other"
	differentValue := testutil.ToFloat64(RollsTotal.WithLabelValues(differentSource, OutcomeSuccess))
	assert.LessOrEqual(t, differentValue, metricValue)
}

func TestMetrics_AreRegisteredToDefaultRegistry(t *testing.T) {
	// Verify that metrics are registered to the default registry
	// by checking if they can be collected
	metrics := []prometheus.Collector{
		RollsTotal,
		RollRetriesTotal,
		MultiworldQueueDepth,
		OpenRooms,
		PrerolledSeedsCached,
		RollDuration,
	}

	for _, metric := range metrics {
		count := testutil.CollectAndCount(metric)
		// Each metric should be collectible (count >= 0)
		assert.GreaterOrEqual(t, count, 0)
	}
}
