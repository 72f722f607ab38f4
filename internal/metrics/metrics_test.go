package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/harvester/internal/metrics"
)

func TestMetrics_RecordCycle(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.RecordCycle("documents", time.Second, false)
	m.RecordCycle("documents", time.Second, true)
	m.RecordCycle("documents", time.Second, false)

	assert.InDelta(t, 2, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("documents", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("documents", "error")), 0)
}

func TestMetrics_SetLoopState(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.SetLoopState("events", "checking")
	m.SetLoopState("events", "disabled")

	assert.InDelta(t, 1, testutil.ToFloat64(m.LoopState.WithLabelValues("events", "disabled")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.LoopState.WithLabelValues("events", "checking")), 0)
}

func TestMetrics_RecordDelivery(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.RecordDelivery("telegram", true, 3)
	m.RecordDelivery("telegram", false, 1)

	assert.InDelta(t, 1, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("telegram", "delivered")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("telegram", "failed")), 0)
}

func TestMetrics_SetLastCycle(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	at := time.Unix(1_700_000_000, 0)

	m.SetLastCycle("documents", at, 4)

	assert.InDelta(t, 1_700_000_000, testutil.ToFloat64(m.LastSuccessTimestamp.WithLabelValues("documents")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.LastNewRecords.WithLabelValues("documents")), 0)
}
