package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	c.RPCRequest("getBlock", 10*time.Millisecond, nil)
	c.RPCRequest("getBlock", 20*time.Millisecond, errors.New("timeout"))
	c.RPCRequest("getSlot", time.Millisecond, nil)
	c.SlotFetched(OutcomeStored, time.Millisecond)
	c.SlotFetched(OutcomeStored, time.Millisecond)
	c.SlotFetched(OutcomeRequeued, time.Millisecond)
	c.SlotsDiscovered(3)
	c.SlotsDiscovered(2)
	c.CycleCompleted(false)
	c.CycleCompleted(true)
	c.CycleCompleted(true)
	c.QueueDepth(7)
	c.Watermark(12345)
	c.StoreSize(9)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcRequests.WithLabelValues("getBlock", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcRequests.WithLabelValues("getBlock", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcRequests.WithLabelValues("getSlot", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.slotsFetched.WithLabelValues(OutcomeStored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.slotsFetched.WithLabelValues(OutcomeRequeued)))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.slotsDiscovered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("work")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cycles.WithLabelValues("idle")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 12345.0, testutil.ToFloat64(c.watermark))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.storeSize))

	assert.Equal(t, 2, testutil.CollectAndCount(c.rpcDuration))
}

func TestPrometheusCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	_, err = NewPrometheusCollector(reg)
	assert.Error(t, err)
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NoopCollector{}
	c.RPCRequest("getSlot", time.Second, errors.New("ignored"))
	c.SlotFetched(OutcomeSkipped, time.Second)
	c.SlotsDiscovered(1)
	c.CycleCompleted(true)
	c.QueueDepth(1)
	c.Watermark(1)
	c.StoreSize(1)
}
