package chain

import (
	"context"
	"time"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/metrics"
)

// Instrumented wraps a Source and reports every call to a metrics collector.
// Skipped slots are not counted as request errors.
type Instrumented struct {
	inner   Source
	metrics metrics.Collector
}

var _ Source = (*Instrumented)(nil)

// NewInstrumented returns a Source that records call latency and errors.
func NewInstrumented(inner Source, collector metrics.Collector) *Instrumented {
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &Instrumented{inner: inner, metrics: collector}
}

// CurrentSlot implements SlotSource.
func (s *Instrumented) CurrentSlot(ctx context.Context, commitment types.Commitment) (types.Slot, error) {
	start := time.Now()
	slot, err := s.inner.CurrentSlot(ctx, commitment)
	s.metrics.RPCRequest(OpCurrentSlot, time.Since(start), err)
	return slot, err
}

// SlotsSince implements Source.
func (s *Instrumented) SlotsSince(ctx context.Context, from types.Slot, commitment types.Commitment) ([]types.Slot, error) {
	start := time.Now()
	slots, err := s.inner.SlotsSince(ctx, from, commitment)
	s.metrics.RPCRequest(OpSlotsSince, time.Since(start), err)
	return slots, err
}

// FetchBlock implements Source.
func (s *Instrumented) FetchBlock(ctx context.Context, slot types.Slot, commitment types.Commitment) (types.BlockRecord, error) {
	start := time.Now()
	record, err := s.inner.FetchBlock(ctx, slot, commitment)
	reported := err
	if IsSkipped(err) {
		reported = nil
	}
	s.metrics.RPCRequest(OpFetchBlock, time.Since(start), reported)
	return record, err
}
