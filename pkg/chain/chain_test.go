package chain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/chain"
	"github.com/fortiblox/slot-listener/pkg/chain/chaintest"
	"github.com/fortiblox/slot-listener/pkg/metrics"
)

func TestFilterSlotsAfter(t *testing.T) {
	tests := []struct {
		name  string
		slots []types.Slot
		from  types.Slot
		want  []types.Slot
	}{
		{"drops from", []types.Slot{100, 101, 102}, 100, []types.Slot{101, 102}},
		{"nothing new", []types.Slot{100}, 100, []types.Slot{}},
		{"empty", nil, 5, []types.Slot{}},
		{"unsorted with duplicates", []types.Slot{105, 103, 103, 99, 104}, 100, []types.Slot{103, 104, 105}},
		{"gaps kept", []types.Slot{101, 110, 111}, 100, []types.Slot{101, 110, 111}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append([]types.Slot(nil), tt.slots...)
			assert.Equal(t, tt.want, chain.FilterSlotsAfter(tt.slots, tt.from))
			assert.Equal(t, input, tt.slots, "input is not modified")
		})
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection reset by peer")

	err := chain.NewSlotTransportError(chain.OpFetchBlock, 42, cause)
	assert.Equal(t, "getBlock slot 42: connection reset by peer", err.Error())
	assert.ErrorIs(t, err, cause)

	err = chain.NewTransportError(chain.OpCurrentSlot, cause)
	assert.Equal(t, "getSlot: connection reset by peer", err.Error())

	assert.NoError(t, chain.NewTransportError(chain.OpCurrentSlot, nil))
	assert.NoError(t, chain.NewSlotTransportError(chain.OpFetchBlock, 1, nil))
}

func TestIsRetryable(t *testing.T) {
	transport := chain.NewTransportError(chain.OpSlotsSince, errors.New("timeout"))

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", transport, true},
		{"wrapped transport", fmt.Errorf("cycle: %w", transport), true},
		{"skipped", fmt.Errorf("slot 5: %w", chain.ErrSkipped), false},
		{"cancelled", chain.NewTransportError(chain.OpFetchBlock, context.Canceled), false},
		{"plain", errors.New("invalid params"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chain.IsRetryable(tt.err))
		})
	}
}

func TestIsSkippedSlotCode(t *testing.T) {
	for _, code := range []int{chain.CodeBlockNotAvailable, chain.CodeSlotSkipped, chain.CodeLongTermStorageSlotSkipped} {
		assert.True(t, chain.IsSkippedSlotCode(code), code)
	}
	assert.False(t, chain.IsSkippedSlotCode(-32000))
	assert.False(t, chain.IsSkippedSlotCode(0))
}

func TestInstrumented(t *testing.T) {
	source := chaintest.NewSource(100)
	source.Produce(101, 1)
	source.Skip(102)
	source.FailNext(103, 1)
	source.Produce(103, 2)

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewPrometheusCollector(reg)
	require.NoError(t, err)

	inst := chain.NewInstrumented(source, collector)
	ctx := context.Background()

	slot, err := inst.CurrentSlot(ctx, types.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, types.Slot(103), slot)

	_, err = inst.SlotsSince(ctx, 100, types.CommitmentFinalized)
	require.NoError(t, err)

	_, err = inst.FetchBlock(ctx, 101, types.CommitmentFinalized)
	require.NoError(t, err)
	_, err = inst.FetchBlock(ctx, 102, types.CommitmentFinalized)
	assert.True(t, chain.IsSkipped(err))
	_, err = inst.FetchBlock(ctx, 103, types.CommitmentFinalized)
	assert.True(t, chain.IsRetryable(err))

	got, err := testutil.GatherAndCount(reg, "slot_listener_rpc_requests_total")
	require.NoError(t, err)
	// getSlot ok, getBlocks ok, getBlock ok, getBlock error.
	assert.Equal(t, 4, got)
}
