// Package chain defines the contract between the fetch scheduler and the
// remote chain data service.
//
// Two backends implement Source: rpcclient (built on the solana-go RPC
// client) and rpcfetch (a raw JSON-RPC client over HTTP). The scheduler is
// agnostic to which one is in use.
package chain

import (
	"context"
	"slices"

	"github.com/fortiblox/slot-listener/internal/types"
)

// SlotSource reports the current frontier of the ledger.
type SlotSource interface {
	// CurrentSlot returns the highest slot known to the source at the given
	// commitment level.
	CurrentSlot(ctx context.Context, commitment types.Commitment) (types.Slot, error)
}

// Source is the chain data service consumed by the scheduler.
type Source interface {
	SlotSource

	// SlotsSince returns the slots with produced blocks after from, in
	// ascending order and excluding from itself. An empty result means no new
	// slots yet and is not an error.
	SlotsSince(ctx context.Context, from types.Slot, commitment types.Commitment) ([]types.Slot, error)

	// FetchBlock returns the block metadata for slot. It returns ErrSkipped
	// when the slot has no block at the requested detail level, and a
	// *TransportError for any transport or protocol failure.
	FetchBlock(ctx context.Context, slot types.Slot, commitment types.Commitment) (types.BlockRecord, error)
}

// FilterSlotsAfter returns the strictly ascending, deduplicated subset of
// slots greater than from. The input is not modified.
func FilterSlotsAfter(slots []types.Slot, from types.Slot) []types.Slot {
	out := make([]types.Slot, 0, len(slots))
	for _, s := range slots {
		if s > from {
			out = append(out, s)
		}
	}
	if isStrictlyAscending(out) {
		return out
	}

	// getBlocks returns ascending slots; tolerate backends that do not.
	slices.Sort(out)
	n := 0
	for i, s := range out {
		if i == 0 || s != out[n-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}

func isStrictlyAscending(slots []types.Slot) bool {
	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			return false
		}
	}
	return true
}
