package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortiblox/slot-listener/internal/types"
)

// ErrSkipped is returned by FetchBlock when the slot has no block, or the
// block carries no height or transaction data at the requested detail level.
// A skipped slot is terminal and never retried.
var ErrSkipped = errors.New("slot was skipped")

// ErrZeroBlockhash is wrapped in a TransportError when a source returns the
// all-zero blockhash for a produced block.
var ErrZeroBlockhash = errors.New("zero blockhash")

// JSON-RPC error codes returned for slots without a block.
const (
	// CodeBlockNotAvailable is "Block not available for slot".
	CodeBlockNotAvailable = -32004

	// CodeSlotSkipped is "Slot was skipped".
	CodeSlotSkipped = -32007

	// CodeLongTermStorageSlotSkipped is "Slot was skipped, or missing in
	// long-term storage".
	CodeLongTermStorageSlotSkipped = -32009
)

// IsSkippedSlotCode reports whether a JSON-RPC error code means the slot has
// no block.
func IsSkippedSlotCode(code int) bool {
	switch code {
	case CodeBlockNotAvailable, CodeSlotSkipped, CodeLongTermStorageSlotSkipped:
		return true
	}
	return false
}

// Operation names used in TransportError and metrics.
const (
	OpCurrentSlot = "getSlot"
	OpSlotsSince  = "getBlocks"
	OpFetchBlock  = "getBlock"
)

// TransportError wraps a network or protocol failure talking to the source.
// Transport errors are always retryable.
type TransportError struct {
	// Op is the RPC method that failed.
	Op string

	// Slot is the slot being fetched, if any.
	Slot *types.Slot

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Slot != nil {
		return fmt.Sprintf("%s slot %d: %v", e.Op, *e.Slot, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err for op. A nil err yields nil.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// NewSlotTransportError wraps err for op on slot. A nil err yields nil.
func NewSlotTransportError(op string, slot types.Slot, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Slot: &slot, Err: err}
}

// IsSkipped returns true if the error indicates a skipped slot.
func IsSkipped(err error) bool {
	return errors.Is(err, ErrSkipped)
}

// IsRetryable returns true if the error is a transient transport failure.
// Context cancellation is not retryable.
func IsRetryable(err error) bool {
	if err == nil || IsSkipped(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransportError
	return errors.As(err, &te)
}
