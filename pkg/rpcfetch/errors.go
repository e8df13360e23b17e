package rpcfetch

import (
	"errors"
	"fmt"

	"github.com/fortiblox/slot-listener/pkg/chain"
)

// Package errors.
var (
	// ErrNoEndpoints is returned when the pool has no RPC endpoints.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrNullResult is returned when getBlock answers with a null result.
	ErrNullResult = errors.New("null block result")
)

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// HTTPError is returned for a non-200 HTTP response.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// IsSlotSkipped returns true if the error indicates a slot without a block.
func IsSlotSkipped(err error) bool {
	if errors.Is(err, ErrNullResult) {
		return true
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return chain.IsSkippedSlotCode(rpcErr.Code)
	}

	return false
}
