// Package rpcclient implements chain.Source with the solana-go RPC client.
package rpcclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/chain"
)

// Config holds the structured backend configuration.
type Config struct {
	// Endpoint is the JSON-RPC URL.
	Endpoint string

	// TransactionDetails is the detail level requested with every block.
	TransactionDetails types.TransactionDetails
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("empty RPC endpoint")
	}
	_, err := types.ParseTransactionDetails(string(c.TransactionDetails))
	return err
}

// Client is a chain.Source backed by rpc.Client.
type Client struct {
	rpc     *rpc.Client
	details types.TransactionDetails
}

var _ chain.Source = (*Client)(nil)

// New creates a client for config.Endpoint. An empty TransactionDetails
// requests full details.
func New(config Config) (*Client, error) {
	if config.TransactionDetails == "" {
		config.TransactionDetails = types.TransactionDetailsFull
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rpcclient config: %w", err)
	}
	return &Client{
		rpc:     rpc.New(config.Endpoint),
		details: config.TransactionDetails,
	}, nil
}

// CurrentSlot implements chain.SlotSource.
func (c *Client) CurrentSlot(ctx context.Context, commitment types.Commitment) (types.Slot, error) {
	slot, err := c.rpc.GetSlot(ctx, toCommitment(commitment))
	if err != nil {
		return 0, chain.NewTransportError(chain.OpCurrentSlot, err)
	}
	return slot, nil
}

// SlotsSince implements chain.Source.
func (c *Client) SlotsSince(ctx context.Context, from types.Slot, commitment types.Commitment) ([]types.Slot, error) {
	slots, err := c.rpc.GetBlocks(ctx, from, nil, toCommitment(commitment))
	if err != nil {
		return nil, chain.NewTransportError(chain.OpSlotsSince, err)
	}
	return chain.FilterSlotsAfter(slots, from), nil
}

// FetchBlock implements chain.Source.
func (c *Client) FetchBlock(ctx context.Context, slot types.Slot, commitment types.Commitment) (types.BlockRecord, error) {
	rewards := false
	version := uint64(0)

	block, err := c.rpc.GetBlockWithOpts(ctx, slot, &rpc.GetBlockOpts{
		Encoding:                       solana.EncodingBase64,
		TransactionDetails:             rpc.TransactionDetailsType(c.details),
		Rewards:                        &rewards,
		Commitment:                     toCommitment(commitment),
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		if isSkipped(err) {
			return types.BlockRecord{}, fmt.Errorf("slot %d: %v: %w", slot, err, chain.ErrSkipped)
		}
		return types.BlockRecord{}, chain.NewSlotTransportError(chain.OpFetchBlock, slot, err)
	}
	if block.BlockHeight == nil {
		return types.BlockRecord{}, fmt.Errorf("slot %d: no block height: %w", slot, chain.ErrSkipped)
	}

	if block.Blockhash.IsZero() {
		return types.BlockRecord{}, chain.NewSlotTransportError(chain.OpFetchBlock, slot, chain.ErrZeroBlockhash)
	}

	parent := block.ParentSlot
	record := types.BlockRecord{
		Blockhash:  types.Hash(block.Blockhash),
		Slot:       slot,
		ParentSlot: &parent,
		Height:     *block.BlockHeight,
		Commitment: commitment,
	}

	switch c.details {
	case types.TransactionDetailsNone:
	case types.TransactionDetailsSignatures:
		if block.Signatures == nil {
			return types.BlockRecord{}, fmt.Errorf("slot %d: no signatures: %w", slot, chain.ErrSkipped)
		}
		n := uint64(len(block.Signatures))
		record.TxCount = &n
	default:
		if block.Transactions == nil {
			return types.BlockRecord{}, fmt.Errorf("slot %d: no transactions: %w", slot, chain.ErrSkipped)
		}
		n := uint64(len(block.Transactions))
		record.TxCount = &n
	}

	return record, nil
}

// isSkipped reports whether err means the slot has no block. A null
// getBlock result surfaces as rpc.ErrNotConfirmed.
func isSkipped(err error) bool {
	if errors.Is(err, rpc.ErrNotConfirmed) || errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return chain.IsSkippedSlotCode(rpcErr.Code)
	}
	return false
}

func toCommitment(c types.Commitment) rpc.CommitmentType {
	switch c {
	case types.CommitmentProcessed:
		return rpc.CommitmentProcessed
	case types.CommitmentConfirmed:
		return rpc.CommitmentConfirmed
	default:
		return rpc.CommitmentFinalized
	}
}
