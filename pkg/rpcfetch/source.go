package rpcfetch

import (
	"context"
	"fmt"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/chain"
)

// Source implements chain.Source with an RPCClient.
type Source struct {
	client  *RPCClient
	pool    Pool
	details types.TransactionDetails
}

var _ chain.Source = (*Source)(nil)

// NewSource creates a raw JSON-RPC source over pool.
func NewSource(pool Pool, config Config) (*Source, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rpcfetch config: %w", err)
	}
	if pool == nil || len(pool.Endpoints()) == 0 {
		return nil, ErrNoEndpoints
	}

	return &Source{
		client:  NewRPCClient(pool, config),
		pool:    pool,
		details: config.TransactionDetails,
	}, nil
}

// Endpoints returns a snapshot of the pool's endpoints.
func (s *Source) Endpoints() []Endpoint {
	return s.pool.Endpoints()
}

// CurrentSlot implements chain.SlotSource.
func (s *Source) CurrentSlot(ctx context.Context, commitment types.Commitment) (types.Slot, error) {
	slot, err := s.client.GetSlot(ctx, commitment.String())
	if err != nil {
		return 0, chain.NewTransportError(chain.OpCurrentSlot, err)
	}
	return slot, nil
}

// SlotsSince implements chain.Source.
func (s *Source) SlotsSince(ctx context.Context, from types.Slot, commitment types.Commitment) ([]types.Slot, error) {
	slots, err := s.client.GetBlocks(ctx, from, commitment.String())
	if err != nil {
		return nil, chain.NewTransportError(chain.OpSlotsSince, err)
	}
	return chain.FilterSlotsAfter(slots, from), nil
}

// FetchBlock implements chain.Source.
func (s *Source) FetchBlock(ctx context.Context, slot types.Slot, commitment types.Commitment) (types.BlockRecord, error) {
	block, err := s.client.GetBlock(ctx, slot, BlockOptions{
		Commitment:         commitment.String(),
		TransactionDetails: string(s.details),
	})
	if err != nil {
		if IsSlotSkipped(err) {
			return types.BlockRecord{}, fmt.Errorf("slot %d: %v: %w", slot, err, chain.ErrSkipped)
		}
		return types.BlockRecord{}, chain.NewSlotTransportError(chain.OpFetchBlock, slot, err)
	}

	return s.toRecord(slot, commitment, block)
}

func (s *Source) toRecord(slot types.Slot, commitment types.Commitment, block *BlockResponse) (types.BlockRecord, error) {
	if block.BlockHeight == nil {
		return types.BlockRecord{}, fmt.Errorf("slot %d: no block height: %w", slot, chain.ErrSkipped)
	}

	hash, err := types.HashFromBase58(block.Blockhash)
	if err != nil {
		return types.BlockRecord{}, chain.NewSlotTransportError(chain.OpFetchBlock, slot,
			fmt.Errorf("parse blockhash: %w", err))
	}
	if hash.IsZero() {
		return types.BlockRecord{}, chain.NewSlotTransportError(chain.OpFetchBlock, slot, chain.ErrZeroBlockhash)
	}

	record := types.BlockRecord{
		Blockhash:  hash,
		Slot:       slot,
		ParentSlot: block.ParentSlot,
		Height:     *block.BlockHeight,
		Commitment: commitment,
	}

	switch s.details {
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
