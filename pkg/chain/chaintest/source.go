// Package chaintest provides a scriptable in-memory chain.Source for tests.
package chaintest

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/chain"
)

// Source is an in-memory ledger. Slots are produced explicitly by the test;
// fetches can be scripted to fail transiently or to report a skipped slot.
type Source struct {
	mu sync.Mutex

	frontier types.Slot
	produced []types.Slot
	blocks   map[types.Slot]types.BlockRecord
	skipped  map[types.Slot]bool
	failures map[types.Slot]int

	discoveryErr error
	fetchDelay   time.Duration

	fetchCalls  map[types.Slot]int
	inFlight    int
	maxInFlight int
}

var _ chain.Source = (*Source)(nil)

// NewSource creates an empty ledger at the given frontier slot.
func NewSource(frontier types.Slot) *Source {
	return &Source{
		frontier:   frontier,
		blocks:     make(map[types.Slot]types.BlockRecord),
		skipped:    make(map[types.Slot]bool),
		failures:   make(map[types.Slot]int),
		fetchCalls: make(map[types.Slot]int),
	}
}

// HashForSlot returns the deterministic blockhash the source uses for slot.
func HashForSlot(slot types.Slot) types.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)
	return blake3.Sum256(buf[:])
}

// Produce adds a block at slot with the given height and advances the frontier.
func (s *Source) Produce(slot types.Slot, height uint64) types.BlockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := slot - 1
	txs := uint64(slot % 7)
	record := types.BlockRecord{
		Blockhash:  HashForSlot(slot),
		Slot:       slot,
		ParentSlot: &parent,
		Height:     height,
		TxCount:    &txs,
	}
	s.blocks[slot] = record
	s.addSlotLocked(slot)
	return record
}

// Skip marks slot as produced but without a block.
func (s *Source) Skip(slot types.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skipped[slot] = true
	s.addSlotLocked(slot)
}

// FailNext makes the next n fetches of slot fail with a transport error.
func (s *Source) FailNext(slot types.Slot, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[slot] = n
}

// FailDiscovery makes CurrentSlot and SlotsSince fail with err until reset
// with a nil error.
func (s *Source) FailDiscovery(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveryErr = err
}

// SetFetchDelay makes every FetchBlock call sleep for d.
func (s *Source) SetFetchDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchDelay = d
}

// FetchCalls returns how many times slot was fetched.
func (s *Source) FetchCalls(slot types.Slot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls[slot]
}

// MaxInFlight returns the highest number of concurrent FetchBlock calls observed.
func (s *Source) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *Source) addSlotLocked(slot types.Slot) {
	if i, found := slices.BinarySearch(s.produced, slot); !found {
		s.produced = slices.Insert(s.produced, i, slot)
	}
	if slot > s.frontier {
		s.frontier = slot
	}
}

// CurrentSlot implements chain.SlotSource.
func (s *Source) CurrentSlot(ctx context.Context, _ types.Commitment) (types.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discoveryErr != nil {
		return 0, chain.NewTransportError(chain.OpCurrentSlot, s.discoveryErr)
	}
	return s.frontier, nil
}

// SlotsSince implements chain.Source.
func (s *Source) SlotsSince(ctx context.Context, from types.Slot, _ types.Commitment) ([]types.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discoveryErr != nil {
		return nil, chain.NewTransportError(chain.OpSlotsSince, s.discoveryErr)
	}
	return chain.FilterSlotsAfter(s.produced, from), nil
}

// FetchBlock implements chain.Source.
func (s *Source) FetchBlock(ctx context.Context, slot types.Slot, commitment types.Commitment) (types.BlockRecord, error) {
	s.mu.Lock()
	s.fetchCalls[slot]++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	delay := s.fetchDelay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return types.BlockRecord{}, chain.NewSlotTransportError(chain.OpFetchBlock, slot, ctx.Err())
		case <-time.After(delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.failures[slot]; n > 0 {
		s.failures[slot] = n - 1
		return types.BlockRecord{}, chain.NewSlotTransportError(chain.OpFetchBlock, slot, errTransient)
	}
	if s.skipped[slot] {
		return types.BlockRecord{}, chain.ErrSkipped
	}
	record, ok := s.blocks[slot]
	if !ok {
		return types.BlockRecord{}, chain.ErrSkipped
	}
	record.Commitment = commitment
	return record, nil
}

var errTransient = errors.New("connection reset by peer")
