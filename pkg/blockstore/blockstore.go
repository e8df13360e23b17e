package blockstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/sethvargo/go-retry"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/chain"
)

// Store is a concurrent map from blockhash to block metadata with a
// secondary slot index. The zero value is not usable; call New or NewEmpty.
type Store struct {
	mu sync.RWMutex

	byHash map[types.Hash]types.BlockRecord
	bySlot map[types.Slot]types.Hash

	// latest holds, per commitment tier, the hash of the highest-slot block
	// observed at that tier or above.
	latest map[types.Commitment]types.Hash

	watermark types.Slot
	stats     Stats
}

// New creates a store and primes its watermark from seed so that the first
// discovery cycle has a valid baseline. A nil seed starts from slot zero.
// Each seed attempt is bounded by SeedTimeout. Transport failures are retried
// with exponential backoff and reported as an *InitializationError once
// retries are exhausted.
func New(ctx context.Context, seed chain.SlotSource, config Config) (*Store, error) {
	config = config.WithDefaults()
	s := NewEmpty()

	if seed == nil {
		return s, nil
	}

	backoff := retry.WithMaxRetries(config.SeedRetries, retry.NewExponential(config.SeedBackoff))

	var slot types.Slot
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, config.SeedTimeout)
		defer cancel()

		current, err := seed.CurrentSlot(attemptCtx, config.Commitment)
		if err != nil {
			if chain.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		slot = current
		return nil
	})
	if err != nil {
		return nil, &InitializationError{Err: fmt.Errorf("get initial slot: %w", err)}
	}

	s.watermark = slot
	return s, nil
}

// NewEmpty creates a store with a zero watermark.
func NewEmpty() *Store {
	return &Store{
		byHash: make(map[types.Hash]types.BlockRecord),
		bySlot: make(map[types.Slot]types.Hash),
		latest: make(map[types.Commitment]types.Hash),
	}
}

// AddBlock inserts record under hash at the given commitment.
//
// The call is idempotent: an identical record is a no-op. A record already
// stored at a lower commitment is raised to the new tier; a lower tier never
// replaces a higher one. If the content differs from the stored record for
// the same hash, the stored record is kept and the conflict is counted.
//
// AddBlock panics on a zero blockhash or on a hash that does not match the
// record; both are programming errors in the caller.
func (s *Store) AddBlock(hash types.Hash, record types.BlockRecord, commitment types.Commitment) {
	if hash.IsZero() {
		panic("blockstore: AddBlock with zero blockhash")
	}
	if record.Blockhash != hash {
		panic(fmt.Sprintf("blockstore: AddBlock hash %s does not match record %s", hash, record.Blockhash))
	}
	record = copyRecord(record)
	record.Commitment = commitment

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.byHash[hash]
	switch {
	case !exists:
		s.byHash[hash] = record
	case !stored.SameContent(record):
		s.stats.Conflicts++
		return
	case commitment <= stored.Commitment:
		return
	default:
		stored.Commitment = commitment
		s.byHash[hash] = stored
		s.stats.Upgrades++
		record = stored
	}

	// Index by slot, latest writer wins.
	if prev, ok := s.bySlot[record.Slot]; ok && prev != hash {
		s.stats.SlotReplacements++
	}
	s.bySlot[record.Slot] = hash

	// Advance the per-tier latest pointers this record satisfies.
	for tier := types.CommitmentProcessed; tier <= record.Commitment && tier <= types.CommitmentFinalized; tier++ {
		cur, ok := s.latest[tier]
		if !ok || s.byHash[cur].Slot <= record.Slot {
			s.latest[tier] = hash
		}
	}
}

// Get returns the record stored under hash.
func (s *Store) Get(hash types.Hash) (types.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byHash[hash]
	if !ok {
		return types.BlockRecord{}, ErrNotFound
	}
	return copyRecord(record), nil
}

// GetBySlot returns the record currently indexed for slot.
func (s *Store) GetBySlot(slot types.Slot) (types.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.bySlot[slot]
	if !ok {
		return types.BlockRecord{}, ErrNotFound
	}
	return copyRecord(s.byHash[hash]), nil
}

// HasSlot reports whether a block is indexed for slot.
func (s *Store) HasSlot(slot types.Slot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.bySlot[slot]
	return ok
}

// Latest returns the highest-slot block observed at commitment or above.
func (s *Store) Latest(commitment types.Commitment) (types.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.latest[commitment]
	if !ok {
		return types.BlockRecord{}, ErrEmpty
	}
	return copyRecord(s.byHash[hash]), nil
}

// Len returns the number of distinct blocks stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}

// Watermark returns the highest slot the scheduler has reported as seen.
func (s *Store) Watermark() types.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

// ObserveWatermark raises the store's progress marker to slot. Lower values
// are ignored.
func (s *Store) ObserveWatermark(slot types.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot > s.watermark {
		s.watermark = slot
	}
}

// Stats returns a snapshot of store statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Blocks = len(s.byHash)
	stats.Slots = len(s.bySlot)
	stats.Watermark = s.watermark
	if hash, ok := s.latest[types.CommitmentProcessed]; ok {
		stats.LatestSlot = s.byHash[hash].Slot
	}
	return stats
}

// copyRecord detaches the optional fields so callers cannot mutate the
// stored record through its pointers.
func copyRecord(r types.BlockRecord) types.BlockRecord {
	if r.ParentSlot != nil {
		parent := *r.ParentSlot
		r.ParentSlot = &parent
	}
	if r.TxCount != nil {
		txs := *r.TxCount
		r.TxCount = &txs
	}
	return r
}
