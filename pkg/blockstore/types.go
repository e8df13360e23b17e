// Package blockstore records the blocks observed by the listener.
//
// The store is an in-memory index keyed by blockhash with a secondary slot
// index. It is built incrementally by concurrent fetch tasks and read by
// downstream consumers while ingestion is running:
//   - Idempotent inserts: a repeated identical record is a no-op
//   - Commitment upgrades: a record may be raised to a higher tier, never lowered
//   - Latest-wins slot index
//
// Entries are never removed and nothing survives a process restart.
package blockstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/fortiblox/slot-listener/internal/types"
)

var (
	// ErrNotFound is returned when no block matches the query.
	ErrNotFound = errors.New("block not found")

	// ErrEmpty is returned by Latest when no block has been stored at the
	// requested commitment.
	ErrEmpty = errors.New("block store is empty")
)

// InitializationError is returned by New when the store cannot establish its
// starting watermark. It is fatal: the scheduler has no baseline without it.
type InitializationError struct {
	Err error
}

// Error implements the error interface.
func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize block store: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *InitializationError) Unwrap() error {
	return e.Err
}

// Default configuration values.
const (
	// DefaultSeedRetries is the number of retries for the seed slot query.
	DefaultSeedRetries = 3

	// DefaultSeedBackoff is the initial delay between seed retries.
	DefaultSeedBackoff = 200 * time.Millisecond

	// DefaultSeedTimeout bounds a single seed slot query.
	DefaultSeedTimeout = 30 * time.Second
)

// Config holds block store configuration.
type Config struct {
	// Commitment is the tier the store is seeded at.
	Commitment types.Commitment

	// SeedRetries is the number of retries after a failed seed query.
	SeedRetries uint64

	// SeedBackoff is the initial delay between seed retries; it doubles on
	// every attempt.
	SeedBackoff time.Duration

	// SeedTimeout bounds each seed attempt.
	SeedTimeout time.Duration
}

// DefaultConfig returns the default block store configuration.
func DefaultConfig() Config {
	return Config{
		Commitment:  types.CommitmentFinalized,
		SeedRetries: DefaultSeedRetries,
		SeedBackoff: DefaultSeedBackoff,
		SeedTimeout: DefaultSeedTimeout,
	}
}

// WithDefaults applies default values for any unset fields.
func (c Config) WithDefaults() Config {
	if c.SeedBackoff <= 0 {
		c.SeedBackoff = DefaultSeedBackoff
	}
	if c.SeedTimeout <= 0 {
		c.SeedTimeout = DefaultSeedTimeout
	}
	return c
}

// Stats contains block store statistics.
type Stats struct {
	// Blocks is the number of distinct blockhashes stored.
	Blocks int `json:"blocks"`

	// Slots is the number of slots with an indexed block.
	Slots int `json:"slots"`

	// Watermark is the highest slot the scheduler has considered.
	Watermark types.Slot `json:"watermark"`

	// LatestSlot is the highest stored slot at any commitment.
	LatestSlot types.Slot `json:"latestSlot"`

	// Upgrades counts records raised to a higher commitment.
	Upgrades uint64 `json:"upgrades"`

	// Conflicts counts inserts whose content differed from the stored
	// record for the same blockhash. The first record is kept.
	Conflicts uint64 `json:"conflicts"`

	// SlotReplacements counts slots whose indexed blockhash changed.
	SlotReplacements uint64 `json:"slotReplacements"`
}
