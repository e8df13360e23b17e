package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/fortiblox/slot-listener/internal/types"
)

// Default configuration values.
const (
	// DefaultConcurrency is the maximum number of in-flight block fetches.
	DefaultConcurrency = 16

	// DefaultPollInterval is the pause after a cycle that discovered nothing.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultRequestTimeout bounds each call to the chain data source.
	DefaultRequestTimeout = 30 * time.Second
)

// Discovery selects how new slots are found each cycle.
type Discovery string

const (
	// DiscoveryBlocks lists produced slots with getBlocks. Skipped slots are
	// never fetched.
	DiscoveryBlocks Discovery = "blocks"

	// DiscoveryRange asks for the current slot and fetches every slot in the
	// gap. Skipped slots are discovered by fetching them.
	DiscoveryRange Discovery = "range"
)

// ParseDiscovery parses a discovery mode name.
func ParseDiscovery(s string) (Discovery, error) {
	switch d := Discovery(s); d {
	case DiscoveryBlocks, DiscoveryRange:
		return d, nil
	default:
		return "", fmt.Errorf("unknown discovery mode %q", s)
	}
}

// Config holds configuration for the Scheduler.
type Config struct {
	// Commitment is the commitment level for discovery and fetches.
	Commitment types.Commitment

	// Concurrency caps the batch size and the number of in-flight fetches.
	Concurrency int

	// PollInterval is how long to wait after a cycle with no new slots.
	PollInterval time.Duration

	// RequestTimeout bounds every individual source call.
	RequestTimeout time.Duration

	// Discovery selects the slot discovery strategy.
	Discovery Discovery
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Commitment:     types.CommitmentFinalized,
		Concurrency:    DefaultConcurrency,
		PollInterval:   DefaultPollInterval,
		RequestTimeout: DefaultRequestTimeout,
		Discovery:      DiscoveryBlocks,
	}
}

// WithDefaults applies default values for any unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Concurrency == 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.Discovery == "" {
		c.Discovery = defaults.Discovery
	}

	return c
}

// Validate checks the configuration for values the scheduler cannot run with.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return errors.New("concurrency must be positive")
	}
	if c.PollInterval < 0 {
		return errors.New("poll interval must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if _, err := ParseDiscovery(string(c.Discovery)); err != nil {
		return err
	}
	if c.Commitment > types.CommitmentFinalized {
		return fmt.Errorf("invalid commitment %d", c.Commitment)
	}
	return nil
}
