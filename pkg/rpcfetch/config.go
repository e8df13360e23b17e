package rpcfetch

import (
	"errors"
	"time"

	"github.com/fortiblox/slot-listener/internal/types"
)

// Default configuration values.
const (
	// DefaultRequestTimeout bounds a single HTTP round trip.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRateBurst is the limiter burst when RateLimit is set.
	DefaultRateBurst = 1
)

// Config holds the raw backend configuration.
type Config struct {
	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration

	// RateLimit caps outgoing requests per second. Zero disables the limit.
	RateLimit float64

	// RateBurst is the number of requests allowed to exceed RateLimit at once.
	RateBurst int

	// TransactionDetails is the detail level requested with every block.
	TransactionDetails types.TransactionDetails
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:     DefaultRequestTimeout,
		RateBurst:          DefaultRateBurst,
		TransactionDetails: types.TransactionDetailsFull,
	}
}

// WithDefaults applies default values for any unset fields.
func (c Config) WithDefaults() Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.TransactionDetails == "" {
		c.TransactionDetails = types.TransactionDetailsFull
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RequestTimeout < 0 {
		return errors.New("negative request timeout")
	}
	if c.RateLimit < 0 {
		return errors.New("negative rate limit")
	}
	if _, err := types.ParseTransactionDetails(string(c.TransactionDetails)); err != nil {
		return err
	}
	return nil
}
