package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/scheduler"
)

// envPrefix prefixes every environment variable the listener reads.
const envPrefix = "LISTENER"

// defaultRPCAddr is the cluster endpoint used when none is configured.
const defaultRPCAddr = "https://api.mainnet-beta.solana.com"

// Config keys. Each maps to LISTENER_<KEY> in the environment.
const (
	keyRPCAddr            = "rpc_addr"
	keyUseReqwest         = "use_reqwest"
	keyCommitment         = "commitment"
	keyTransactionDetails = "transaction_details"
	keyConcurrency        = "concurrency"
	keyPollInterval       = "poll_interval"
	keyRequestTimeout     = "request_timeout"
	keyDiscovery          = "discovery"
	keyRateLimit          = "rate_limit"
	keyHTTPAddr           = "http_addr"
	keyLogLevel           = "log_level"
	keyLogFormat          = "log_format"
)

// config is the resolved listener configuration.
type config struct {
	RPCAddr            string
	UseReqwest         bool
	Commitment         types.Commitment
	TransactionDetails types.TransactionDetails
	Scheduler          scheduler.Config
	RateLimit          float64
	HTTPAddr           string
	LogLevel           zerolog.Level
	LogFormat          string
}

// addFlags registers the command line flags and binds them into v.
func addFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("rpc-addr", defaultRPCAddr, "JSON-RPC endpoint of the cluster")
	flags.Bool("use-reqwest", false, "Use the raw HTTP JSON-RPC backend instead of the solana-go client")

	if err := v.BindPFlag(keyRPCAddr, flags.Lookup("rpc-addr")); err != nil {
		return err
	}
	return v.BindPFlag(keyUseReqwest, flags.Lookup("use-reqwest"))
}

// newViper returns a viper instance reading LISTENER_* variables with the
// listener defaults.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault(keyRPCAddr, defaultRPCAddr)
	v.SetDefault(keyUseReqwest, false)
	v.SetDefault(keyCommitment, types.CommitmentFinalized.String())
	v.SetDefault(keyTransactionDetails, string(types.TransactionDetailsFull))
	v.SetDefault(keyConcurrency, scheduler.DefaultConcurrency)
	v.SetDefault(keyPollInterval, scheduler.DefaultPollInterval)
	v.SetDefault(keyRequestTimeout, scheduler.DefaultRequestTimeout)
	v.SetDefault(keyDiscovery, string(scheduler.DiscoveryBlocks))
	v.SetDefault(keyRateLimit, 0.0)
	v.SetDefault(keyHTTPAddr, "")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "json")
	return v
}

// loadConfig resolves and validates the configuration held by v.
func loadConfig(v *viper.Viper) (config, error) {
	var c config

	c.RPCAddr = strings.TrimSpace(v.GetString(keyRPCAddr))
	if c.RPCAddr == "" {
		return c, fmt.Errorf("%s must not be empty", keyRPCAddr)
	}
	c.UseReqwest = v.GetBool(keyUseReqwest)

	commitment, err := types.ParseCommitment(v.GetString(keyCommitment))
	if err != nil {
		return c, err
	}
	c.Commitment = commitment

	details, err := types.ParseTransactionDetails(v.GetString(keyTransactionDetails))
	if err != nil {
		return c, err
	}
	c.TransactionDetails = details

	discovery, err := scheduler.ParseDiscovery(v.GetString(keyDiscovery))
	if err != nil {
		return c, err
	}

	c.Scheduler = scheduler.Config{
		Commitment:     commitment,
		Concurrency:    v.GetInt(keyConcurrency),
		PollInterval:   v.GetDuration(keyPollInterval),
		RequestTimeout: v.GetDuration(keyRequestTimeout),
		Discovery:      discovery,
	}
	if err := c.Scheduler.Validate(); err != nil {
		return c, err
	}

	c.RateLimit = v.GetFloat64(keyRateLimit)
	if c.RateLimit < 0 {
		return c, fmt.Errorf("%s must not be negative", keyRateLimit)
	}
	c.HTTPAddr = v.GetString(keyHTTPAddr)

	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString(keyLogLevel)))
	if err != nil {
		return c, fmt.Errorf("parse %s: %w", keyLogLevel, err)
	}
	c.LogLevel = level

	switch format := strings.ToLower(v.GetString(keyLogFormat)); format {
	case "json", "console":
		c.LogFormat = format
	default:
		return c, fmt.Errorf("unknown %s %q", keyLogFormat, format)
	}

	return c, nil
}

// newLogger builds the process logger.
func newLogger(c config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if c.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(c.LogLevel).With().Timestamp().Logger()
}
