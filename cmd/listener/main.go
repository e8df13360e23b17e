// Command listener follows a Solana-compatible cluster over JSON-RPC and
// keeps an in-memory index of the blocks it produces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fortiblox/slot-listener/pkg/api"
	"github.com/fortiblox/slot-listener/pkg/blockstore"
	"github.com/fortiblox/slot-listener/pkg/chain"
	"github.com/fortiblox/slot-listener/pkg/metrics"
	"github.com/fortiblox/slot-listener/pkg/rpcclient"
	"github.com/fortiblox/slot-listener/pkg/rpcfetch"
	"github.com/fortiblox/slot-listener/pkg/scheduler"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "listener",
		Short:         "Index newly produced blocks from a Solana-compatible RPC endpoint",
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(v)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			log := newLogger(c, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = run(ctx, c, log)
			log.Fatal().Err(err).Msg("Listener exited")
			return err
		},
	}

	if err := addFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

// run wires the listener and blocks until the scheduler or the API stops.
// It always returns a non-nil error.
func run(ctx context.Context, c config, log zerolog.Logger) error {
	log.Info().
		Str("version", Version).
		Str("rpc_addr", c.RPCAddr).
		Str("commitment", c.Commitment.String()).
		Str("transaction_details", string(c.TransactionDetails)).
		Msg("starting listener")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewPrometheusCollector(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	backend, name, err := newBackend(c, log)
	if err != nil {
		return err
	}
	source := chain.NewInstrumented(backend, collector)

	storeConfig := blockstore.DefaultConfig()
	storeConfig.Commitment = c.Commitment
	storeConfig.SeedTimeout = c.Scheduler.RequestTimeout
	store, err := blockstore.New(ctx, source, storeConfig)
	if err != nil {
		return err
	}
	log.Info().Uint64("watermark", store.Watermark()).Msg("seeded block store")

	sched, err := scheduler.New(source, store, c.Scheduler, collector, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx, scheduler.NewState(store.Watermark()))
	})

	if c.HTTPAddr != "" {
		apiConfig := api.DefaultConfig()
		apiConfig.Address = c.HTTPAddr
		apiConfig.Commitment = c.Commitment
		apiConfig.Backend = name
		server := api.New(apiConfig, store, reg, log)
		g.Go(func() error {
			if err := server.Start(ctx); err != nil {
				return err
			}
			return ctx.Err()
		})
	}

	err = g.Wait()
	if err == nil {
		err = fmt.Errorf("listener stopped")
	}
	return err
}

// newBackend creates the chain data source selected by c.
func newBackend(c config, log zerolog.Logger) (chain.Source, string, error) {
	if c.UseReqwest {
		fetchConfig := rpcfetch.DefaultConfig()
		fetchConfig.RequestTimeout = c.Scheduler.RequestTimeout
		fetchConfig.RateLimit = c.RateLimit
		fetchConfig.TransactionDetails = c.TransactionDetails

		source, err := rpcfetch.NewSource(rpcfetch.NewSimplePool([]string{c.RPCAddr}), fetchConfig)
		if err != nil {
			return nil, "", fmt.Errorf("create rpcfetch source: %w", err)
		}
		log.Info().Str("backend", "rpcfetch").Float64("rate_limit", c.RateLimit).Msg("using raw JSON-RPC backend")
		return source, "rpcfetch", nil
	}

	if c.RateLimit > 0 {
		log.Warn().Float64("rate_limit", c.RateLimit).Msg("rate limit only applies to the raw JSON-RPC backend")
	}
	client, err := rpcclient.New(rpcclient.Config{
		Endpoint:           c.RPCAddr,
		TransactionDetails: c.TransactionDetails,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create rpcclient source: %w", err)
	}
	log.Info().Str("backend", "rpcclient").Msg("using solana-go backend")
	return client, "rpcclient", nil
}
