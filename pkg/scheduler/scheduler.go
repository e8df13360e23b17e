// Package scheduler drives the polling loop that turns newly produced slots
// into stored block records.
//
// Each cycle moves through Discovering, Batching, Fetching and Committing:
//
//   - Discovering asks the source for slots beyond the watermark.
//   - Batching appends them to the retry queue and pops at most Concurrency
//     slots. When the queue is empty and the new slots fit in one batch they
//     are fetched directly.
//   - Fetching runs the batch concurrently; failures are isolated per slot.
//   - Committing stores records, drops skipped slots and requeues slots that
//     failed with a transport error at the queue tail.
//
// The watermark tracks slots seen, not slots stored, and only moves forward.
// Retries happen through the queue. A discovery failure is fatal to the loop.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/chain"
	"github.com/fortiblox/slot-listener/pkg/metrics"
)

// Store receives fetched blocks and the scheduler's progress.
type Store interface {
	AddBlock(hash types.Hash, record types.BlockRecord, commitment types.Commitment)
	ObserveWatermark(slot types.Slot)
	Len() int
}

// State is the loop state threaded through every cycle.
type State struct {
	// Watermark is the highest slot already considered for fetching.
	Watermark types.Slot

	// Queue holds slots awaiting a (re)fetch.
	Queue *RetryQueue
}

// NewState creates a loop state starting at watermark with an empty queue.
func NewState(watermark types.Slot) State {
	return State{Watermark: watermark, Queue: NewRetryQueue()}
}

// Report summarizes one cycle.
type Report struct {
	// Discovered is the number of new slots beyond the previous watermark.
	Discovered int

	// Batch is the number of slots fetched this cycle.
	Batch int

	// Stored, Skipped and Requeued partition Batch by outcome.
	Stored   int
	Skipped  int
	Requeued int

	// Queued is the retry queue length after the cycle.
	Queued int

	// Watermark is the watermark after the cycle.
	Watermark types.Slot

	// MeanLatency is the mean per-slot fetch latency.
	MeanLatency time.Duration

	// P99Latency is the 99th percentile per-slot fetch latency.
	P99Latency time.Duration

	// Idle is set when there was nothing to fetch.
	Idle bool
}

// Scheduler polls a chain.Source and commits fetched blocks to a Store.
type Scheduler struct {
	config  Config
	source  chain.Source
	store   Store
	metrics metrics.Collector
	log     zerolog.Logger
}

// New creates a scheduler. A nil collector disables metrics.
func New(source chain.Source, store Store, config Config, collector metrics.Collector, log zerolog.Logger) (*Scheduler, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("nil chain source")
	}
	if store == nil {
		return nil, fmt.Errorf("nil block store")
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}

	return &Scheduler{
		config:  config,
		source:  source,
		store:   store,
		metrics: collector,
		log:     log.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Run executes cycles until ctx is cancelled or discovery fails. It sleeps
// for PollInterval after every cycle that discovered no new slots. The
// in-flight batch always drains before Run returns.
func (s *Scheduler) Run(ctx context.Context, state State) error {
	s.log.Info().
		Str("commitment", s.config.Commitment.String()).
		Str("discovery", string(s.config.Discovery)).
		Int("concurrency", s.config.Concurrency).
		Uint64("watermark", state.Watermark).
		Msg("listening to blocks")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, report, err := s.Cycle(ctx, state)
		if err != nil {
			return err
		}
		state = next

		if report.Discovered > 0 {
			continue
		}
		if report.Idle {
			s.log.Warn().Uint64("watermark", state.Watermark).Msg("no new slots")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

// Cycle runs one Discovering, Batching, Fetching and Committing pass and
// returns the updated state. The only error it returns is a discovery
// failure; per-slot failures are folded back into the queue.
func (s *Scheduler) Cycle(ctx context.Context, state State) (State, Report, error) {
	if state.Queue == nil {
		state.Queue = NewRetryQueue()
	}

	// Discovering.
	newSlots, err := s.discover(ctx, state.Watermark)
	if err != nil {
		return state, Report{Watermark: state.Watermark, Queued: state.Queue.Len()},
			fmt.Errorf("discover slots after %d: %w", state.Watermark, err)
	}
	if n := len(newSlots); n > 0 && newSlots[n-1] > state.Watermark {
		state.Watermark = newSlots[n-1]
	}
	s.store.ObserveWatermark(state.Watermark)
	s.metrics.SlotsDiscovered(len(newSlots))
	s.metrics.Watermark(state.Watermark)

	// Batching.
	var batch []types.Slot
	if state.Queue.Len() == 0 && len(newSlots) <= s.config.Concurrency {
		batch = newSlots
	} else {
		state.Queue.PushAll(newSlots)
		batch = state.Queue.PopN(s.config.Concurrency)
	}

	report := Report{
		Discovered: len(newSlots),
		Batch:      len(batch),
		Watermark:  state.Watermark,
	}
	if len(batch) == 0 {
		report.Idle = true
		s.metrics.CycleCompleted(true)
		s.metrics.QueueDepth(state.Queue.Len())
		return state, report, nil
	}

	// Fetching.
	results := s.fetchBatch(ctx, batch)

	// Committing.
	s.commit(state.Queue, results, &report)
	report.Queued = state.Queue.Len()

	s.metrics.CycleCompleted(false)
	s.metrics.QueueDepth(report.Queued)
	s.metrics.StoreSize(s.store.Len())

	s.log.Info().
		Int("slots", report.Batch).
		Int("discovered", report.Discovered).
		Int("stored", report.Stored).
		Int("skipped", report.Skipped).
		Int("requeued", report.Requeued).
		Int("queued", report.Queued).
		Uint64("watermark", report.Watermark).
		Dur("avg_fetch", report.MeanLatency).
		Dur("p99_fetch", report.P99Latency).
		Msg("indexed batch")

	return state, report, nil
}

// discover returns the slots beyond watermark, ascending.
func (s *Scheduler) discover(ctx context.Context, watermark types.Slot) ([]types.Slot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	switch s.config.Discovery {
	case DiscoveryRange:
		frontier, err := s.source.CurrentSlot(ctx, s.config.Commitment)
		if err != nil {
			return nil, err
		}
		if frontier <= watermark {
			return nil, nil
		}
		slots := make([]types.Slot, 0, frontier-watermark)
		for slot := watermark + 1; slot <= frontier; slot++ {
			slots = append(slots, slot)
		}
		return slots, nil

	default:
		slots, err := s.source.SlotsSince(ctx, watermark, s.config.Commitment)
		if err != nil {
			return nil, err
		}
		return chain.FilterSlotsAfter(slots, watermark), nil
	}
}

// fetchResult is the outcome of fetching one slot.
type fetchResult struct {
	slot    types.Slot
	record  types.BlockRecord
	err     error
	latency time.Duration
}

// fetchBatch fetches every slot in batch concurrently, at most Concurrency at
// a time. A failed fetch never cancels its siblings.
func (s *Scheduler) fetchBatch(ctx context.Context, batch []types.Slot) []fetchResult {
	results := make([]fetchResult, len(batch))

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)

	for i, slot := range batch {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
			defer cancel()

			start := time.Now()
			record, err := s.source.FetchBlock(fetchCtx, slot, s.config.Commitment)
			results[i] = fetchResult{
				slot:    slot,
				record:  record,
				err:     err,
				latency: time.Since(start),
			}
			return nil
		})
	}

	// Workers never return an error.
	_ = g.Wait()
	return results
}

// commit applies fetch results to the store and the queue.
func (s *Scheduler) commit(queue *RetryQueue, results []fetchResult, report *Report) {
	var failures error
	latencies := make(stats.Float64Data, 0, len(results))

	for _, r := range results {
		latencies = append(latencies, float64(r.latency))

		switch {
		case r.err == nil:
			s.store.AddBlock(r.record.Blockhash, r.record, s.config.Commitment)
			report.Stored++
			s.metrics.SlotFetched(metrics.OutcomeStored, r.latency)
			s.logBlock(r.record)

		case chain.IsSkipped(r.err):
			report.Skipped++
			s.metrics.SlotFetched(metrics.OutcomeSkipped, r.latency)
			s.log.Warn().Uint64("slot", r.slot).Err(r.err).Msg("slot skipped")

		default:
			queue.Push(r.slot)
			report.Requeued++
			failures = multierr.Append(failures, r.err)
			s.metrics.SlotFetched(metrics.OutcomeRequeued, r.latency)
		}
	}

	if failures != nil {
		s.log.Warn().
			Int("requeued", report.Requeued).
			Err(failures).
			Msg("requeued failed slots")
	}

	if mean, err := stats.Mean(latencies); err == nil {
		report.MeanLatency = time.Duration(mean)
	}
	if p99, err := stats.Percentile(latencies, 99); err == nil {
		report.P99Latency = time.Duration(p99)
	}
}

func (s *Scheduler) logBlock(r types.BlockRecord) {
	if e := s.log.Debug(); e.Enabled() {
		e = e.Uint64("slot", r.Slot).
			Stringer("blockhash", r.Blockhash).
			Uint64("height", r.Height)
		if r.TxCount != nil {
			e = e.Uint64("txs", *r.TxCount)
		}
		if r.ParentSlot != nil {
			e = e.Uint64("parent", *r.ParentSlot)
		}
		e.Msg("indexed block")
	}
}
