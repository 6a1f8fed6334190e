// Package workers provides bounded-concurrency batch execution.
// A fixed pool of workers pulls contiguous batches from a shared cursor and
// hands each result to a single coordinator goroutine, which applies them one
// at a time.
package workers

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/risk-sim/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is the number of simulations claimed per batch.
	DefaultBatchSize = 20000
	// MaxConcurrency caps the worker pool regardless of hardware.
	MaxConcurrency = 8
)

// BatchFunc computes one value per index in the batch.
type BatchFunc func(ctx context.Context, b Batch) ([]float64, error)

// WorkerFactory builds the batch function owned by a single worker. It is
// called once per worker so each can hold private state such as an RNG.
type WorkerFactory func(workerID int) BatchFunc

// Sink receives every batch result on the coordinator goroutine. Calls are
// never concurrent.
type Sink func(b Batch, values []float64) error

// SchedulerConfig configures the scheduler
type SchedulerConfig struct {
	Name          string // Pool name for logging
	BatchSize     int    // Simulations per batch
	MaxWorkers    int    // 0 derives from hardware parallelism
	PanicRecovery bool   // Convert worker panics into errors
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig(name string) *SchedulerConfig {
	return &SchedulerConfig{
		Name:          name,
		BatchSize:     DefaultBatchSize,
		MaxWorkers:    0,
		PanicRecovery: true,
	}
}

// DefaultConcurrency returns the hardware parallelism clamped to [1, MaxConcurrency].
func DefaultConcurrency() int {
	return clampConcurrency(runtime.NumCPU())
}

func clampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// TotalBatches returns ceil(total / batchSize).
func TotalBatches(total, batchSize int) int {
	if total <= 0 || batchSize <= 0 {
		return 0
	}
	return (total + batchSize - 1) / batchSize
}

// PoolSize returns min(concurrency, TotalBatches(total, batchSize)).
func PoolSize(total, batchSize, concurrency int) int {
	batches := TotalBatches(total, batchSize)
	c := clampConcurrency(concurrency)
	if batches < c {
		return batches
	}
	return c
}

// SchedulerMetrics tracks scheduler activity across runs
type SchedulerMetrics struct {
	BatchesClaimed   atomic.Int64
	BatchesCompleted atomic.Int64
	BatchesFailed    atomic.Int64
	PanicRecovered   atomic.Int64
	ValuesAggregated atomic.Int64
}

// SchedulerStats is a snapshot of SchedulerMetrics
type SchedulerStats struct {
	BatchesClaimed   int64 `json:"batches_claimed"`
	BatchesCompleted int64 `json:"batches_completed"`
	BatchesFailed    int64 `json:"batches_failed"`
	PanicRecovered   int64 `json:"panic_recovered"`
	ValuesAggregated int64 `json:"values_aggregated"`
}

// Snapshot returns current metrics
func (m *SchedulerMetrics) Snapshot() SchedulerStats {
	return SchedulerStats{
		BatchesClaimed:   m.BatchesClaimed.Load(),
		BatchesCompleted: m.BatchesCompleted.Load(),
		BatchesFailed:    m.BatchesFailed.Load(),
		PanicRecovered:   m.PanicRecovered.Load(),
		ValuesAggregated: m.ValuesAggregated.Load(),
	}
}

// Scheduler partitions a simulation count into batches and runs them on a
// bounded worker pool.
type Scheduler struct {
	logger  *zap.Logger
	config  *SchedulerConfig
	metrics *SchedulerMetrics
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *zap.Logger, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig("default")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		logger:  logger,
		config:  config,
		metrics: &SchedulerMetrics{},
	}
}

// Concurrency returns the worker limit used for a run.
func (s *Scheduler) Concurrency() int {
	if s.config.MaxWorkers > 0 {
		return clampConcurrency(s.config.MaxWorkers)
	}
	return DefaultConcurrency()
}

// BatchSize returns the configured batch size.
func (s *Scheduler) BatchSize() int {
	return s.config.BatchSize
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() SchedulerStats {
	return s.metrics.Snapshot()
}

// batchResult travels from a worker to the coordinator. The worker blocks on
// ack until the coordinator has applied the values.
type batchResult struct {
	workerID int
	batch    Batch
	values   []float64
	ack      chan struct{}
}

// Run executes total simulations. Every value produced reaches sink exactly
// once, on a single goroutine. The first failure cancels every worker and is
// returned; no partial result is reported as success.
func (s *Scheduler) Run(ctx context.Context, total int, newWorker WorkerFactory, sink Sink, onProgress func(types.Progress)) error {
	totalBatches := TotalBatches(total, s.config.BatchSize)
	if totalBatches == 0 {
		if onProgress != nil {
			onProgress(types.Progress{})
		}
		return nil
	}

	cursor := NewCursor(total, s.config.BatchSize)
	poolSize := PoolSize(total, s.config.BatchSize, s.Concurrency())
	startTime := time.Now()

	s.logger.Info("starting batch scheduler",
		zap.String("name", s.config.Name),
		zap.Int("simulations", total),
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("total_batches", totalBatches),
		zap.Int("workers", poolSize),
	)

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan batchResult)

	for id := 0; id < poolSize; id++ {
		w := &worker{
			id:     id,
			sched:  s,
			run:    newWorker(id),
			logger: s.logger.With(zap.Int("worker_id", id)),
		}
		g.Go(func() error { return w.loop(gctx, cursor, results) })
	}

	g.Go(func() error {
		completed := 0
		for completed < totalBatches {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case res := <-results:
				if err := validateResult(res); err != nil {
					s.metrics.BatchesFailed.Add(1)
					return err
				}
				if err := sink(res.batch, res.values); err != nil {
					return fmt.Errorf("aggregate batch %d: %w", res.batch.Index, err)
				}
				completed++
				s.metrics.BatchesCompleted.Add(1)
				s.metrics.ValuesAggregated.Add(int64(len(res.values)))
				close(res.ack)

				if onProgress != nil {
					onProgress(types.Progress{CompletedBatches: completed, TotalBatches: totalBatches})
				}
				s.logger.Debug("batch aggregated",
					zap.Int("worker_id", res.workerID),
					zap.Int("batch", res.batch.Index),
					zap.Int("completed", completed),
					zap.Int("total", totalBatches),
				)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("batch scheduler aborted",
			zap.String("name", s.config.Name),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("batch scheduler complete",
		zap.String("name", s.config.Name),
		zap.Int("total_batches", totalBatches),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return nil
}

// validateResult rejects results that do not carry one finite, non-negative
// value per index of the batch.
func validateResult(res batchResult) error {
	if len(res.values) != res.batch.Size() {
		return &BatchError{
			WorkerID: res.workerID,
			Batch:    res.batch,
			Kind:     FaultMalformedResult,
			Err:      fmt.Errorf("%w: got %d values, want %d", ErrMalformedResult, len(res.values), res.batch.Size()),
		}
	}
	for i, v := range res.values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return &BatchError{
				WorkerID: res.workerID,
				Batch:    res.batch,
				Kind:     FaultMalformedResult,
				Err:      fmt.Errorf("%w: value %v at offset %d", ErrMalformedResult, v, i),
			}
		}
	}
	return nil
}

// worker pulls batches until the cursor is exhausted
type worker struct {
	id     int
	sched  *Scheduler
	run    BatchFunc
	logger *zap.Logger
}

func (w *worker) loop(ctx context.Context, cursor *Cursor, results chan<- batchResult) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, ok := cursor.Claim()
		if !ok {
			w.logger.Debug("worker retired")
			return nil
		}
		w.sched.metrics.BatchesClaimed.Add(1)

		values, err := w.execute(ctx, b)
		if err != nil {
			w.sched.metrics.BatchesFailed.Add(1)
			return err
		}

		ack := make(chan struct{})
		select {
		case results <- batchResult{workerID: w.id, batch: b, values: values, ack: ack}:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-ack:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// execute runs one batch with panic recovery
func (w *worker) execute(ctx context.Context, b Batch) (values []float64, err error) {
	if w.sched.config.PanicRecovery {
		defer func() {
			if r := recover(); r != nil {
				w.sched.metrics.PanicRecovered.Add(1)
				w.logger.Error("worker recovered from panic",
					zap.Int("batch", b.Index),
					zap.Any("panic", r),
				)
				values = nil
				err = &BatchError{WorkerID: w.id, Batch: b, Kind: FaultRuntime, Err: &PanicError{Recovered: r}}
			}
		}()
	}

	values, err = w.run(ctx, b)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &BatchError{WorkerID: w.id, Batch: b, Kind: FaultRuntime, Err: err}
	}
	return values, nil
}

// Cursor hands out contiguous batches over [0, total) exactly once each.
type Cursor struct {
	mu        sync.Mutex
	next      int
	index     int
	total     int
	batchSize int
}

// NewCursor creates a cursor over [0, total)
func NewCursor(total, batchSize int) *Cursor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Cursor{total: total, batchSize: batchSize}
}

// Claim returns the next unclaimed batch, or false once the range is exhausted.
func (c *Cursor) Claim() (Batch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next >= c.total {
		return Batch{}, false
	}
	end := c.next + c.batchSize
	if end > c.total {
		end = c.total
	}
	b := Batch{Index: c.index, Start: c.next, End: end}
	c.next = end
	c.index++
	return b, true
}

// TotalBatches returns the number of batches the cursor will hand out.
func (c *Cursor) TotalBatches() int {
	return TotalBatches(c.total, c.batchSize)
}

// Batch is a contiguous range [Start, End) of simulation indices.
type Batch struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Size returns the number of simulations in the batch.
func (b Batch) Size() int { return b.End - b.Start }
