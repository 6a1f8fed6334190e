package workers_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/atlas-desktop/risk-sim/internal/workers"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduler(batchSize, maxWorkers int) *workers.Scheduler {
	cfg := workers.DefaultSchedulerConfig("test")
	cfg.BatchSize = batchSize
	cfg.MaxWorkers = maxWorkers
	return workers.NewScheduler(zap.NewNop(), cfg)
}

// indexWorker returns each simulation index as its value.
func indexWorker(int) workers.BatchFunc {
	return func(ctx context.Context, b workers.Batch) ([]float64, error) {
		values := make([]float64, 0, b.Size())
		for i := b.Start; i < b.End; i++ {
			values = append(values, float64(i))
		}
		return values, nil
	}
}

func TestTotalBatchesAndPoolSize(t *testing.T) {
	assert.Equal(t, 0, workers.TotalBatches(0, 10))
	assert.Equal(t, 1, workers.TotalBatches(10, 10))
	assert.Equal(t, 2, workers.TotalBatches(11, 10))
	assert.Equal(t, 50, workers.TotalBatches(1_000_000, 20000))

	assert.Equal(t, 1, workers.PoolSize(5, 20000, 8))
	assert.Equal(t, 3, workers.PoolSize(50000, 20000, 8))
	assert.Equal(t, 8, workers.PoolSize(10_000_000, 20000, 64))
	assert.Equal(t, 1, workers.PoolSize(10_000_000, 20000, 0))
	assert.Equal(t, 0, workers.PoolSize(0, 20000, 4))

	c := workers.DefaultConcurrency()
	assert.GreaterOrEqual(t, c, 1)
	assert.LessOrEqual(t, c, workers.MaxConcurrency)
}

func TestCursorPartitionsRangeExactlyOnce(t *testing.T) {
	for _, tc := range []struct{ total, batch, claimers int }{
		{1, 1, 1},
		{7, 3, 4},
		{100, 10, 8},
		{100_003, 997, 8},
		{20000, 20000, 3},
	} {
		cursor := workers.NewCursor(tc.total, tc.batch)
		seen := make([]int32, tc.total)
		var mu sync.Mutex
		var batches []workers.Batch

		var wg sync.WaitGroup
		for i := 0; i < tc.claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					b, ok := cursor.Claim()
					if !ok {
						return
					}
					mu.Lock()
					batches = append(batches, b)
					for j := b.Start; j < b.End; j++ {
						seen[j]++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		for idx, n := range seen {
			require.Equal(t, int32(1), n, "index %d claimed %d times (total=%d)", idx, n, tc.total)
		}
		assert.Len(t, batches, cursor.TotalBatches())
		for _, b := range batches {
			assert.LessOrEqual(t, b.Size(), tc.batch)
			assert.Greater(t, b.Size(), 0)
		}
	}
}

func TestRunFeedsEveryValueOnce(t *testing.T) {
	sched := newScheduler(97, 4)
	total := 10_000

	seen := make([]int, total)
	var progress []types.Progress
	err := sched.Run(context.Background(), total, indexWorker, func(b workers.Batch, values []float64) error {
		for _, v := range values {
			seen[int(v)]++
		}
		return nil
	}, func(p types.Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	for i, n := range seen {
		require.Equal(t, 1, n, "value %d", i)
	}

	totalBatches := workers.TotalBatches(total, 97)
	require.Len(t, progress, totalBatches)
	for i, p := range progress {
		assert.Equal(t, i+1, p.CompletedBatches)
		assert.Equal(t, totalBatches, p.TotalBatches)
	}

	stats := sched.Stats()
	assert.Equal(t, int64(totalBatches), stats.BatchesCompleted)
	assert.Equal(t, int64(total), stats.ValuesAggregated)
}

func TestRunZeroSimulations(t *testing.T) {
	sched := newScheduler(10, 2)
	called := false
	err := sched.Run(context.Background(), 0, indexWorker, func(workers.Batch, []float64) error {
		called = true
		return nil
	}, nil)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestWorkerClaimsOnlyAfterItsBatchIsAggregated(t *testing.T) {
	sched := newScheduler(5, 4)

	var mu sync.Mutex
	pending := map[int]int{} // worker -> batch index awaiting aggregation
	aggregated := map[int]bool{}
	var violations int

	factory := func(id int) workers.BatchFunc {
		return func(ctx context.Context, b workers.Batch) ([]float64, error) {
			mu.Lock()
			if prev, ok := pending[id]; ok && !aggregated[prev] {
				violations++
			}
			pending[id] = b.Index
			mu.Unlock()
			return make([]float64, b.Size()), nil
		}
	}

	err := sched.Run(context.Background(), 500, factory, func(b workers.Batch, _ []float64) error {
		mu.Lock()
		aggregated[b.Index] = true
		mu.Unlock()
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, violations)
	assert.Len(t, aggregated, 100)
}

func TestRunAbortsOnMalformedResult(t *testing.T) {
	sched := newScheduler(10, 4)
	factory := func(id int) workers.BatchFunc {
		return func(ctx context.Context, b workers.Batch) ([]float64, error) {
			if b.Index == 3 {
				return []float64{1, 2}, nil
			}
			return make([]float64, b.Size()), nil
		}
	}

	err := sched.Run(context.Background(), 1000, factory, func(workers.Batch, []float64) error { return nil }, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, workers.ErrMalformedResult)

	var bErr *workers.BatchError
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, workers.FaultMalformedResult, bErr.Kind)
	assert.Equal(t, 3, bErr.Batch.Index)
}

func TestRunRejectsNegativeValues(t *testing.T) {
	sched := newScheduler(4, 1)
	factory := func(int) workers.BatchFunc {
		return func(ctx context.Context, b workers.Batch) ([]float64, error) {
			values := make([]float64, b.Size())
			values[0] = -1
			return values, nil
		}
	}
	err := sched.Run(context.Background(), 4, factory, func(workers.Batch, []float64) error { return nil }, nil)
	assert.ErrorIs(t, err, workers.ErrMalformedResult)
}

func TestRunRecoversWorkerPanic(t *testing.T) {
	sched := newScheduler(10, 3)
	factory := func(int) workers.BatchFunc {
		return func(ctx context.Context, b workers.Batch) ([]float64, error) {
			if b.Index == 1 {
				panic("boom")
			}
			return make([]float64, b.Size()), nil
		}
	}

	err := sched.Run(context.Background(), 100, factory, func(workers.Batch, []float64) error { return nil }, nil)
	require.Error(t, err)

	var bErr *workers.BatchError
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, workers.FaultRuntime, bErr.Kind)

	var pErr *workers.PanicError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "boom", pErr.Recovered)
	assert.Equal(t, int64(1), sched.Stats().PanicRecovered)
}

func TestRunPropagatesWorkerError(t *testing.T) {
	sched := newScheduler(10, 2)
	boom := errors.New("generator failed")
	factory := func(int) workers.BatchFunc {
		return func(ctx context.Context, b workers.Batch) ([]float64, error) {
			return nil, boom
		}
	}
	err := sched.Run(context.Background(), 100, factory, func(workers.Batch, []float64) error { return nil }, nil)
	assert.ErrorIs(t, err, boom)
}

func TestRunPropagatesSinkError(t *testing.T) {
	sched := newScheduler(10, 2)
	full := errors.New("sink closed")
	err := sched.Run(context.Background(), 100, indexWorker, func(workers.Batch, []float64) error {
		return full
	}, nil)
	assert.ErrorIs(t, err, full)
}

func TestRunHonoursCancellation(t *testing.T) {
	sched := newScheduler(10, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sched.Run(ctx, 1000, indexWorker, func(workers.Batch, []float64) error { return nil }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
