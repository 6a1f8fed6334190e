// Package montecarlo provides randomized simulation of fixed-fractional
// repeated-bet strategies.
// A pooled run streams final capitals from the worker pool into a single
// aggregator; a separate, smaller job samples full trajectories for charting.
package montecarlo

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/workers"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"go.uber.org/zap"
)

// Run outcomes passed to Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Recorder receives simulation telemetry.
type Recorder interface {
	RunStarted()
	RunFinished(outcome string, elapsed time.Duration)
	BatchAggregated(simulations int)
	ChartSampled(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted()                        {}
func (nopRecorder) RunFinished(string, time.Duration)  {}
func (nopRecorder) BatchAggregated(int)                {}
func (nopRecorder) ChartSampled(string, time.Duration) {}

// Simulator performs Monte Carlo simulations
type Simulator struct {
	logger    *zap.Logger
	config    *SimulatorConfig
	scheduler *workers.Scheduler
	recorder  Recorder

	// newWorkers builds the pooled batch workers for one run.
	newWorkers func(params types.StrategyParams) workers.WorkerFactory
	// samplePaths generates the trajectories a chart is drawn from.
	samplePaths func(ctx context.Context, params types.StrategyParams, n int) ([]types.Path, error)
}

// SimulatorConfig configures the simulator
type SimulatorConfig struct {
	BatchSize         int // Simulations claimed per batch
	MaxWorkers        int // Pool limit, 0 for hardware parallelism (max 8)
	ReservoirCapacity int // Percentile sample size
	ChartSamples      int // Paths generated for the chart sample
}

// DefaultSimulatorConfig returns sensible defaults
func DefaultSimulatorConfig() *SimulatorConfig {
	return &SimulatorConfig{
		BatchSize:         workers.DefaultBatchSize,
		MaxWorkers:        0,
		ReservoirCapacity: DefaultReservoirCapacity,
		ChartSamples:      DefaultChartSamples,
	}
}

// NewSimulator creates a new Monte Carlo simulator. recorder may be nil.
func NewSimulator(logger *zap.Logger, config *SimulatorConfig, recorder Recorder) *Simulator {
	if config == nil {
		config = DefaultSimulatorConfig()
	}
	if config.ReservoirCapacity <= 0 {
		config.ReservoirCapacity = DefaultReservoirCapacity
	}
	if config.ChartSamples <= 0 {
		config.ChartSamples = DefaultChartSamples
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	schedCfg := workers.DefaultSchedulerConfig("montecarlo")
	schedCfg.BatchSize = config.BatchSize
	schedCfg.MaxWorkers = config.MaxWorkers

	return &Simulator{
		logger:      logger,
		config:      config,
		scheduler:   workers.NewScheduler(logger, schedCfg),
		recorder:    recorder,
		newWorkers:  finalCapitalWorkers,
		samplePaths: chartPaths,
	}
}

// chartPaths draws n trajectories from a generator separate from the pool.
func chartPaths(ctx context.Context, params types.StrategyParams, n int) ([]types.Path, error) {
	return NewGenerator(params, newRand(-2)).Paths(ctx, n)
}

// finalCapitalWorkers gives every worker its own generator and RNG.
func finalCapitalWorkers(params types.StrategyParams) workers.WorkerFactory {
	return func(workerID int) workers.BatchFunc {
		gen := NewGenerator(params, newRand(int64(workerID+1)))
		return func(ctx context.Context, b workers.Batch) ([]float64, error) {
			return gen.Finals(ctx, b.Size())
		}
	}
}

// TotalBatches returns the number of batches a run of total simulations uses.
func (s *Simulator) TotalBatches(total int) int {
	return workers.TotalBatches(total, s.scheduler.BatchSize())
}

// ChartSampleSize returns min(ChartSamples, total).
func (s *Simulator) ChartSampleSize(total int) int {
	if total < s.config.ChartSamples {
		return total
	}
	return s.config.ChartSamples
}

// RunSimulation runs total simulations on the worker pool and summarizes the
// final capitals. onProgress, if set, is called after every aggregated batch.
// Any worker failure aborts the run and no summary is returned.
func (s *Simulator) RunSimulation(ctx context.Context, params types.StrategyParams, total int, onProgress func(types.Progress)) (*types.Summary, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if total < 0 {
		return nil, fmt.Errorf("simulation count must be >= 0, got %d", total)
	}

	capacity := s.config.ReservoirCapacity
	if total < capacity {
		capacity = total
	}
	agg := NewAggregator(capacity, nil)

	s.logger.Info("starting Monte Carlo simulation",
		zap.Int("num_simulations", total),
		zap.Int("reservoir_capacity", capacity),
		zap.String("compounding", string(params.Frequency())),
	)
	s.recorder.RunStarted()
	startTime := time.Now()

	sink := func(_ workers.Batch, values []float64) error {
		agg.ObserveBatch(values)
		s.recorder.BatchAggregated(len(values))
		return nil
	}

	if err := s.scheduler.Run(ctx, total, s.newWorkers(params), sink, onProgress); err != nil {
		simErr := classifyRunError(err)
		outcome := OutcomeFailed
		if KindOf(simErr) == KindCancelled {
			outcome = OutcomeCancelled
		}
		s.recorder.RunFinished(outcome, time.Since(startTime))
		s.logger.Error("Monte Carlo simulation aborted", zap.Error(simErr))
		return nil, simErr
	}

	stats := agg.Statistics()
	allWins, allLosses := Extremes(params)

	summary := &types.Summary{
		Simulations:      int(stats.Count),
		Mean:             stats.Mean,
		Median:           stats.Median,
		P10:              stats.P10,
		P25:              stats.P25,
		P75:              stats.P75,
		P90:              stats.P90,
		Worst:            stats.Min,
		Best:             stats.Max,
		StdDevEstimate:   stats.StdDev,
		AllWinsCapital:   allWins,
		AllLossesCapital: allLosses,
	}

	s.recorder.RunFinished(OutcomeCompleted, time.Since(startTime))
	s.logger.Info("Monte Carlo simulation complete",
		zap.Int("num_simulations", summary.Simulations),
		zap.Float64("mean", summary.Mean),
		zap.Float64("median", summary.Median),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return summary, nil
}

// SampleChartPaths generates min(ChartSamples, sims) fresh trajectories and
// returns the worst, quartile, median and best paths as chart points. The
// sample is independent of any pooled run, so its series need not agree with
// a summary's percentiles.
func (s *Simulator) SampleChartPaths(ctx context.Context, params types.StrategyParams, sims int) (points []types.ChartPoint, err error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	n := s.ChartSampleSize(sims)
	if n <= 0 {
		return []types.ChartPoint{}, nil
	}

	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil {
			points = nil
			err = &SimulationError{Kind: KindChartSamplingFailure, Err: &workers.PanicError{Recovered: r}}
		}
		outcome := OutcomeCompleted
		if err != nil {
			outcome = OutcomeFailed
			s.logger.Warn("chart sampling failed", zap.Error(err))
		}
		s.recorder.ChartSampled(outcome, time.Since(startTime))
	}()

	paths, err := s.samplePaths(ctx, params, n)
	if err != nil {
		return nil, &SimulationError{Kind: KindChartSamplingFailure, Err: err}
	}

	selected := SelectRepresentative(paths)
	if len(selected) != len(types.ChartSeries) {
		return nil, &SimulationError{
			Kind: KindChartSamplingFailure,
			Err:  fmt.Errorf("selected %d paths, want %d", len(selected), len(types.ChartSeries)),
		}
	}

	s.logger.Debug("chart paths sampled",
		zap.Int("paths", n),
		zap.Float64("worst_final", selected[0].Final()),
		zap.Float64("best_final", selected[len(selected)-1].Final()),
	)
	return BuildChart(selected, params.TimeMonths), nil
}

// Run performs the pooled simulation and the chart sample concurrently. A
// pooled failure fails the whole call; a chart failure only sets ChartError.
func (s *Simulator) Run(ctx context.Context, params types.StrategyParams, total int, onProgress func(types.Progress)) (*types.SimulationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	type chartOutcome struct {
		points []types.ChartPoint
		err    error
	}
	chartCh := make(chan chartOutcome, 1)
	go func() {
		points, err := s.SampleChartPaths(ctx, params, total)
		chartCh <- chartOutcome{points: points, err: err}
	}()

	summary, err := s.RunSimulation(ctx, params, total, onProgress)
	chart := <-chartCh
	if err != nil {
		return nil, err
	}

	result := &types.SimulationResult{Summary: summary}
	if chart.err != nil {
		result.ChartError = chart.err.Error()
	} else {
		result.Chart = chart.points
	}
	return result, nil
}
