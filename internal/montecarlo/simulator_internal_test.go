package montecarlo

import (
	"context"
	"errors"
	"testing"

	"github.com/atlas-desktop/risk-sim/internal/workers"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testParams() types.StrategyParams {
	return types.StrategyParams{
		InitialCapital:  10000,
		RiskPercentage:  2,
		RiskRewardRatio: 2,
		WinRate:         50,
		TradesPerMonth:  4,
		TimeMonths:      6,
		RiskCapDollars:  500,
	}
}

func injectWorkers(sim *Simulator, fn func(b workers.Batch) ([]float64, error)) {
	sim.newWorkers = func(types.StrategyParams) workers.WorkerFactory {
		return func(int) workers.BatchFunc {
			return func(ctx context.Context, b workers.Batch) ([]float64, error) {
				return fn(b)
			}
		}
	}
}

func newTestSimulator() *Simulator {
	return NewSimulator(zap.NewNop(), &SimulatorConfig{BatchSize: 100, MaxWorkers: 4}, nil)
}

func TestMalformedBatchAbortsRun(t *testing.T) {
	sim := newTestSimulator()
	injectWorkers(sim, func(b workers.Batch) ([]float64, error) {
		if b.Index == 2 {
			return make([]float64, b.Size()-1), nil
		}
		return make([]float64, b.Size()), nil
	})

	summary, err := sim.RunSimulation(context.Background(), testParams(), 1000, nil)
	assert.Nil(t, summary)
	require.Error(t, err)
	assert.Equal(t, KindMalformedWorkerResult, KindOf(err))
	assert.ErrorIs(t, err, workers.ErrMalformedResult)
	assert.Contains(t, err.Error(), "malformed result")
}

func TestWorkerFaultAbortsRun(t *testing.T) {
	sim := newTestSimulator()
	fault := errors.New("out of memory")
	injectWorkers(sim, func(b workers.Batch) ([]float64, error) {
		return nil, fault
	})

	summary, err := sim.RunSimulation(context.Background(), testParams(), 1000, nil)
	assert.Nil(t, summary)
	assert.Equal(t, KindWorkerRuntimeFault, KindOf(err))
	assert.ErrorIs(t, err, fault)
}

func TestWorkerPanicAbortsRun(t *testing.T) {
	sim := newTestSimulator()
	injectWorkers(sim, func(b workers.Batch) ([]float64, error) {
		var values []float64
		values[b.Size()] = 1 // index out of range
		return values, nil
	})

	_, err := sim.RunSimulation(context.Background(), testParams(), 1000, nil)
	assert.Equal(t, KindWorkerRuntimeFault, KindOf(err))
	var pErr *workers.PanicError
	assert.ErrorAs(t, err, &pErr)
}

func TestRunFailsWholeResultOnPoolFailure(t *testing.T) {
	sim := newTestSimulator()
	injectWorkers(sim, func(b workers.Batch) ([]float64, error) {
		return []float64{}, nil
	})

	result, err := sim.Run(context.Background(), testParams(), 500, nil)
	assert.Nil(t, result)
	require.Error(t, err)

	var simErr *SimulationError
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, KindMalformedWorkerResult, simErr.Kind)
}

func TestSimulationErrorMessage(t *testing.T) {
	err := &SimulationError{Kind: KindChartSamplingFailure}
	assert.Equal(t, "chart sampling failed", err.Error())

	err = &SimulationError{Kind: KindWorkerRuntimeFault, Err: errors.New("x")}
	assert.Equal(t, "simulation aborted: a worker failed: x", err.Error())
}

func TestRunKeepsSummaryWhenChartFails(t *testing.T) {
	tests := []struct {
		name   string
		sample func(ctx context.Context, p types.StrategyParams, n int) ([]types.Path, error)
	}{
		{
			name: "no paths selected",
			sample: func(context.Context, types.StrategyParams, int) ([]types.Path, error) {
				return nil, nil
			},
		},
		{
			name: "generator error",
			sample: func(context.Context, types.StrategyParams, int) ([]types.Path, error) {
				return nil, errors.New("generator exhausted")
			},
		},
		{
			name: "generator panic",
			sample: func(context.Context, types.StrategyParams, int) ([]types.Path, error) {
				panic("corrupt path")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSimulator()
			sim.samplePaths = tt.sample

			result, err := sim.Run(context.Background(), testParams(), 500, nil)
			require.NoError(t, err)
			require.NotNil(t, result)
			require.NotNil(t, result.Summary)
			assert.Equal(t, 500, result.Summary.Simulations)
			assert.Nil(t, result.Chart)
			assert.Contains(t, result.ChartError, "chart sampling failed")
		})
	}
}

func TestSampleChartPathsReportsKind(t *testing.T) {
	sim := newTestSimulator()
	sim.samplePaths = func(context.Context, types.StrategyParams, int) ([]types.Path, error) {
		return []types.Path{}, nil
	}

	points, err := sim.SampleChartPaths(context.Background(), testParams(), 500)
	assert.Nil(t, points)
	assert.Equal(t, KindChartSamplingFailure, KindOf(err))
}
