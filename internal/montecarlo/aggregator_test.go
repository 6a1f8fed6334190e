package montecarlo_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/atlas-desktop/risk-sim/internal/montecarlo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorEmpty(t *testing.T) {
	agg := montecarlo.NewAggregator(10, nil)
	stats := agg.Statistics()
	assert.Equal(t, montecarlo.Statistics{}, stats)
}

func TestAggregatorExactStatsAndPercentiles(t *testing.T) {
	agg := montecarlo.NewAggregator(100, nil)
	// 1..20 in scrambled order
	values := []float64{7, 3, 19, 1, 12, 20, 5, 14, 9, 2, 16, 11, 4, 18, 8, 13, 6, 17, 10, 15}
	agg.ObserveBatch(values)

	stats := agg.Statistics()
	assert.Equal(t, int64(20), stats.Count)
	assert.Equal(t, 10.5, stats.Mean)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 20.0, stats.Max)

	// sorted[floor(20*p)]
	assert.Equal(t, 3.0, stats.P10)
	assert.Equal(t, 6.0, stats.P25)
	assert.Equal(t, 11.0, stats.Median)
	assert.Equal(t, 16.0, stats.P75)
	assert.Equal(t, 19.0, stats.P90)
	assert.InDelta(t, 5.916, stats.StdDev, 0.001)
}

func TestAggregatorSingleValue(t *testing.T) {
	agg := montecarlo.NewAggregator(5, nil)
	agg.Observe(42)
	stats := agg.Statistics()
	assert.Equal(t, 42.0, stats.Mean)
	assert.Equal(t, 42.0, stats.Min)
	assert.Equal(t, 42.0, stats.Max)
	assert.Equal(t, 42.0, stats.Median)
	assert.Equal(t, 0.0, stats.StdDev)
}

func TestAggregatorReservoirBounded(t *testing.T) {
	const capacity = 500
	agg := montecarlo.NewAggregator(capacity, rand.New(rand.NewSource(7)))
	observed := make(map[float64]bool)

	for i := 0; i < 20000; i++ {
		v := float64(i)
		observed[v] = true
		agg.Observe(v)
		require.LessOrEqual(t, len(agg.Reservoir()), capacity)
	}

	res := agg.Reservoir()
	assert.Len(t, res, capacity)
	for _, v := range res {
		assert.True(t, observed[v], "reservoir holds unobserved value %v", v)
	}

	// Exact extremes are independent of the sample.
	stats := agg.Statistics()
	assert.Equal(t, 0.0, stats.Min)
	assert.Equal(t, 19999.0, stats.Max)
	assert.InDelta(t, 9999.5, stats.Mean, 1e-9)
}

func TestAggregatorOrderingLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 25; trial++ {
		agg := montecarlo.NewAggregator(64, nil)
		n := 1 + rng.Intn(400)
		for i := 0; i < n; i++ {
			agg.Observe(rng.ExpFloat64() * 1000)
		}
		s := agg.Statistics()
		ordered := []float64{s.Min, s.P10, s.P25, s.Median, s.P75, s.P90, s.Max}
		assert.True(t, sort.Float64sAreSorted(ordered), "trial %d: %v", trial, ordered)
	}
}

func TestAggregatorReservoirIsRoughlyUniform(t *testing.T) {
	// The sample median of 0..N-1 should sit near N/2.
	const n = 200000
	agg := montecarlo.NewAggregator(5000, rand.New(rand.NewSource(3)))
	for i := 0; i < n; i++ {
		agg.Observe(float64(i))
	}
	stats := agg.Statistics()
	assert.InDelta(t, n/2, stats.Median, n*0.05)
	assert.InDelta(t, n/10, stats.P10, n*0.05)
	assert.InDelta(t, n*9/10, stats.P90, n*0.05)
}

func TestAggregatorZeroCapacity(t *testing.T) {
	agg := montecarlo.NewAggregator(0, nil)
	agg.ObserveBatch([]float64{3, 1, 2})
	stats := agg.Statistics()
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, 2.0, stats.Mean)
	assert.Empty(t, agg.Reservoir())
}
