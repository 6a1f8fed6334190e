package montecarlo

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultReservoirCapacity bounds the percentile sample.
const DefaultReservoirCapacity = 20000

// Percentile levels reported by Statistics.
var percentileLevels = []float64{0.10, 0.25, 0.50, 0.75, 0.90}

// Aggregator consumes final capitals one at a time. Count, sum, min and max
// are exact; percentiles come from a fixed-capacity uniform reservoir sample
// (Algorithm R). Observe must not be called concurrently.
type Aggregator struct {
	capacity  int
	count     int64
	sum       float64
	min       float64
	max       float64
	reservoir []float64
	rng       *rand.Rand
}

// NewAggregator creates an aggregator whose reservoir holds at most capacity
// values. A nil rng uses a time-based source.
func NewAggregator(capacity int, rng *rand.Rand) *Aggregator {
	if capacity < 0 {
		capacity = 0
	}
	if rng == nil {
		rng = newRand(-1)
	}
	return &Aggregator{
		capacity:  capacity,
		reservoir: make([]float64, 0, capacity),
		rng:       rng,
	}
}

// Observe folds one value into the running statistics and the reservoir.
func (a *Aggregator) Observe(v float64) {
	a.sum += v
	a.count++
	if a.count == 1 || v < a.min {
		a.min = v
	}
	if a.count == 1 || v > a.max {
		a.max = v
	}

	if len(a.reservoir) < a.capacity {
		a.reservoir = append(a.reservoir, v)
		return
	}
	if a.capacity == 0 {
		return
	}
	if j := a.rng.Int63n(a.count); j < int64(a.capacity) {
		a.reservoir[j] = v
	}
}

// ObserveBatch observes every value in order.
func (a *Aggregator) ObserveBatch(values []float64) {
	for _, v := range values {
		a.Observe(v)
	}
}

// Count returns the number of observed values.
func (a *Aggregator) Count() int64 { return a.count }

// Capacity returns the reservoir capacity.
func (a *Aggregator) Capacity() int { return a.capacity }

// Reservoir returns a copy of the current sample.
func (a *Aggregator) Reservoir() []float64 {
	out := make([]float64, len(a.reservoir))
	copy(out, a.reservoir)
	return out
}

// Statistics is the finalized view of an Aggregator.
type Statistics struct {
	Count  int64
	Mean   float64
	Min    float64
	Max    float64
	P10    float64
	P25    float64
	Median float64
	P75    float64
	P90    float64
	StdDev float64 // estimated from the reservoir
}

// Statistics computes the summary. The aggregator can keep observing
// afterwards.
func (a *Aggregator) Statistics() Statistics {
	s := Statistics{Count: a.count}
	if a.count == 0 {
		return s
	}
	s.Mean = a.sum / float64(a.count)
	s.Min = a.min
	s.Max = a.max

	sorted := a.Reservoir()
	sort.Float64s(sorted)
	if len(sorted) == 0 {
		return s
	}

	ps := make([]float64, len(percentileLevels))
	for i, p := range percentileLevels {
		ps[i] = percentile(sorted, p)
	}
	s.P10, s.P25, s.Median, s.P75, s.P90 = ps[0], ps[1], ps[2], ps[3], ps[4]

	if len(sorted) > 1 {
		if sd := stat.StdDev(sorted, nil); !math.IsNaN(sd) {
			s.StdDev = sd
		}
	}
	return s
}

// percentile returns sorted[floor(len*p)] for p in [0, 1).
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
