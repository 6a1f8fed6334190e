package montecarlo

import (
	"context"
	"math/rand"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/sizing"
	"github.com/atlas-desktop/risk-sim/pkg/types"
)

// ctxCheckEvery is how many paths are generated between cancellation checks.
const ctxCheckEvery = 256

// simulate walks one trajectory. win decides each trade; record, when not
// nil, receives the capital at month 0 and at the end of every month.
func simulate(p types.StrategyParams, win func() bool, record func(month int, capital float64)) float64 {
	capital := p.InitialCapital
	if record != nil {
		record(0, capital)
	}

	rule := sizing.FromParams(p)
	risk, reward := rule.Size(capital)
	interval := p.Frequency().IntervalMonths()

	for month := 1; month <= p.TimeMonths; month++ {
		for trade := 0; trade < p.TradesPerMonth; trade++ {
			if win() {
				capital += reward
			} else {
				capital -= risk
			}
			if capital < 0 {
				capital = 0
			}
			if interval == 0 {
				risk, reward = rule.Size(capital)
			}
		}

		if interval > 0 && month%interval == 0 {
			risk, reward = rule.Size(capital)
		}
		if record != nil {
			record(month, capital)
		}
	}

	return capital
}

// tracePath runs simulate and collects every month into a Path.
func tracePath(p types.StrategyParams, win func() bool) types.Path {
	months := p.TimeMonths
	if months < 0 {
		months = 0
	}
	path := make(types.Path, 0, months+1)
	simulate(p, win, func(month int, capital float64) {
		path = append(path, types.PathPoint{Month: month, Capital: capital})
	})
	return path
}

// newRand returns a time-seeded source. offset separates workers
// started in the same nanosecond.
func newRand(offset int64) *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano() + offset))
}

// Generator produces random capital trajectories for one strategy. It is not
// safe for concurrent use; give each goroutine its own.
type Generator struct {
	params types.StrategyParams
	rng    *rand.Rand
	win    func() bool
}

// NewGenerator creates a generator. A nil rng uses a time-based source.
func NewGenerator(params types.StrategyParams, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = newRand(0)
	}
	threshold := params.WinRate / 100
	return &Generator{
		params: params,
		rng:    rng,
		win:    func() bool { return rng.Float64() < threshold },
	}
}

// Path generates one full trajectory.
func (g *Generator) Path() types.Path {
	return tracePath(g.params, g.win)
}

// FinalCapital generates one trajectory and keeps only its final capital.
func (g *Generator) FinalCapital() float64 {
	return simulate(g.params, g.win, nil)
}

// Finals generates count independent final capitals.
func (g *Generator) Finals(ctx context.Context, count int) ([]float64, error) {
	finals := make([]float64, count)
	for i := range finals {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		finals[i] = g.FinalCapital()
	}
	return finals, nil
}

// Paths generates count independent full trajectories.
func (g *Generator) Paths(ctx context.Context, count int) ([]types.Path, error) {
	paths := make([]types.Path, count)
	for i := range paths {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		paths[i] = g.Path()
	}
	return paths, nil
}
