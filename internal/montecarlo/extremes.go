package montecarlo

import "github.com/atlas-desktop/risk-sim/pkg/types"

// AllWinsPath is the trajectory where every trade wins.
func AllWinsPath(p types.StrategyParams) types.Path {
	return tracePath(p, func() bool { return true })
}

// AllLossesPath is the trajectory where every trade loses, clamped at zero.
func AllLossesPath(p types.StrategyParams) types.Path {
	return tracePath(p, func() bool { return false })
}

// Extremes returns the all-wins and all-losses final capitals.
func Extremes(p types.StrategyParams) (allWins, allLosses float64) {
	allWins = simulate(p, func() bool { return true }, nil)
	allLosses = simulate(p, func() bool { return false }, nil)
	return allWins, allLosses
}
