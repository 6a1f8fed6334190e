// Package sizing computes per-trade risk for fixed-fractional strategies
// and rates a strategy's bet size against the Kelly criterion.
package sizing

import (
	"math"

	"github.com/atlas-desktop/risk-sim/pkg/types"
)

// FixedFractional risks a fixed percentage of capital per trade, capped in dollars.
type FixedFractional struct {
	RiskPct     float64 // percent of capital, 1 == 1%
	CapDollars  float64 // maximum dollars risked per trade
	RewardRatio float64 // reward per unit of risk
}

// FromParams builds the sizing rule of a strategy.
func FromParams(p types.StrategyParams) FixedFractional {
	return FixedFractional{
		RiskPct:     p.RiskPercentage,
		CapDollars:  p.RiskCapDollars,
		RewardRatio: p.RiskRewardRatio,
	}
}

// Size returns risk and reward per trade at the given capital.
// Risk is never negative and never exceeds CapDollars.
func (f FixedFractional) Size(capital float64) (risk, reward float64) {
	risk = math.Min(capital*f.RiskPct/100, f.CapDollars)
	if risk < 0 {
		risk = 0
	}
	return risk, risk * f.RewardRatio
}

// Kelly implements the Kelly criterion
// f* = p - q/b
// where p = win probability, q = 1-p, b = reward/risk ratio.
// The result is clamped to [0, 1].
func Kelly(winProb, rewardRatio float64) float64 {
	if winProb <= 0 || rewardRatio <= 0 {
		return 0
	}
	if winProb >= 1 {
		return 1
	}

	kelly := winProb - (1-winProb)/rewardRatio
	if kelly < 0 {
		return 0
	}
	if kelly > 1 {
		kelly = 1
	}
	return kelly
}

// Assessment compares a strategy's risk per trade with the Kelly optimum.
type Assessment struct {
	ExpectedR     float64 `json:"expectedR"`     // mean result per trade in units of risk
	KellyPct      float64 `json:"kellyPct"`      // full Kelly fraction, percent of capital
	RiskPct       float64 `json:"riskPct"`       // configured risk, percent of capital
	KellyMultiple float64 `json:"kellyMultiple"` // RiskPct / KellyPct, 0 when Kelly is 0
	OverBetting   bool    `json:"overBetting"`   // risk exceeds full Kelly
}

// Assess rates the strategy's uncapped bet size.
func Assess(p types.StrategyParams) Assessment {
	winProb := p.WinRate / 100
	a := Assessment{
		ExpectedR: winProb*p.RiskRewardRatio - (1 - winProb),
		KellyPct:  Kelly(winProb, p.RiskRewardRatio) * 100,
		RiskPct:   p.RiskPercentage,
	}
	if a.KellyPct > 0 {
		a.KellyMultiple = a.RiskPct / a.KellyPct
	}
	a.OverBetting = a.RiskPct > a.KellyPct
	return a
}
