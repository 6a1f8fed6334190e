package types

import (
	"fmt"
	"math"
	"strings"
)

// Magnitude limits. A trade moves capital by at most RiskCapDollars ×
// RiskRewardRatio, so within these limits capital stays finite for any
// int trade count.
const (
	MaxDollars         = 1e12
	MaxRiskRewardRatio = 1e4
)

// ValidationError lists every rejected field of a parameter set.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid strategy parameters: " + strings.Join(e.Fields, "; ")
}

// Validate checks the parameters are well-formed numeric inputs.
func (p StrategyParams) Validate() error {
	var fields []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			fields = append(fields, fmt.Sprintf(format, args...))
		}
	}

	numeric := []struct {
		name  string
		value float64
	}{
		{"initialCapital", p.InitialCapital},
		{"riskPercentage", p.RiskPercentage},
		{"riskRewardRatio", p.RiskRewardRatio},
		{"winRate", p.WinRate},
		{"riskCapDollars", p.RiskCapDollars},
	}
	for _, n := range numeric {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return &ValidationError{Fields: []string{n.name + " must be finite"}}
		}
	}

	check(p.InitialCapital >= 0, "initialCapital must be >= 0")
	check(p.InitialCapital <= MaxDollars, "initialCapital must be <= %g", MaxDollars)
	check(p.RiskPercentage >= 0, "riskPercentage must be >= 0")
	check(p.RiskRewardRatio > 0, "riskRewardRatio must be > 0")
	check(p.RiskRewardRatio <= MaxRiskRewardRatio, "riskRewardRatio must be <= %g", MaxRiskRewardRatio)
	check(p.WinRate >= 0 && p.WinRate <= 100, "winRate must be within [0, 100]")
	check(p.TradesPerMonth >= 0, "tradesPerMonth must be >= 0")
	check(p.TimeMonths >= 0, "timeMonths must be >= 0")
	check(p.RiskCapDollars >= 0, "riskCapDollars must be >= 0")
	check(p.RiskCapDollars <= MaxDollars, "riskCapDollars must be <= %g", MaxDollars)
	check(p.CompoundingFrequency.Valid(), "unknown compoundingFrequency %q", p.CompoundingFrequency)

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
