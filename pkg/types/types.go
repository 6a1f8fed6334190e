// Package types provides shared type definitions for the risk simulator.
package types

// CompoundingFrequency controls how often risk and reward per trade are
// recomputed from current capital.
type CompoundingFrequency string

const (
	CompoundDaily     CompoundingFrequency = "daily"
	CompoundMonthly   CompoundingFrequency = "monthly"
	CompoundQuarterly CompoundingFrequency = "quarterly"
	CompoundYearly    CompoundingFrequency = "yearly"
)

// DefaultCompounding is used when no frequency is supplied.
const DefaultCompounding = CompoundQuarterly

// IntervalMonths returns the recompute interval in months. Zero means
// recompute after every trade. Unknown values fall back to quarterly.
func (f CompoundingFrequency) IntervalMonths() int {
	switch f {
	case CompoundDaily:
		return 0
	case CompoundMonthly:
		return 1
	case CompoundYearly:
		return 12
	default:
		return 3
	}
}

// Valid reports whether f is one of the known frequencies or empty.
func (f CompoundingFrequency) Valid() bool {
	switch f {
	case "", CompoundDaily, CompoundMonthly, CompoundQuarterly, CompoundYearly:
		return true
	}
	return false
}

// StrategyParams describes a fixed-fractional repeated-bet strategy.
// Percentages are expressed in percent (1 == 1%).
type StrategyParams struct {
	InitialCapital       float64              `json:"initialCapital" yaml:"initial_capital"`
	RiskPercentage       float64              `json:"riskPercentage" yaml:"risk_percentage"`
	RiskRewardRatio      float64              `json:"riskRewardRatio" yaml:"risk_reward_ratio"`
	WinRate              float64              `json:"winRate" yaml:"win_rate"`
	TradesPerMonth       int                  `json:"tradesPerMonth" yaml:"trades_per_month"`
	TimeMonths           int                  `json:"timeMonths" yaml:"time_months"`
	RiskCapDollars       float64              `json:"riskCapDollars" yaml:"risk_cap_dollars"`
	CompoundingFrequency CompoundingFrequency `json:"compoundingFrequency,omitempty" yaml:"compounding_frequency"`
}

// Frequency returns the configured compounding frequency, defaulting to quarterly.
func (p StrategyParams) Frequency() CompoundingFrequency {
	if p.CompoundingFrequency == "" {
		return DefaultCompounding
	}
	return p.CompoundingFrequency
}

// PathPoint is the capital at the end of a month. Month 0 is the start.
type PathPoint struct {
	Month   int     `json:"month"`
	Capital float64 `json:"capital"`
}

// Path is one simulated capital trajectory, month 0..TimeMonths.
type Path []PathPoint

// Final returns the capital at the last recorded month.
func (p Path) Final() float64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Capital
}

// Summary holds the statistics of one pooled simulation run.
// Mean, Worst and Best are exact; percentiles come from the reservoir sample.
type Summary struct {
	Simulations      int     `json:"simulations"`
	Mean             float64 `json:"mean"`
	Median           float64 `json:"median"`
	P10              float64 `json:"p10"`
	P25              float64 `json:"p25"`
	P75              float64 `json:"p75"`
	P90              float64 `json:"p90"`
	Worst            float64 `json:"worst"`
	Best             float64 `json:"best"`
	StdDevEstimate   float64 `json:"stdDevEstimate"`
	AllWinsCapital   float64 `json:"allWinsCapital"`
	AllLossesCapital float64 `json:"allLossesCapital"`
}

// Chart series labels.
const (
	SeriesWorst  = "Worst Sim"
	SeriesP25    = "25th %ile"
	SeriesMedian = "Median"
	SeriesP75    = "75th %ile"
	SeriesBest   = "Best Sim"
)

// ChartSeries lists the labels in rank order.
var ChartSeries = []string{SeriesWorst, SeriesP25, SeriesMedian, SeriesP75, SeriesBest}

// ChartPoint carries the capital of each representative path at one month.
type ChartPoint struct {
	Month  int      `json:"month"`
	Worst  *float64 `json:"Worst Sim,omitempty"`
	P25    *float64 `json:"25th %ile,omitempty"`
	Median *float64 `json:"Median,omitempty"`
	P75    *float64 `json:"75th %ile,omitempty"`
	Best   *float64 `json:"Best Sim,omitempty"`
}

// Values returns the five series in rank order; missing values are nil.
func (c ChartPoint) Values() []*float64 {
	return []*float64{c.Worst, c.P25, c.Median, c.P75, c.Best}
}

// Progress reports batches completed out of the total for a pooled run.
type Progress struct {
	CompletedBatches int `json:"completedBatches"`
	TotalBatches     int `json:"totalBatches"`
}

// Percent returns completion in the range 0-100.
func (p Progress) Percent() float64 {
	if p.TotalBatches == 0 {
		return 100
	}
	return float64(p.CompletedBatches) / float64(p.TotalBatches) * 100
}

// SimulationResult combines the pooled summary with the chart sample.
// ChartError is set when only the chart half failed.
type SimulationResult struct {
	Summary    *Summary     `json:"summary"`
	Chart      []ChartPoint `json:"chart,omitempty"`
	ChartError string       `json:"chartError,omitempty"`
}
