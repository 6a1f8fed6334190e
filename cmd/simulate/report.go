package main

import (
	"fmt"
	"io"
	"os"

	"github.com/atlas-desktop/risk-sim/internal/sizing"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"github.com/atlas-desktop/risk-sim/pkg/utils"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// loadParams reads strategy parameters from a YAML file.
func loadParams(path string) (types.StrategyParams, error) {
	var p types.StrategyParams
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("loadParams: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("loadParams: parse YAML: %w", err)
	}
	return p, nil
}

func moneyPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return utils.FormatMoney(*v)
}

func printParams(out io.Writer, p types.StrategyParams, sims int) {
	fmt.Fprintf(out, "\n  STRATEGY\n")
	fmt.Fprintf(out, "  Initial capital:    %s\n", utils.FormatMoney(p.InitialCapital))
	fmt.Fprintf(out, "  Risk per trade:     %s%% (cap %s)\n", utils.FormatNumber(p.RiskPercentage), utils.FormatMoney(p.RiskCapDollars))
	fmt.Fprintf(out, "  Reward:risk:        %s\n", utils.FormatNumber(p.RiskRewardRatio))
	fmt.Fprintf(out, "  Win rate:           %s%%\n", utils.FormatNumber(p.WinRate))
	fmt.Fprintf(out, "  Trades:             %d/month for %d months\n", p.TradesPerMonth, p.TimeMonths)
	fmt.Fprintf(out, "  Compounding:        %s\n", p.Frequency())
	fmt.Fprintf(out, "  Simulations:        %d\n", sims)

	a := sizing.Assess(p)
	fmt.Fprintf(out, "  Expectancy:         %sR per trade\n", utils.FormatFixed(a.ExpectedR, 3))
	fmt.Fprintf(out, "  Full Kelly:         %s%%\n", utils.FormatFixed(a.KellyPct, 2))
	if a.OverBetting {
		fmt.Fprintf(out, "  WARNING: risk per trade exceeds full Kelly\n")
	}
	fmt.Fprintln(out)
}

// printSummary renders the pooled run statistics.
func printSummary(out io.Writer, s *types.Summary) {
	table := tablewriter.NewWriter(out)
	table.Header("Statistic", "Final capital")

	rows := [][2]string{
		{"Best", utils.FormatMoney(s.Best)},
		{"90th %ile", utils.FormatMoney(s.P90)},
		{"75th %ile", utils.FormatMoney(s.P75)},
		{"Median", utils.FormatMoney(s.Median)},
		{"Mean", utils.FormatMoney(s.Mean)},
		{"25th %ile", utils.FormatMoney(s.P25)},
		{"10th %ile", utils.FormatMoney(s.P10)},
		{"Worst", utils.FormatMoney(s.Worst)},
		{"Std dev (est.)", utils.FormatMoney(s.StdDevEstimate)},
		{"All wins", utils.FormatMoney(s.AllWinsCapital)},
		{"All losses", utils.FormatMoney(s.AllLossesCapital)},
	}
	for _, row := range rows {
		table.Append(row[0], row[1])
	}
	table.Render()
}

// printChart renders the representative paths month by month.
func printChart(out io.Writer, chart []types.ChartPoint) {
	if len(chart) == 0 {
		return
	}
	table := tablewriter.NewWriter(out)
	header := append([]string{"Month"}, types.ChartSeries...)
	table.Header(toAny(header)...)

	for _, pt := range chart {
		row := []string{fmt.Sprintf("%d", pt.Month)}
		for _, v := range pt.Values() {
			row = append(row, moneyPtr(v))
		}
		table.Append(toAny(row)...)
	}
	table.Render()
}

func printResult(out io.Writer, p types.StrategyParams, sims, chartSize int, result *types.SimulationResult) {
	printParams(out, p, sims)
	printSummary(out, result.Summary)

	fmt.Fprintln(out)
	if result.ChartError != "" {
		fmt.Fprintf(out, "  Chart unavailable: %s\n", result.ChartError)
		return
	}
	printChart(out, result.Chart)
	fmt.Fprintf(out, "  Chart series come from an independent sample of %d paths.\n", chartSize)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
