package api

import (
	"time"

	"github.com/atlas-desktop/risk-sim/internal/sizing"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"github.com/atlas-desktop/risk-sim/pkg/utils"
)

// SummaryView is a Summary with money rounded to cents.
func SummaryView(s *types.Summary) *types.Summary {
	if s == nil {
		return nil
	}
	return &types.Summary{
		Simulations:      s.Simulations,
		Mean:             utils.RoundMoney(s.Mean),
		Median:           utils.RoundMoney(s.Median),
		P10:              utils.RoundMoney(s.P10),
		P25:              utils.RoundMoney(s.P25),
		P75:              utils.RoundMoney(s.P75),
		P90:              utils.RoundMoney(s.P90),
		Worst:            utils.RoundMoney(s.Worst),
		Best:             utils.RoundMoney(s.Best),
		StdDevEstimate:   utils.RoundMoney(s.StdDevEstimate),
		AllWinsCapital:   utils.RoundMoney(s.AllWinsCapital),
		AllLossesCapital: utils.RoundMoney(s.AllLossesCapital),
	}
}

// ChartView rounds every chart value to cents.
func ChartView(points []types.ChartPoint) []types.ChartPoint {
	if points == nil {
		return nil
	}
	out := make([]types.ChartPoint, len(points))
	for i, p := range points {
		out[i] = types.ChartPoint{
			Month:  p.Month,
			Worst:  utils.RoundMoneyPtr(p.Worst),
			P25:    utils.RoundMoneyPtr(p.P25),
			Median: utils.RoundMoneyPtr(p.Median),
			P75:    utils.RoundMoneyPtr(p.P75),
			Best:   utils.RoundMoneyPtr(p.Best),
		}
	}
	return out
}

// RunView is the JSON shape of a run.
type RunView struct {
	ID          string               `json:"id"`
	Status      RunStatus            `json:"status"`
	Simulations int                  `json:"simulations"`
	Progress    types.Progress       `json:"progress"`
	Percent     float64              `json:"percent"`
	Summary     *types.Summary       `json:"summary,omitempty"`
	Chart       []types.ChartPoint   `json:"chart,omitempty"`
	ChartError  string               `json:"chartError,omitempty"`
	Error       string               `json:"error,omitempty"`
	ErrorKind   string               `json:"errorKind,omitempty"`
	Params      types.StrategyParams `json:"params"`
	Sizing      sizing.Assessment    `json:"sizing"`
	Started     time.Time            `json:"started"`
	Finished    *time.Time           `json:"finished,omitempty"`
}

func newRunView(run RunState) RunView {
	view := RunView{
		ID:          run.ID,
		Status:      run.Status,
		Simulations: run.Simulations,
		Progress:    run.Progress,
		Percent:     run.Progress.Percent(),
		Error:       run.Error,
		ErrorKind:   run.ErrorKind,
		Started:     run.Started,
		Params:      run.Params,
		Sizing:      sizing.Assess(run.Params),
	}
	if !run.Finished.IsZero() {
		finished := run.Finished
		view.Finished = &finished
	}
	if run.Result != nil {
		view.Summary = SummaryView(run.Result.Summary)
		view.Chart = ChartView(run.Result.Chart)
		view.ChartError = run.Result.ChartError
	}
	return view
}
