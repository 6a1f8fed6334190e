// Command simulate runs one Monte Carlo risk simulation and prints the
// summary and chart series as tables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/config"
	"github.com/atlas-desktop/risk-sim/internal/logging"
	"github.com/atlas-desktop/risk-sim/internal/montecarlo"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	paramsPath string
	sims       int
	timeout    time.Duration
	logLevel   string
	params     types.StrategyParams
	set        map[string]bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	opts := &options{set: make(map[string]bool)}
	var compounding string

	fs.StringVar(&opts.configPath, "config", "", "path to engine config file")
	fs.StringVar(&opts.paramsPath, "params", "", "path to strategy params YAML")
	fs.IntVar(&opts.sims, "sims", 100000, "number of simulations")
	fs.DurationVar(&opts.timeout, "timeout", 0, "abort the run after this long (0 = no limit)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	fs.Float64Var(&opts.params.InitialCapital, "capital", 10000, "initial capital")
	fs.Float64Var(&opts.params.RiskPercentage, "risk", 1, "risk per trade in percent of capital")
	fs.Float64Var(&opts.params.RiskRewardRatio, "rr", 2, "reward-to-risk ratio")
	fs.Float64Var(&opts.params.WinRate, "winrate", 50, "win rate in percent")
	fs.IntVar(&opts.params.TradesPerMonth, "trades", 10, "trades per month")
	fs.IntVar(&opts.params.TimeMonths, "months", 12, "months simulated")
	fs.Float64Var(&opts.params.RiskCapDollars, "cap", 1000, "maximum dollars risked per trade")
	fs.StringVar(&compounding, "compounding", string(types.DefaultCompounding), "daily, monthly, quarterly or yearly")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	opts.params.CompoundingFrequency = types.CompoundingFrequency(compounding)

	if opts.paramsPath != "" {
		fromFile, err := loadParams(opts.paramsPath)
		if err != nil {
			return nil, err
		}
		opts.params = mergeParams(fromFile, opts.params, opts.set)
	}
	if opts.sims < 0 {
		return nil, errors.New("-sims must be >= 0")
	}
	return opts, nil
}

// mergeParams starts from file and applies the flags that were set explicitly.
func mergeParams(file, flags types.StrategyParams, set map[string]bool) types.StrategyParams {
	out := file
	if set["capital"] {
		out.InitialCapital = flags.InitialCapital
	}
	if set["risk"] {
		out.RiskPercentage = flags.RiskPercentage
	}
	if set["rr"] {
		out.RiskRewardRatio = flags.RiskRewardRatio
	}
	if set["winrate"] {
		out.WinRate = flags.WinRate
	}
	if set["trades"] {
		out.TradesPerMonth = flags.TradesPerMonth
	}
	if set["months"] {
		out.TimeMonths = flags.TimeMonths
	}
	if set["cap"] {
		out.RiskCapDollars = flags.RiskCapDollars
	}
	if set["compounding"] {
		out.CompoundingFrequency = flags.CompoundingFrequency
	}
	return out
}

// progressLogger logs every tenth of the run.
func progressLogger(logger *zap.Logger) func(types.Progress) {
	lastDecile := -1
	return func(p types.Progress) {
		decile := int(p.Percent() / 10)
		if decile == lastDecile {
			return
		}
		lastDecile = decile
		logger.Info("simulation progress",
			zap.Int("completedBatches", p.CompletedBatches),
			zap.Int("totalBatches", p.TotalBatches),
			zap.Float64("percent", p.Percent()),
		)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sim := montecarlo.NewSimulator(logger, &montecarlo.SimulatorConfig{
		BatchSize:         cfg.Simulation.BatchSize,
		MaxWorkers:        cfg.Simulation.MaxWorkers,
		ReservoirCapacity: cfg.Simulation.ReservoirCapacity,
		ChartSamples:      cfg.Simulation.ChartSamples,
	}, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	result, err := sim.Run(ctx, opts.params, opts.sims, progressLogger(logger))
	if err != nil {
		return err
	}

	printResult(os.Stdout, opts.params, opts.sims, sim.ChartSampleSize(opts.sims), result)
	return nil
}
