package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/internal/results"
	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

type optimizeFlags struct {
	configPath string
	logLevel   string
	objective  string
	backend    string

	algo     string
	size     string
	k        int
	s0       string
	t0       float64
	decay    string
	tabu     int
	cost     string
	eTunnel  float64
	lh       int
	seed     int64
	repeat   int
	parallel int
}

func newOptimizeFlagSet(stderr io.Writer) (*flag.FlagSet, *optimizeFlags) {
	f := &optimizeFlags{}
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.configPath, "config", "", "YAML configuration file (defaults when empty)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.objective, "objective", "throughput", "score to maximize: throughput or energy")
	fs.StringVar(&f.backend, "backend", "", "results backend: file or sqlite")

	fs.StringVar(&f.algo, "algo", "sa", "algorithm: "+methodList())
	fs.StringVar(&f.size, "n", "256 256 256", "problem size n1 n2 n3")
	fs.IntVar(&f.k, "k", 200, "maximum number of iterations")
	fs.StringVar(&f.s0, "S0", "", `initial solution "Olevel simd NbTh n1_blk n2_blk n3_blk" (default Ofast avx512 32 n1 4 4)`)
	fs.Float64Var(&f.t0, "T0", 100, "initial temperature for simulated annealing")
	fs.StringVar(&f.decay, "decay", "geometric", "temperature decay: linear or geometric")
	fs.IntVar(&f.tabu, "tabu", 5, "tabu list size")
	fs.StringVar(&f.cost, "cost", "stochastic", "tunneling cost function: average or stochastic")
	fs.Float64Var(&f.eTunnel, "Etunnel", 0, "tunneling energy")
	fs.IntVar(&f.lh, "Lh", 10, "history length for late acceptance")
	fs.Int64Var(&f.seed, "seed", 0, "random seed (0 seeds from the clock)")
	fs.IntVar(&f.repeat, "repeat", 1, "independent trials with consecutive seeds")
	fs.IntVar(&f.parallel, "parallel", 1, "concurrent neighbor evaluations in greedy sweeps")
	return fs, f
}

func methodList() string {
	names := make([]string, len(improvement.Methods))
	for i, m := range improvement.Methods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// parseSize parses "n1 n2 n3", separated by spaces, commas or x
func parseSize(s string) (models.ProblemSize, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == 'x' })
	if len(fields) != 3 {
		return models.ProblemSize{}, fmt.Errorf("problem size needs 3 values, got %q", s)
	}
	var dims [3]int
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return models.ProblemSize{}, fmt.Errorf("invalid problem size %q: %w", s, err)
		}
		dims[i] = v
	}
	return models.ProblemSize{N1: dims[0], N2: dims[1], N3: dims[2]}, nil
}

// applyOverrides copies every flag the user set onto cfg. Unset flags leave
// the config file values alone.
func applyOverrides(fs *flag.FlagSet, f *optimizeFlags, cfg *config.Config) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "algo":
			cfg.Algorithm.Method = f.algo
		case "n":
			cfg.Problem, err = parseSize(f.size)
		case "k":
			cfg.Algorithm.MaxIterations = f.k
		case "S0":
			var s0 models.Configuration
			s0, err = models.ParseConfiguration(f.s0)
			cfg.Initial = &s0
		case "T0":
			cfg.Algorithm.T0 = f.t0
		case "decay":
			cfg.Algorithm.TempDecay = f.decay
		case "tabu":
			cfg.Algorithm.TabuSize = f.tabu
		case "cost":
			cfg.Algorithm.CostFun = f.cost
		case "Etunnel":
			cfg.Algorithm.ETunnel = f.eTunnel
		case "Lh":
			cfg.Algorithm.Lh = f.lh
		case "seed":
			cfg.Algorithm.Seed = f.seed
		case "repeat":
			cfg.Algorithm.Repeat = f.repeat
		case "parallel":
			cfg.Algorithm.Parallelism = f.parallel
		case "backend":
			cfg.Results.Backend = f.backend
		}
	})
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}

func runOptimize(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, f := newOptimizeFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	if err := applyOverrides(fs, f, cfg); err != nil {
		return err
	}
	setupLogging(cfg, f.logLevel, stderr)

	oracle, err := newOracle(cfg, f.objective)
	if err != nil {
		return err
	}
	store, err := results.NewStore(cfg.Results)
	if err != nil {
		return err
	}
	defer store.Close()

	return optimize(ctx, cfg, oracle, store, stdout)
}

// optimize runs every configured trial, persists them and prints the best
func optimize(ctx context.Context, cfg *config.Config, oracle improvement.Oracle, store results.Store, stdout io.Writer) error {
	logger.Info("starting optimization",
		"method", improvement.Method(cfg.Algorithm.Method).FullName(),
		"n", cfg.Problem.String(),
		"S0", cfg.InitialConfiguration().String(),
		"trials", cfg.Algorithm.Repeat)

	orch := improvement.NewOrchestrator(cfg, oracle, store)
	stopCancel := context.AfterFunc(ctx, func() {
		if n := orch.CancelActiveRuns(); n > 0 {
			logger.Warn("interrupted, cancelling trials", "trials", n)
		}
	})
	defer stopCancel()

	exp, err := orch.RunExperiment(ctx)
	defer orch.CleanupCompletedRuns()
	if err != nil {
		return err
	}

	var bestID string
	completed := make([]*models.Result, 0, len(exp.Runs))
	for _, trial := range exp.Runs {
		if trial.Status != improvement.RunStatusCompleted {
			fmt.Fprintf(stdout, "trial %s failed: %v\n", trial.RunID, trial.Error)
			continue
		}
		completed = append(completed, trial.Result)
		fmt.Fprintf(stdout, "trial %s saved as %s (best %.4f)\n", trial.RunID, trial.StoredID, trial.Result.BestScore)
		if trial.RunID == exp.BestRunID {
			bestID = trial.StoredID
		}
	}
	fmt.Fprintln(stdout)

	if err := results.Summary(stdout, bestID, exp.Best); err != nil {
		return err
	}
	if len(completed) > 1 {
		return printHistory(stdout, completed)
	}
	return nil
}

func printHistory(w io.Writer, runs []*models.Result) error {
	hist, err := improvement.CompareRunHistory(runs)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\ntrials: %d  mean best: %.4f  std: %.4f  trend: %s\n",
		len(runs), hist.AverageScore, hist.ScoreStdDev, hist.ImprovementTrend)
	return nil
}
