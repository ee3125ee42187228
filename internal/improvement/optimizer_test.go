package improvement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

func TestNewOptimizerValidation(t *testing.T) {
	oracle := newCountingOracle(peakScore)
	badStart := testStart()
	badStart.Block1 = 300

	tests := []struct {
		name     string
		strategy Strategy
		oracle   Oracle
		initial  models.Configuration
		maxIter  int
		param    string
	}{
		{name: "Missing strategy", oracle: oracle, initial: testStart(), maxIter: 1},
		{name: "Missing oracle", strategy: NewGreedy(), initial: testStart(), maxIter: 1},
		{name: "Start out of bounds", strategy: NewGreedy(), oracle: oracle, initial: badStart, maxIter: 1, param: "S0"},
		{name: "Negative budget", strategy: NewGreedy(), oracle: oracle, initial: testStart(), maxIter: -1, param: "n_iter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := NewOptimizer(tt.strategy, tt.oracle, testSize, tt.initial, tt.maxIter)
			if err == nil {
				t.Fatalf("expected error, got optimizer %v", opt)
			}
			if tt.param == "" {
				return
			}
			var invalid *InvalidHyperparameterError
			if !errors.As(err, &invalid) || invalid.Name != tt.param {
				t.Fatalf("expected InvalidHyperparameterError for %s, got %v", tt.param, err)
			}
		})
	}
}

func TestOptimizeZeroBudget(t *testing.T) {
	oracle := newCountingOracle(peakScore)
	sa, _ := NewSimulatedAnnealing(10, "linear")

	res, err := newTestOptimizer(t, sa, oracle, testStart(), 0).Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Iterations != 0 || len(res.Trajectory) != 1 {
		t.Fatalf("expected only the initial step, got %d iterations", res.Iterations)
	}
	if res.Best != testStart() || res.BestScore != peakScore(testStart()) {
		t.Fatalf("expected S0 as best, got %v", res.Best)
	}
	if res.ConvergenceReason != ReasonMaxIterations || res.Converged {
		t.Fatalf("unexpected convergence %v %q", res.Converged, res.ConvergenceReason)
	}
	if oracle.calls.Load() != 1 {
		t.Fatalf("expected a single evaluation, got %d", oracle.calls.Load())
	}
}

func TestOptimizeAbortsOnEvaluationError(t *testing.T) {
	boom := errors.New("benchmark crashed")
	oracle := OracleFunc(func(_ context.Context, cfg models.Configuration, _ models.ProblemSize) (float64, error) {
		if cfg.OptLevel == models.OptLevelO3 {
			return 0, boom
		}
		return peakScore(cfg), nil
	})

	res, err := newTestOptimizer(t, NewGreedy(), oracle, testStart(), 10).Optimize(context.Background())
	if res != nil {
		t.Fatalf("expected no result on failure, got %v", res)
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if evalErr.Config.OptLevel != models.OptLevelO3 {
		t.Fatalf("expected failing configuration to carry O3, got %v", evalErr.Config)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestOptimizeInitialEvaluationFails(t *testing.T) {
	oracle := OracleFunc(func(context.Context, models.Configuration, models.ProblemSize) (float64, error) {
		return 0, fmt.Errorf("no throughput line")
	})
	lahc, _ := NewLAHC(3)

	_, err := newTestOptimizer(t, lahc, oracle, testStart(), 5).Optimize(context.Background())
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.Config != testStart() {
		t.Fatalf("expected EvaluationError for S0, got %v", err)
	}
}

func TestOptimizeRejectsNaNScore(t *testing.T) {
	oracle := OracleFunc(func(context.Context, models.Configuration, models.ProblemSize) (float64, error) {
		return math.NaN(), nil
	})
	_, err := newTestOptimizer(t, NewGreedy(), oracle, testStart(), 5).Optimize(context.Background())
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError for NaN, got %v", err)
	}
}

func TestOptimizeTwice(t *testing.T) {
	opt := newTestOptimizer(t, NewGreedy(), newCountingOracle(peakScore), testStart(), 3)
	if _, err := opt.Optimize(context.Background()); err != nil {
		t.Fatalf("first Optimize failed: %v", err)
	}
	if _, err := opt.Optimize(context.Background()); !errors.Is(err, ErrAlreadyOptimized) {
		t.Fatalf("expected ErrAlreadyOptimized, got %v", err)
	}
}

func TestOptimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sa, _ := NewSimulatedAnnealing(10, "linear")
	_, err := newTestOptimizer(t, sa, newCountingOracle(peakScore), testStart(), 5).Optimize(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOptimizerParamsAndProgress(t *testing.T) {
	sa, _ := NewSimulatedAnnealing(100, "geometric")
	calls := 0
	opt := newTestOptimizer(t, sa, newCountingOracle(peakScore), testStart(), 7).
		WithSeed(21).
		WithRunID("run-test").
		WithProgressReporter(func(iteration int, score, best float64) {
			calls++
			if iteration != calls {
				t.Errorf("expected iteration %d, got %d", calls, iteration)
			}
			if score > best {
				t.Errorf("score %f above best %f", score, best)
			}
		})

	res, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if calls != 7 {
		t.Fatalf("expected 7 progress calls, got %d", calls)
	}
	if res.ID != "run-test" || opt.RunID() != "run-test" {
		t.Fatalf("expected run id run-test, got %q", res.ID)
	}

	p := res.Params
	if p.String("method") != "sa" || p["n_iter"] != 7 || p["T0"] != 100.0 || p.String("temp_decay") != "geometric" {
		t.Fatalf("unexpected params %v", p)
	}
	if p.String("S0") != "Ofast avx512 32 256 4 4" {
		t.Fatalf("unexpected S0 param %q", p.String("S0"))
	}
	for _, key := range []string{"peak_iteration", "plateau_length", "final_temperature", "evaluations"} {
		if _, ok := res.Diagnostics[key]; !ok {
			t.Errorf("missing diagnostic %q", key)
		}
	}
}
