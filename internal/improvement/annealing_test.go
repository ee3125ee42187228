package improvement

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/iso3dfd-st7/autotune/pkg/utils"
)

func TestAnnealingConstructorErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() error
		param string
	}{
		{name: "Negative T0", param: "T0", build: func() error { _, err := NewSimulatedAnnealing(-1, "linear"); return err }},
		{name: "NaN T0", param: "T0", build: func() error { _, err := NewSimulatedAnnealing(math.NaN(), "linear"); return err }},
		{name: "Unknown decay", param: "temp_decay", build: func() error { _, err := NewSimulatedAnnealing(10, "cubic"); return err }},
		{name: "Negative tabu size", param: "tabu_size", build: func() error { _, err := NewTabuSA(10, "linear", -1); return err }},
		{name: "Unknown cost", param: "cost_fun", build: func() error { _, err := NewTunnelingSA(10, "linear", "median", 0); return err }},
		{name: "Infinite tunnel", param: "E_tunnel", build: func() error { _, err := NewTunnelingSA(10, "linear", "average", math.Inf(1)); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var invalid *InvalidHyperparameterError
			if err := tt.build(); !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidHyperparameterError, got %v", err)
			}
			if invalid.Name != tt.param {
				t.Fatalf("expected param %q, got %q", tt.param, invalid.Name)
			}
		})
	}
}

func TestAnnealingScriptedDraws(t *testing.T) {
	s0 := testStart()
	a, b := tabuConfig(3), tabuConfig(5)
	oracle := newCountingOracle(func(cfg models.Configuration) float64 {
		switch cfg {
		case a:
			return 8
		case b:
			return 12
		default:
			return 10
		}
	})

	sa, err := NewSimulatedAnnealing(10, "linear")
	if err != nil {
		t.Fatalf("NewSimulatedAnnealing failed: %v", err)
	}
	// k=0 draws a (worse, accepted since 0.5 < exp(-0.2)), k=1 draws b (better)
	rng := &scriptedRand{ints: []int{0, 1}, floats: []float64{0.5}}
	opt := newTestOptimizer(t, sa, oracle, s0, 2).
		WithExplorer(&fixedExplorer{neighbors: []models.Configuration{a, b}}).
		WithRand(rng)

	res, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	scores := res.Scores()
	if len(scores) != 3 || scores[0] != 10 || scores[1] != 8 || scores[2] != 12 {
		t.Fatalf("unexpected trajectory scores %v", scores)
	}
	if res.Best != b || res.BestScore != 12 {
		t.Fatalf("expected best %v/12, got %v/%f", b, res.Best, res.BestScore)
	}
	// T is updated with schedule(k) after iteration k: T(1) = 10 * (1 - 1/2)
	if got := sa.Temperature(); math.Abs(got-5) > 1e-9 {
		t.Fatalf("expected temperature 5, got %f", got)
	}
	if res.Diagnostics["accepted"] != 2 || res.Diagnostics["rejected"] != 0 {
		t.Fatalf("unexpected acceptance counters %v", res.Diagnostics)
	}
	if _, ok := res.Params["seed"]; ok {
		t.Fatal("injected random stream should not record a seed")
	}
}

func TestAnnealingRejectsWithHighDraw(t *testing.T) {
	s0 := testStart()
	worse := tabuConfig(3)
	oracle := newCountingOracle(func(cfg models.Configuration) float64 {
		if cfg == worse {
			return 8
		}
		return 10
	})

	sa, _ := NewSimulatedAnnealing(1, "geometric")
	rng := &scriptedRand{floats: []float64{0.9}}
	opt := newTestOptimizer(t, sa, oracle, s0, 3).
		WithExplorer(&fixedExplorer{neighbors: []models.Configuration{worse}}).
		WithRand(rng)

	res, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	for i, step := range res.Trajectory {
		if step.Config != s0 {
			t.Fatalf("step %d moved to %v, expected rejection", i, step.Config)
		}
	}
	if res.Diagnostics["rejected"] != 3 {
		t.Fatalf("expected 3 rejections, got %f", res.Diagnostics["rejected"])
	}
}

// With T0 = 0 only strictly improving candidates are ever accepted
func TestAnnealingZeroTemperature(t *testing.T) {
	for _, decay := range []string{"linear", "geometric"} {
		t.Run(decay, func(t *testing.T) {
			sa, err := NewSimulatedAnnealing(0, decay)
			if err != nil {
				t.Fatalf("NewSimulatedAnnealing failed: %v", err)
			}
			res, err := newTestOptimizer(t, sa, newCountingOracle(peakScore), testStart(), 5).
				WithSeed(3).
				Optimize(context.Background())
			if err != nil {
				t.Fatalf("Optimize failed: %v", err)
			}

			traj := res.Trajectory
			if len(traj) != 6 {
				t.Fatalf("expected 6 trajectory entries, got %d", len(traj))
			}
			for i := 1; i < len(traj); i++ {
				if traj[i].Config != traj[i-1].Config && traj[i].Score <= traj[i-1].Score {
					t.Fatalf("step %d accepted a non improving move: %f -> %f", i, traj[i-1].Score, traj[i].Score)
				}
			}
			if res.Diagnostics["accepted"]+res.Diagnostics["rejected"] != 5 {
				t.Fatalf("expected 5 acceptance decisions, got %v", res.Diagnostics)
			}
		})
	}
}

func TestMetropolisNearZeroTemperature(t *testing.T) {
	a := &Annealing{temperature: 1e-9, current: 10}
	rng := utils.NewRandSource(99)
	for i := 0; i < 10000; i++ {
		if a.metropolis(9.999, rng) {
			t.Fatalf("worse candidate accepted at T=%g on draw %d", a.temperature, i)
		}
	}
	if !a.metropolis(10.5, rng) {
		t.Fatal("strictly better candidate must always be accepted")
	}
}

func TestAnnealingReproducibleWithSeed(t *testing.T) {
	run := func() *models.Result {
		sa, _ := NewSimulatedAnnealing(20, "geometric")
		res, err := newTestOptimizer(t, sa, newCountingOracle(peakScore), testStart(), 40).
			WithSeed(1234).
			Optimize(context.Background())
		if err != nil {
			t.Fatalf("Optimize failed: %v", err)
		}
		return res
	}

	r1, r2 := run(), run()
	if len(r1.Trajectory) != len(r2.Trajectory) {
		t.Fatal("trajectory lengths differ between identically seeded runs")
	}
	for i := range r1.Trajectory {
		if r1.Trajectory[i] != r2.Trajectory[i] {
			t.Fatalf("step %d differs: %v vs %v", i, r1.Trajectory[i], r2.Trajectory[i])
		}
	}
	if r1.Params["seed"] != int64(1234) {
		t.Fatalf("expected seed param 1234, got %v", r1.Params["seed"])
	}
}

func TestTabuSAListStaysBounded(t *testing.T) {
	tabu, err := NewTabuSA(50, "geometric", 2)
	if err != nil {
		t.Fatalf("NewTabuSA failed: %v", err)
	}

	opt := newTestOptimizer(t, tabu, newCountingOracle(peakScore), testStart(), 60).
		WithSeed(11).
		WithProgressReporter(func(int, float64, float64) {
			if n := len(tabu.TabuList()); n > 2 {
				t.Fatalf("tabu list grew to %d", n)
			}
		})
	res, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	list := tabu.TabuList()
	if len(list) == 0 || list[len(list)-1] != res.Best {
		t.Fatalf("expected the final best as newest tabu entry, got %v (best %v)", list, res.Best)
	}
	if res.Params["tabu_size"] != 2 {
		t.Fatalf("expected tabu_size param 2, got %v", res.Params["tabu_size"])
	}
}

// Accepted moves that do not improve the best leave the tabu list alone
func TestTabuSAPushesOnlyOnNewBest(t *testing.T) {
	s0 := testStart()
	worse, worst, better := tabuConfig(3), tabuConfig(5), tabuConfig(7)
	oracle := newCountingOracle(func(cfg models.Configuration) float64 {
		switch cfg {
		case worse:
			return 8
		case worst:
			return 6
		case better:
			return 12
		default:
			return 10
		}
	})

	tabu, err := NewTabuSA(1e9, "linear", 5)
	if err != nil {
		t.Fatalf("NewTabuSA failed: %v", err)
	}
	var sizes []int
	opt := newTestOptimizer(t, tabu, oracle, s0, 3).
		WithExplorer(&fixedExplorer{neighbors: []models.Configuration{worse, worst, better}}).
		WithRand(&scriptedRand{ints: []int{0, 1, 2}, floats: []float64{0}}).
		WithProgressReporter(func(int, float64, float64) {
			sizes = append(sizes, len(tabu.TabuList()))
		})

	res, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Diagnostics["accepted"] != 3 {
		t.Fatalf("expected every move accepted, got %v", res.Diagnostics)
	}
	if len(sizes) != 3 || sizes[0] != 1 || sizes[1] != 1 || sizes[2] != 2 {
		t.Fatalf("expected tabu sizes [1 1 2], got %v", sizes)
	}
	list := tabu.TabuList()
	if list[0] != s0 || list[1] != better {
		t.Fatalf("expected tabu list [S0 better], got %v", list)
	}
}

func TestTabuSAStallsWhenNeighborhoodIsTabu(t *testing.T) {
	s0 := testStart()
	tabu, _ := NewTabuSA(10, "linear", 3)
	opt := newTestOptimizer(t, tabu, newCountingOracle(peakScore), s0, 10).
		WithExplorer(&fixedExplorer{neighbors: []models.Configuration{s0}})

	res, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if !res.Converged || res.ConvergenceReason != ReasonStalled {
		t.Fatalf("expected stalled halt, got converged=%v reason=%q", res.Converged, res.ConvergenceReason)
	}
	if res.Iterations != 0 {
		t.Fatalf("expected no recorded iteration, got %d", res.Iterations)
	}
}

func TestTunnelingSASteersOnTransformedScore(t *testing.T) {
	s0 := testStart()
	cand := tabuConfig(3)
	oracle := newCountingOracle(func(cfg models.Configuration) float64 {
		if cfg == cand {
			return 12
		}
		return 10
	})

	tunnel, err := NewTunnelingSA(0, "linear", "average", 20)
	if err != nil {
		t.Fatalf("NewTunnelingSA failed: %v", err)
	}
	opt := newTestOptimizer(t, tunnel, oracle, s0, 1).
		WithExplorer(&fixedExplorer{neighbors: []models.Configuration{cand}}).
		WithRand(&scriptedRand{})

	res, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Best != cand || res.BestScore != 12 {
		t.Fatalf("expected raw best 12 at %v, got %f at %v", cand, res.BestScore, res.Best)
	}
	// (12 + 20) / 2
	if res.Diagnostics["best_transformed_score"] != 16 {
		t.Fatalf("expected transformed best 16, got %f", res.Diagnostics["best_transformed_score"])
	}
	if res.Params["cost_fun"] != "average" || res.Params["E_tunnel"] != 20.0 {
		t.Fatalf("unexpected params %v", res.Params)
	}
}
