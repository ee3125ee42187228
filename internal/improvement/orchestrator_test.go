package improvement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

type memorySink struct {
	mu    sync.Mutex
	saved []*models.Result
}

func (s *memorySink) Save(_ context.Context, res *models.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, res)
	return fmt.Sprintf("%05d", len(s.saved)-1), nil
}

func experimentConfig() *config.Config {
	cfg := config.Default()
	cfg.Algorithm.Method = "sa"
	cfg.Algorithm.MaxIterations = 20
	cfg.Algorithm.Seed = 10
	cfg.Algorithm.Repeat = 3
	return cfg
}

func TestTrialSeeds(t *testing.T) {
	seeds := trialSeeds(10, 3)
	if len(seeds) != 3 || seeds[0] != 10 || seeds[2] != 12 {
		t.Fatalf("unexpected seeds %v", seeds)
	}
	if seeds := trialSeeds(0, 0); len(seeds) != 1 || seeds[0] != 0 {
		t.Fatalf("expected one clock seeded trial, got %v", seeds)
	}
}

func TestRunExperiment(t *testing.T) {
	sink := &memorySink{}
	orch := NewOrchestrator(experimentConfig(), newCountingOracle(peakScore), sink).WithMaxParallelRuns(2)

	res, err := orch.RunExperiment(context.Background())
	if err != nil {
		t.Fatalf("RunExperiment failed: %v", err)
	}
	if res.TotalRuns != 3 || res.CompletedRuns != 3 || res.FailedRuns != 0 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if len(sink.saved) != 3 {
		t.Fatalf("expected 3 saved results, got %d", len(sink.saved))
	}

	for i, run := range res.Runs {
		if run.Seed != int64(10+i) {
			t.Errorf("run %d: expected seed %d, got %d", i, 10+i, run.Seed)
		}
		if run.StoredID == "" {
			t.Errorf("run %d has no stored id", i)
		}
		if run.Result.BestScore > res.Best.BestScore {
			t.Errorf("run %d beats the reported best", i)
		}
	}
	if ctx, ok := orch.GetRunContext(res.BestRunID); !ok || ctx.Result != res.Best {
		t.Fatal("best run id does not resolve to the best result")
	}

	if n := orch.CancelActiveRuns(); n != 0 {
		t.Fatalf("expected nothing to cancel, got %d", n)
	}
	if n := orch.CleanupCompletedRuns(); n != 3 {
		t.Fatalf("expected 3 trials cleaned up, got %d", n)
	}
	if n := trackedRuns(orch); n != 0 {
		t.Fatalf("expected no tracked runs after cleanup, got %d", n)
	}
	if _, ok := orch.GetRunContext(res.BestRunID); ok {
		t.Fatal("cleaned up trial still resolves")
	}
}

func trackedRuns(o *Orchestrator) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

func TestCancelActiveRunsStopsRunningTrials(t *testing.T) {
	cfg := experimentConfig()
	cfg.Algorithm.Repeat = 1

	var once sync.Once
	started := make(chan struct{})
	oracle := OracleFunc(func(ctx context.Context, _ models.Configuration, _ models.ProblemSize) (float64, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return 0, ctx.Err()
	})
	orch := NewOrchestrator(cfg, oracle, nil)

	type outcome struct {
		res *ExperimentResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := orch.RunExperiment(context.Background())
		done <- outcome{res, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no trial reached the oracle")
	}
	if n := orch.CancelActiveRuns(); n != 1 {
		t.Fatalf("expected one trial to cancel, got %d", n)
	}

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("experiment did not return after cancellation")
	}
	if !errors.Is(out.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", out.err)
	}
	if out.res.FailedRuns != 1 {
		t.Fatalf("expected the trial to fail, got %+v", out.res)
	}
	if n := orch.CleanupCompletedRuns(); n != 1 {
		t.Fatalf("expected one trial cleaned up, got %d", n)
	}
}

func TestRunExperimentAllTrialsFail(t *testing.T) {
	boom := errors.New("make failed")
	oracle := OracleFunc(func(context.Context, models.Configuration, models.ProblemSize) (float64, error) {
		return 0, boom
	})

	res, err := NewOrchestrator(experimentConfig(), oracle, nil).RunExperiment(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped oracle error, got %v", err)
	}
	if res.FailedRuns != 3 {
		t.Fatalf("expected 3 failed runs, got %d", res.FailedRuns)
	}
}

func TestEvaluateConfigurationsParallel(t *testing.T) {
	orch := NewOrchestrator(experimentConfig(), newCountingOracle(peakScore), nil).WithMaxParallelRuns(3)
	cfgs := []models.Configuration{testStart(), tabuConfig(6), tabuConfig(2)}

	results, err := orch.EvaluateConfigurationsParallel(context.Background(), cfgs)
	if err != nil {
		t.Fatalf("EvaluateConfigurationsParallel failed: %v", err)
	}
	for i, r := range results {
		if !r.Evaluated || r.Config != cfgs[i] || r.Score != peakScore(cfgs[i]) {
			t.Errorf("candidate %d: unexpected %+v", i, r)
		}
	}

	bad := testStart()
	bad.Block2 = 0
	if _, err := orch.EvaluateConfigurationsParallel(context.Background(), []models.Configuration{bad}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := orch.EvaluateConfigurationsParallel(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
