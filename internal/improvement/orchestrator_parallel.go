package improvement

import (
	"context"
	"fmt"

	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/sourcegraph/conc/pool"
)

// ConfigurationCandidate is one configuration with its measured score
type ConfigurationCandidate struct {
	Config    models.Configuration
	Score     float64
	Evaluated bool
	Err       error
}

// runTrialsParallel runs one trial per seed, at most maxParallelRuns at once,
// and returns the contexts in seed order
func (o *Orchestrator) runTrialsParallel(ctx context.Context, seeds []int64) []*RunContext {
	p := pool.New().WithMaxGoroutines(o.maxParallelRuns)
	runs := make([]*RunContext, len(seeds))
	for i, seed := range seeds {
		p.Go(func() {
			runs[i] = o.runTrial(ctx, seed)
		})
	}
	p.Wait()
	return runs
}

// EvaluateConfigurationsParallel scores configurations outside of any search,
// at most maxParallelRuns at once. Partial results are returned with the
// first error.
func (o *Orchestrator) EvaluateConfigurationsParallel(ctx context.Context, cfgs []models.Configuration) ([]*ConfigurationCandidate, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no configurations provided")
	}
	size := o.cfg.Problem
	for _, cfg := range cfgs {
		if err := cfg.Validate(size); err != nil {
			return nil, fmt.Errorf("configuration [%s]: %w", cfg, err)
		}
	}

	p := pool.New().WithMaxGoroutines(o.maxParallelRuns)
	results := make([]*ConfigurationCandidate, len(cfgs))
	for i, cfg := range cfgs {
		p.Go(func() {
			score, err := o.oracle.Evaluate(ctx, cfg, size)
			if err != nil {
				results[i] = &ConfigurationCandidate{Config: cfg, Err: &EvaluationError{Config: cfg, Err: err}}
				return
			}
			results[i] = &ConfigurationCandidate{Config: cfg, Score: score, Evaluated: true}
		})
	}
	p.Wait()

	for _, res := range results {
		if res.Err != nil {
			return results, fmt.Errorf("some configurations failed to evaluate: %w", res.Err)
		}
	}
	return results, nil
}

// CancelActiveRuns cancels every trial that has not finished
func (o *Orchestrator) CancelActiveRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cancelled := 0
	for _, runCtx := range o.activeRuns {
		if runCtx.Status == RunStatusPending || runCtx.Status == RunStatusRunning {
			runCtx.cancel()
			cancelled++
		}
	}
	return cancelled
}

// CleanupCompletedRuns removes finished trials from tracking and returns
// how many were dropped
func (o *Orchestrator) CleanupCompletedRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for runID, runCtx := range o.activeRuns {
		if runCtx.Status == RunStatusCompleted || runCtx.Status == RunStatusFailed {
			delete(o.activeRuns, runID)
			removed++
		}
	}
	return removed
}
