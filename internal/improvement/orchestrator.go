package improvement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/iso3dfd-st7/autotune/pkg/utils"
)

// ResultSink persists a finished run and returns the id it was stored under
type ResultSink interface {
	Save(ctx context.Context, res *models.Result) (string, error)
}

// Orchestrator manages multi-trial optimization experiments: the same
// algorithm section repeated with consecutive seeds.
type Orchestrator struct {
	cfg             *config.Config
	oracle          Oracle
	sink            ResultSink
	maxParallelRuns int
	progress        ProgressReporter

	mu         sync.RWMutex
	activeRuns map[string]*RunContext
}

// RunContext tracks the context for a single trial
type RunContext struct {
	RunID       string
	Seed        int64
	Status      RunStatus
	Result      *models.Result
	StoredID    string
	Error       error
	CreatedAt   time.Time
	CompletedAt time.Time

	cancel context.CancelFunc
}

// RunStatus represents the status of a trial
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ExperimentResult contains the results of an optimization experiment
type ExperimentResult struct {
	Best          *models.Result
	BestRunID     string
	TotalRuns     int
	CompletedRuns int
	FailedRuns    int
	Runs          []*RunContext
	Duration      time.Duration
}

// NewOrchestrator creates a new optimization orchestrator. sink may be nil.
func NewOrchestrator(cfg *config.Config, oracle Oracle, sink ResultSink) *Orchestrator {
	return &Orchestrator{
		cfg:             cfg,
		oracle:          oracle,
		sink:            sink,
		maxParallelRuns: 1,
		activeRuns:      make(map[string]*RunContext),
	}
}

// WithMaxParallelRuns bounds how many trials run at once. Benchmarks that
// share a machine should keep the default of one.
func (o *Orchestrator) WithMaxParallelRuns(n int) *Orchestrator {
	if n < 1 {
		n = 1
	}
	o.maxParallelRuns = n
	return o
}

// WithProgressReporter forwards per-iteration progress of every trial
func (o *Orchestrator) WithProgressReporter(fn ProgressReporter) *Orchestrator {
	o.progress = fn
	return o
}

// trialSeeds returns one seed per trial. A zero base seed leaves every
// trial clock seeded.
func trialSeeds(base int64, repeat int) []int64 {
	if repeat < 1 {
		repeat = 1
	}
	seeds := make([]int64, repeat)
	if base == 0 {
		return seeds
	}
	for i := range seeds {
		seeds[i] = base + int64(i)
	}
	return seeds
}

// RunExperiment executes every configured trial and picks the best result.
// It fails only when no trial completed.
func (o *Orchestrator) RunExperiment(ctx context.Context) (*ExperimentResult, error) {
	if o.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if o.oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}

	startTime := time.Now()
	seeds := trialSeeds(o.cfg.Algorithm.Seed, o.cfg.Algorithm.Repeat)
	runs := o.runTrialsParallel(ctx, seeds)

	result := &ExperimentResult{
		Runs:      runs,
		TotalRuns: len(runs),
	}
	var firstErr error
	for _, run := range runs {
		switch run.Status {
		case RunStatusCompleted:
			result.CompletedRuns++
			if result.Best == nil || run.Result.BestScore > result.Best.BestScore {
				result.Best = run.Result
				result.BestRunID = run.RunID
			}
		case RunStatusFailed:
			result.FailedRuns++
			if firstErr == nil {
				firstErr = run.Error
			}
		}
	}
	result.Duration = time.Since(startTime)

	if result.Best == nil {
		return result, fmt.Errorf("all %d trials failed: %w", result.TotalRuns, firstErr)
	}
	return result, nil
}

// runTrial performs one optimization and persists it when a sink is set
func (o *Orchestrator) runTrial(ctx context.Context, seed int64) *RunContext {
	runID := utils.GenerateRunID()
	trialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runCtx := &RunContext{
		RunID:     runID,
		Seed:      seed,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}
	o.mu.Lock()
	o.activeRuns[runID] = runCtx
	o.mu.Unlock()

	log := logger.ForTrial(runID, seed)
	fail := func(err error) *RunContext {
		o.mu.Lock()
		runCtx.Status = RunStatusFailed
		runCtx.Error = err
		runCtx.CompletedAt = time.Now()
		o.mu.Unlock()
		log.Warn("trial failed", "error", err)
		return runCtx
	}

	cfg := *o.cfg
	cfg.Algorithm.Seed = seed
	opt, err := NewOptimizerFromConfig(&cfg, o.oracle)
	if err != nil {
		return fail(fmt.Errorf("failed to create optimizer: %w", err))
	}
	opt.WithRunID(runID).WithProgressReporter(o.progress)

	o.mu.Lock()
	runCtx.Status = RunStatusRunning
	o.mu.Unlock()

	res, err := opt.Optimize(trialCtx)
	if err != nil {
		return fail(err)
	}

	var storedID string
	if o.sink != nil {
		storedID, err = o.sink.Save(ctx, res)
		if err != nil {
			return fail(fmt.Errorf("failed to save result: %w", err))
		}
	}

	o.mu.Lock()
	runCtx.Status = RunStatusCompleted
	runCtx.Result = res
	runCtx.StoredID = storedID
	runCtx.CompletedAt = time.Now()
	o.mu.Unlock()

	log.Info("trial completed", "best_score", res.BestScore, "stored_id", storedID)
	return runCtx
}

// GetRunContext returns the context for a specific run ID
func (o *Orchestrator) GetRunContext(runID string) (*RunContext, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	runCtx, ok := o.activeRuns[runID]
	return runCtx, ok
}
