package tunerd

import (
	"context"
	"fmt"
	"sync"

	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/internal/metrics"
	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
)

// Objectives accepted in RunInput.Objective
const (
	ObjectiveThroughput = "throughput"
	ObjectiveEnergy     = "energy"
)

// OracleFactory builds the scoring oracle a run optimizes against
type OracleFactory func(cfg *config.Config, objective string) (improvement.Oracle, error)

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	oracles  OracleFactory
	sink     improvement.ResultSink
	notifier *Notifier
	exporter *metrics.Exporter

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
	orchs   map[string]*improvement.Orchestrator
}

// NewRunExecutor creates an executor. sink may be nil, in which case
// results only live in the RunStore.
func NewRunExecutor(store *RunStore, oracles OracleFactory, sink improvement.ResultSink) *RunExecutor {
	return &RunExecutor{
		store:   store,
		oracles: oracles,
		sink:    sink,
		cancels: make(map[string]context.CancelFunc),
		done:    make(map[string]chan struct{}),
		orchs:   make(map[string]*improvement.Orchestrator),
	}
}

// WithNotifier posts run completion to the callback URL of each run
func (e *RunExecutor) WithNotifier(n *Notifier) *RunExecutor {
	e.notifier = n
	return e
}

// WithExporter publishes run and evaluation counters to exp
func (e *RunExecutor) WithExporter(exp *metrics.Exporter) *RunExecutor {
	e.exporter = exp
	return e
}

// Start begins executing a run asynchronously.
// Returns the updated run state (running) or an error.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	switch {
	case rec.Run.Status == StatusRunning:
		return rec, nil
	case rec.Run.Status.Terminal():
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	updated, err := e.store.SetStatus(runID, StatusRunning, "")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	if old, exists := e.cancels[runID]; exists {
		old()
	}
	e.cancels[runID] = cancel
	e.done[runID] = done
	e.mu.Unlock()

	e.exporter.RunStarted()
	go func() {
		defer e.forget(runID, done)
		e.runOptimization(ctx, runID)
		if rec, ok := e.store.Get(runID); ok {
			e.exporter.RunFinished(string(rec.Run.Status))
		}
	}()
	return updated, nil
}

// Stop requests cancellation for a run and marks it cancelled
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	if _, ok := e.store.Get(runID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	updated, err := e.store.SetStatus(runID, StatusCancelled, "")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	orch := e.orchs[runID]
	e.mu.Unlock()
	if orch != nil {
		if n := orch.CancelActiveRuns(); n > 0 {
			logger.Info("cancelled trials", "run_id", runID, "trials", n)
		}
	}
	if ok {
		cancel()
	}

	e.notify(updated)
	return updated, nil
}

// Wait blocks until the run's goroutine has returned or ctx is done.
// Runs that were never started return immediately.
func (e *RunExecutor) Wait(ctx context.Context, runID string) error {
	e.mu.Lock()
	done, ok := e.done[runID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll cancels every active run, for shutdown
func (e *RunExecutor) StopAll() int {
	e.mu.Lock()
	ids := make([]string, 0, len(e.cancels))
	for id := range e.cancels {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	stopped := 0
	for _, id := range ids {
		if _, err := e.Stop(id); err == nil {
			stopped++
		}
	}
	return stopped
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	delete(e.orchs, runID)
	e.mu.Unlock()
}

// forget releases waiters and drops the run from the done index
func (e *RunExecutor) forget(runID string, done chan struct{}) {
	close(done)
	e.mu.Lock()
	if e.done[runID] == done {
		delete(e.done, runID)
	}
	e.mu.Unlock()
}

func (e *RunExecutor) fail(runID string, msg string) {
	updated, err := e.store.SetStatus(runID, StatusFailed, msg)
	if err != nil {
		logger.Error("failed to set failed status", "run_id", runID, "error", err)
		return
	}
	e.notify(updated)
}

func (e *RunExecutor) runOptimization(ctx context.Context, runID string) {
	defer e.cleanup(runID)

	rec, ok := e.store.Get(runID)
	if !ok {
		logger.Error("run not found", "run_id", runID)
		return
	}

	cfg, err := config.ParseConfigYAMLString(rec.Input.ConfigYAML)
	if err != nil {
		logger.Error("failed to parse config YAML", "run_id", runID, "error", err)
		e.fail(runID, fmt.Sprintf("invalid config: %v", err))
		return
	}
	e.store.SetMethod(runID, cfg.Algorithm.Method)

	if e.oracles == nil {
		e.fail(runID, "no oracle factory configured")
		return
	}
	oracle, err := e.oracles(cfg, rec.Input.Objective)
	if err != nil {
		logger.Error("failed to build oracle", "run_id", runID, "error", err)
		e.fail(runID, fmt.Sprintf("oracle setup failed: %v", err))
		return
	}

	collector := metrics.NewCollector()
	collector.Start()
	defer collector.Stop()
	if err := e.store.SetCollector(runID, collector); err != nil {
		logger.Error("failed to store collector", "run_id", runID, "error", err)
	}
	oracle = metrics.InstrumentOracle(oracle, collector, e.exporter)

	orch := improvement.NewOrchestrator(cfg, oracle, e.sink).
		WithProgressReporter(func(iter int, score, best float64) {
			e.store.SetProgress(runID, iter, score, best)
		})
	e.mu.Lock()
	e.orchs[runID] = orch
	e.mu.Unlock()

	log := logger.ForRun(runID, cfg.Algorithm.Method)
	log.Info("tuning run started", "trials", cfg.Algorithm.Repeat, "n_iter", cfg.Algorithm.MaxIterations)

	exp, err := orch.RunExperiment(ctx)
	if ctx.Err() != nil {
		log.Info("tuning run cancelled")
		return
	}
	if err != nil {
		log.Error("tuning run failed", "error", err)
		e.fail(runID, err.Error())
		return
	}

	var resultID string
	if best, ok := orch.GetRunContext(exp.BestRunID); ok {
		resultID = best.StoredID
	}
	orch.CleanupCompletedRuns()
	if err := e.store.SetResult(runID, exp.Best, resultID); err != nil {
		log.Error("failed to store result", "error", err)
	}

	updated, err := e.store.SetStatus(runID, StatusCompleted, "")
	if err != nil {
		// stopped between the last iteration and here
		log.Warn("run finished after it was stopped", "error", err)
		return
	}
	log.Info("tuning run completed",
		"best", exp.Best.Best.String(),
		"best_score", exp.Best.BestScore,
		"completed_trials", exp.CompletedRuns,
		"failed_trials", exp.FailedRuns)
	e.notify(updated)
}

func (e *RunExecutor) notify(rec *RunRecord) {
	if e.notifier == nil || rec == nil || rec.Input == nil {
		return
	}
	e.notifier.Notify(rec.Input.CallbackURL, rec.Input.CallbackSecret, rec)
}
