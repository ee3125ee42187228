package improvement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/iso3dfd-st7/autotune/pkg/utils"
)

// Convergence reasons reported in the result record
const (
	ReasonMaxIterations = "max iterations reached"
	ReasonLocalOptimum  = "local optimum"
	ReasonNoNeighbors   = "no valid neighbors"
	ReasonStalled       = "stalled"
)

// Rand is the random stream a run draws from. Draw order matters for
// reproducibility: one Intn for the neighbor choice, then one Float64 for the
// acceptance test when the candidate does not strictly improve.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// ProgressReporter is called after every recorded iteration
type ProgressReporter func(iteration int, score, bestScore float64)

// Strategy is an acceptance state machine plugged into the Optimizer.
// A strategy instance keeps per-run memory and must not be shared.
type Strategy interface {
	// Name returns the method identifier (ghc, sa, tabu_sa, tunnel_sa, lahc)
	Name() string
	// Params returns the strategy hyperparameters as primitive values
	Params() models.Params
	// Init is called once after the initial configuration has been scored
	Init(run *Run) error
	// Step performs one iteration on run.State
	Step(ctx context.Context, run *Run) (StepOutcome, error)
	// Diagnostics returns strategy specific counters for the result record
	Diagnostics() map[string]float64
}

// StepOutcome is what a strategy reports for one iteration
type StepOutcome struct {
	// Config and Score are logged in the trajectory (Score is raw)
	Config models.Configuration
	Score  float64
	// Candidate and CandidateScore describe the evaluated move, for logging
	Candidate      models.Configuration
	CandidateScore float64
	Accepted       bool

	halt     bool
	recorded bool
	reason   string
}

func recordStep(cfg models.Configuration, score float64, cand models.Configuration, candScore float64, accepted bool) StepOutcome {
	return StepOutcome{
		Config:         cfg,
		Score:          score,
		Candidate:      cand,
		CandidateScore: candScore,
		Accepted:       accepted,
		recorded:       true,
	}
}

// haltWithoutStep ends the run before anything was evaluated this iteration
func haltWithoutStep(reason string) StepOutcome {
	return StepOutcome{halt: true, reason: reason}
}

// SearchState is the mutable state of one run
type SearchState struct {
	Current       models.Configuration
	CurrentScore  float64
	Best          models.Configuration
	BestScore     float64
	Iteration     int // zero based index of the iteration in progress
	MaxIterations int
	// Neighbors of Current (of Best for greedy, where both coincide)
	Neighbors []models.Configuration
}

// Run gives a strategy access to the state, the oracle, the neighborhood
// and the random stream of the run it belongs to.
type Run struct {
	State SearchState

	oracle      Oracle
	explorer    NeighborGenerator
	size        models.ProblemSize
	rand        Rand
	log         *slog.Logger
	parallelism int
	evaluations atomic.Int64
}

// Cost evaluates cfg with the oracle and returns its raw score
func (r *Run) Cost(ctx context.Context, cfg models.Configuration) (float64, error) {
	score, err := r.oracle.Evaluate(ctx, cfg, r.size)
	if err != nil {
		return 0, &EvaluationError{Config: cfg, Err: err}
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, &EvaluationError{Config: cfg, Err: fmt.Errorf("unusable score %v", score)}
	}
	r.evaluations.Add(1)
	return score, nil
}

// CostAll evaluates every configuration. Sequentially the last entry is
// measured first, then the rest in order. With parallelism > 1 the calls
// run concurrently and only the wall-clock time changes.
func (r *Run) CostAll(ctx context.Context, cfgs []models.Configuration) ([]float64, error) {
	scores := make([]float64, len(cfgs))
	if len(cfgs) == 0 {
		return scores, nil
	}

	if r.parallelism <= 1 {
		last := len(cfgs) - 1
		score, err := r.Cost(ctx, cfgs[last])
		if err != nil {
			return nil, err
		}
		scores[last] = score
		for i := 0; i < last; i++ {
			score, err := r.Cost(ctx, cfgs[i])
			if err != nil {
				return nil, err
			}
			scores[i] = score
		}
		return scores, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i := range cfgs {
		g.Go(func() error {
			score, err := r.Cost(gctx, cfgs[i])
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Neighbors returns the neighborhood of cfg
func (r *Run) Neighbors(cfg models.Configuration) []models.Configuration {
	return r.explorer.GenerateNeighbors(cfg, r.size)
}

// Rand returns the random stream of the run
func (r *Run) Rand() Rand {
	return r.rand
}

// Logger returns the run scoped logger
func (r *Run) Logger() *slog.Logger {
	return r.log
}

// Optimizer drives one strategy over the configuration space. It runs once.
type Optimizer struct {
	strategy      Strategy
	oracle        Oracle
	explorer      NeighborGenerator
	size          models.ProblemSize
	initial       models.Configuration
	maxIterations int
	rand          Rand
	seed          int64
	parallelism   int
	runID         string
	log           *slog.Logger
	progress      ProgressReporter

	mu      sync.Mutex
	started bool
}

// NewOptimizer creates an optimizer for one run of strategy from initial
func NewOptimizer(strategy Strategy, oracle Oracle, size models.ProblemSize, initial models.Configuration, maxIterations int) (*Optimizer, error) {
	if strategy == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if err := size.Validate(); err != nil {
		return nil, invalidParam("n", size.String(), "%v", err)
	}
	if err := initial.Validate(size); err != nil {
		return nil, invalidParam("S0", initial.String(), "%v", err)
	}
	if maxIterations < 0 {
		return nil, invalidParam("n_iter", maxIterations, "must be >= 0")
	}

	src := utils.NewRandSource(0)
	return &Optimizer{
		strategy:      strategy,
		oracle:        oracle,
		explorer:      NewDefaultExplorer(),
		size:          size,
		initial:       initial,
		maxIterations: maxIterations,
		rand:          src,
		seed:          src.Seed(),
		parallelism:   1,
		runID:         utils.GenerateRunID(),
		log:           logger.Default,
	}, nil
}

// WithExplorer sets a custom neighbor generator
func (o *Optimizer) WithExplorer(explorer NeighborGenerator) *Optimizer {
	if explorer != nil {
		o.explorer = explorer
	}
	return o
}

// WithSeed replaces the random stream by one seeded with seed
func (o *Optimizer) WithSeed(seed int64) *Optimizer {
	src := utils.NewRandSource(seed)
	o.rand = src
	o.seed = src.Seed()
	return o
}

// WithRand injects a random stream. The seed is not recorded.
func (o *Optimizer) WithRand(r Rand) *Optimizer {
	if r != nil {
		o.rand = r
		o.seed = 0
	}
	return o
}

// WithParallelism bounds concurrent oracle calls in a greedy neighbor sweep
func (o *Optimizer) WithParallelism(n int) *Optimizer {
	if n < 1 {
		n = 1
	}
	o.parallelism = n
	return o
}

// WithLogger sets the logger used for run progress
func (o *Optimizer) WithLogger(l *slog.Logger) *Optimizer {
	if l != nil {
		o.log = l
	}
	return o
}

// WithRunID sets the identifier attached to logs and the result
func (o *Optimizer) WithRunID(id string) *Optimizer {
	if id != "" {
		o.runID = id
	}
	return o
}

// WithProgressReporter registers a callback invoked after each iteration
func (o *Optimizer) WithProgressReporter(fn ProgressReporter) *Optimizer {
	o.progress = fn
	return o
}

// RunID returns the identifier of this run
func (o *Optimizer) RunID() string {
	return o.runID
}

// Params returns the full hyperparameter record of the run
func (o *Optimizer) Params() models.Params {
	params := models.Params{
		"method": o.strategy.Name(),
		"n1":     o.size.N1,
		"n2":     o.size.N2,
		"n3":     o.size.N3,
		"S0":     o.initial.String(),
		"n_iter": o.maxIterations,
	}
	if o.seed != 0 {
		params["seed"] = o.seed
	}
	if o.parallelism > 1 {
		params["parallelism"] = o.parallelism
	}
	for k, v := range o.strategy.Params() {
		params[k] = v
	}
	return params
}

// Optimize runs the search to completion. An oracle failure aborts the run
// and no result is returned.
func (o *Optimizer) Optimize(ctx context.Context) (*models.Result, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil, ErrAlreadyOptimized
	}
	o.started = true
	o.mu.Unlock()

	startTime := time.Now()
	params := o.Params()
	log := o.log.With("run_id", o.runID, "method", o.strategy.Name())
	log.Info("optimization started", "n", o.size.String(), "S0", o.initial.String(), "n_iter", o.maxIterations)

	run := &Run{
		oracle:      o.oracle,
		explorer:    o.explorer,
		size:        o.size,
		rand:        o.rand,
		log:         log,
		parallelism: o.parallelism,
	}

	initialScore, err := run.Cost(ctx, o.initial)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate initial configuration: %w", err)
	}

	run.State = SearchState{
		Current:       o.initial,
		CurrentScore:  initialScore,
		Best:          o.initial,
		BestScore:     initialScore,
		MaxIterations: o.maxIterations,
		Neighbors:     run.Neighbors(o.initial),
	}
	trajectory := make([]models.Step, 0, o.maxIterations+1)
	trajectory = append(trajectory, models.Step{Iteration: 0, Config: o.initial, Score: initialScore})

	if err := o.strategy.Init(run); err != nil {
		return nil, err
	}

	converged := false
	reason := ReasonMaxIterations
	for k := 0; k < o.maxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimization cancelled at iteration %d: %w", k, err)
		}
		run.State.Iteration = k

		out, err := o.strategy.Step(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", k, err)
		}

		if out.recorded {
			step := models.Step{Iteration: len(trajectory), Config: out.Config, Score: out.Score}
			trajectory = append(trajectory, step)
			log.Debug("iteration",
				"k", k,
				"candidate", out.Candidate.String(),
				"candidate_score", out.CandidateScore,
				"accepted", out.Accepted,
				"best_score", run.State.BestScore)
			if o.progress != nil {
				o.progress(step.Iteration, step.Score, run.State.BestScore)
			}
		}
		if out.halt {
			converged = true
			reason = out.reason
			break
		}
	}

	result := o.buildResult(run, params, trajectory, converged, reason, time.Since(startTime))
	log.Info("optimization finished",
		"best", result.Best.String(),
		"best_score", result.BestScore,
		"iterations", result.Iterations,
		"reason", result.ConvergenceReason,
		"runtime", result.Runtime)
	return result, nil
}

// buildResult constructs the optimization result
func (o *Optimizer) buildResult(run *Run, params models.Params, trajectory []models.Step, converged bool, reason string, runtime time.Duration) *models.Result {
	diagnostics := trajectoryDiagnostics(trajectory)
	for k, v := range o.strategy.Diagnostics() {
		diagnostics[k] = v
	}
	diagnostics["evaluations"] = float64(run.evaluations.Load())

	return &models.Result{
		ID:                o.runID,
		Algorithm:         o.strategy.Name(),
		Params:            params,
		Best:              run.State.Best,
		BestScore:         run.State.BestScore,
		Trajectory:        trajectory,
		Runtime:           runtime,
		Iterations:        len(trajectory) - 1,
		Converged:         converged,
		ConvergenceReason: reason,
		Diagnostics:       diagnostics,
	}
}
