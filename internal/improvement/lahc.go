package improvement

import (
	"context"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// LateAcceptance is late acceptance hill climbing. A candidate is accepted
// when it beats the score recorded Lh iterations earlier in a circular
// history, or when it is at least as good as the current score.
type LateAcceptance struct {
	length  int
	fitness []float64

	idle     int
	maxIdle  int
	accepted int
}

// NewLAHC creates late acceptance hill climbing with a history of lh slots
func NewLAHC(lh int) (*LateAcceptance, error) {
	if lh <= 0 {
		return nil, invalidParam("Lh", lh, "must be > 0")
	}
	return &LateAcceptance{length: lh}, nil
}

func (l *LateAcceptance) Name() string {
	return string(MethodLAHC)
}

func (l *LateAcceptance) Params() models.Params {
	return models.Params{"Lh": l.length}
}

func (l *LateAcceptance) Init(run *Run) error {
	l.fitness = make([]float64, l.length)
	for i := range l.fitness {
		l.fitness[i] = run.State.BestScore
	}
	return nil
}

func (l *LateAcceptance) Step(ctx context.Context, run *Run) (StepOutcome, error) {
	st := &run.State
	if len(st.Neighbors) == 0 {
		return haltWithoutStep(ReasonNoNeighbors), nil
	}

	candidate := st.Neighbors[run.Rand().Intn(len(st.Neighbors))]
	score, err := run.Cost(ctx, candidate)
	if err != nil {
		return StepOutcome{}, err
	}

	if score <= st.CurrentScore {
		l.idle++
		if l.idle > l.maxIdle {
			l.maxIdle = l.idle
		}
	} else {
		l.idle = 0
	}

	v := st.Iteration % l.length
	accepted := score > l.fitness[v] || score >= st.CurrentScore
	if accepted {
		l.accepted++
		st.Current, st.CurrentScore = candidate, score
		st.Neighbors = run.Neighbors(candidate)
		if score >= st.BestScore {
			st.Best, st.BestScore = candidate, score
		}
	}
	if score > l.fitness[v] {
		l.fitness[v] = score
	}

	return recordStep(st.Current, st.CurrentScore, candidate, score, accepted), nil
}

// IdleIterations returns the current run of consecutive non-improving draws
func (l *LateAcceptance) IdleIterations() int {
	return l.idle
}

// History returns a copy of the fitness history buffer
func (l *LateAcceptance) History() []float64 {
	out := make([]float64, len(l.fitness))
	copy(out, l.fitness)
	return out
}

func (l *LateAcceptance) Diagnostics() map[string]float64 {
	return map[string]float64{
		"idle_iterations":     float64(l.idle),
		"max_idle_iterations": float64(l.maxIdle),
		"accepted":            float64(l.accepted),
	}
}
