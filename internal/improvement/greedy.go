package improvement

import (
	"context"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// Greedy is steepest-ascent hill climbing: every neighbor of the best
// configuration is measured and the run stops at the first iteration whose
// best neighbor does not beat the best score.
type Greedy struct {
	neighborsEvaluated int
	moves              int
}

// NewGreedy creates a greedy hill climbing strategy
func NewGreedy() *Greedy {
	return &Greedy{}
}

func (g *Greedy) Name() string {
	return string(MethodGreedy)
}

func (g *Greedy) Params() models.Params {
	return models.Params{}
}

func (g *Greedy) Init(run *Run) error {
	return nil
}

func (g *Greedy) Step(ctx context.Context, run *Run) (StepOutcome, error) {
	st := &run.State
	neighbors := st.Neighbors
	if len(neighbors) == 0 {
		return haltWithoutStep(ReasonNoNeighbors), nil
	}

	scores, err := run.CostAll(ctx, neighbors)
	if err != nil {
		return StepOutcome{}, err
	}
	g.neighborsEvaluated += len(neighbors)

	idx := SelectBest(scores)
	selected, score := neighbors[idx], scores[idx]

	if score > st.BestScore {
		st.Best, st.BestScore = selected, score
		st.Current, st.CurrentScore = selected, score
		st.Neighbors = run.Neighbors(selected)
		g.moves++
		return recordStep(selected, score, selected, score, true), nil
	}

	out := recordStep(selected, score, selected, score, false)
	out.halt = true
	out.reason = ReasonLocalOptimum
	return out, nil
}

func (g *Greedy) Diagnostics() map[string]float64 {
	return map[string]float64{
		"neighbors_evaluated": float64(g.neighborsEvaluated),
		"moves":               float64(g.moves),
	}
}
