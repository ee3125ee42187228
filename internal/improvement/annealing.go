package improvement

import (
	"context"
	"math"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// Annealing is the Metropolis state machine shared by plain, tabu and
// tunneling simulated annealing. Scores are maximized: a worse candidate is
// accepted with probability exp(-(E-E_new)/T).
//
// Acceptance and best tracking run on steering scores. They equal the raw
// oracle scores unless a tunneling transform is configured; the trajectory
// and the reported best always carry raw scores.
type Annealing struct {
	method   Method
	t0       float64
	schedule Schedule

	// optional variants
	tabuSize int
	tabu     *tabuList
	tunnel   CostFunction
	eTunnel  float64

	cooling     cooling
	temperature float64
	current     float64 // steering score of State.Current
	best        float64 // steering score of State.Best
	accepted    int
	rejected    int
}

func newAnnealing(method Method, t0 float64, decay string) (*Annealing, error) {
	if t0 < 0 || math.IsNaN(t0) || math.IsInf(t0, 0) {
		return nil, invalidParam("T0", t0, "must be a finite value >= 0")
	}
	schedule, err := ParseSchedule(decay)
	if err != nil {
		return nil, err
	}
	return &Annealing{method: method, t0: t0, schedule: schedule}, nil
}

// NewSimulatedAnnealing creates plain simulated annealing
func NewSimulatedAnnealing(t0 float64, decay string) (*Annealing, error) {
	return newAnnealing(MethodSA, t0, decay)
}

// NewTabuSA creates simulated annealing that never samples one of the last
// tabuSize best configurations. A size of zero disables the list.
func NewTabuSA(t0 float64, decay string, tabuSize int) (*Annealing, error) {
	if tabuSize < 0 {
		return nil, invalidParam("tabu_size", tabuSize, "must be >= 0")
	}
	a, err := newAnnealing(MethodTabuSA, t0, decay)
	if err != nil {
		return nil, err
	}
	a.tabuSize = tabuSize
	return a, nil
}

// NewTunnelingSA creates simulated annealing steered by a tunneling transform
// of the raw score around eTunnel.
func NewTunnelingSA(t0 float64, decay, costFun string, eTunnel float64) (*Annealing, error) {
	if math.IsNaN(eTunnel) || math.IsInf(eTunnel, 0) {
		return nil, invalidParam("E_tunnel", eTunnel, "must be finite")
	}
	cf, err := ParseCostFunction(costFun)
	if err != nil {
		return nil, err
	}
	a, err := newAnnealing(MethodTunnelingSA, t0, decay)
	if err != nil {
		return nil, err
	}
	a.tunnel = cf
	a.eTunnel = eTunnel
	return a, nil
}

func (a *Annealing) Name() string {
	return string(a.method)
}

func (a *Annealing) Params() models.Params {
	params := models.Params{
		"T0":         a.t0,
		"temp_decay": a.schedule.String(),
	}
	switch a.method {
	case MethodTabuSA:
		params["tabu_size"] = a.tabuSize
	case MethodTunnelingSA:
		params["cost_fun"] = a.tunnel.String()
		params["E_tunnel"] = a.eTunnel
	}
	return params
}

func (a *Annealing) Init(run *Run) error {
	st := &run.State
	a.cooling = newCooling(a.schedule, a.t0, st.MaxIterations)
	a.temperature = a.t0
	a.current = a.steer(st.CurrentScore)
	a.best = a.current
	if a.method == MethodTabuSA {
		a.tabu = newTabuList(a.tabuSize)
		a.tabu.push(st.Best)
	}
	return nil
}

// steer maps a raw score to the score the acceptance rule works on
func (a *Annealing) steer(raw float64) float64 {
	if a.tunnel == 0 {
		return raw
	}
	return a.tunnel.Transform(raw, a.eTunnel)
}

// metropolis decides acceptance of a candidate with steering score e.
// One uniform draw is consumed whenever e does not strictly improve, also
// at T <= 0 where the answer is always no.
func (a *Annealing) metropolis(e float64, rng Rand) bool {
	if e > a.current {
		return true
	}
	u := rng.Float64()
	if a.temperature <= 0 {
		return false
	}
	return u < math.Exp(-(a.current-e)/a.temperature)
}

func (a *Annealing) Step(ctx context.Context, run *Run) (StepOutcome, error) {
	st := &run.State

	candidates := st.Neighbors
	if len(candidates) == 0 {
		return haltWithoutStep(ReasonNoNeighbors), nil
	}
	if a.tabu != nil {
		candidates = a.tabu.allowed(candidates)
		if len(candidates) == 0 {
			run.Logger().Warn("tabu list covers the whole neighborhood", "error", ErrStalled, "current", st.Current.String())
			return haltWithoutStep(ReasonStalled), nil
		}
	}

	candidate := candidates[run.Rand().Intn(len(candidates))]
	raw, err := run.Cost(ctx, candidate)
	if err != nil {
		return StepOutcome{}, err
	}
	e := a.steer(raw)

	accepted := a.metropolis(e, run.Rand())
	if accepted {
		a.accepted++
		st.Current, st.CurrentScore = candidate, raw
		a.current = e
		st.Neighbors = run.Neighbors(candidate)
		if e > a.best {
			st.Best, st.BestScore = candidate, raw
			a.best = e
			if a.tabu != nil {
				a.tabu.push(candidate)
			}
		}
	} else {
		a.rejected++
	}

	a.temperature = a.cooling.at(st.Iteration)
	return recordStep(st.Current, st.CurrentScore, candidate, raw, accepted), nil
}

// Temperature returns the temperature the next iteration will use
func (a *Annealing) Temperature() float64 {
	return a.temperature
}

// TabuList returns a copy of the tabu list, oldest first
func (a *Annealing) TabuList() []models.Configuration {
	if a.tabu == nil {
		return nil
	}
	return a.tabu.snapshot()
}

func (a *Annealing) Diagnostics() map[string]float64 {
	diag := map[string]float64{
		"final_temperature": a.temperature,
		"accepted":          float64(a.accepted),
		"rejected":          float64(a.rejected),
	}
	if a.tabu != nil {
		diag["tabu_entries"] = float64(a.tabu.len())
	}
	if a.method == MethodTunnelingSA {
		diag["best_transformed_score"] = a.best
	}
	return diag
}
