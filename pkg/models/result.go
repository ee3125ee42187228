package models

import "time"

// Step is one trajectory entry: the configuration held after an iteration and
// its raw oracle score.
type Step struct {
	Iteration int           `json:"iteration"`
	Config    Configuration `json:"config"`
	Score     float64       `json:"score"`
}

// Params is the flattened hyperparameter record of a run. Values are limited
// to strings, float64, int and bool so every persistence layer can store them.
type Params map[string]any

// Clone returns a shallow copy, enough since values are primitives
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value for key if it is a string
func (p Params) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Result is the immutable record of a finished optimization run
type Result struct {
	ID                string             `json:"id,omitempty"`
	Algorithm         string             `json:"algorithm"`
	Params            Params             `json:"params"`
	Best              Configuration      `json:"best"`
	BestScore         float64            `json:"best_score"`
	Trajectory        []Step             `json:"trajectory"`
	Runtime           time.Duration      `json:"runtime"`
	Iterations        int                `json:"iterations"`
	Converged         bool               `json:"converged"`
	ConvergenceReason string             `json:"convergence_reason,omitempty"`
	Diagnostics       map[string]float64 `json:"diagnostics,omitempty"`
}

// Scores returns the raw score series of the trajectory
func (r *Result) Scores() []float64 {
	out := make([]float64, len(r.Trajectory))
	for i, s := range r.Trajectory {
		out[i] = s.Score
	}
	return out
}
