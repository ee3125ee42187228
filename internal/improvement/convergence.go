package improvement

import (
	"math"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// plateauTolerance is the relative score spread under which trailing
// trajectory steps count as one plateau
const plateauTolerance = 0.001

// trajectoryDiagnostics summarizes how the score series settled: where its
// peak was, how long ago, and how long the trailing plateau is.
func trajectoryDiagnostics(steps []models.Step) map[string]float64 {
	diag := make(map[string]float64)
	if len(steps) == 0 {
		return diag
	}

	peak := math.Inf(-1)
	peakIteration := 0
	for i, step := range steps {
		if step.Score > peak {
			peak = step.Score
			peakIteration = i
		}
	}
	lastIteration := len(steps) - 1

	diag["peak_iteration"] = float64(peakIteration)
	diag["iterations_since_peak"] = float64(lastIteration - peakIteration)
	diag["plateau_length"] = float64(plateauLength(steps))
	return diag
}

// plateauLength counts the trailing steps whose scores stay within
// plateauTolerance (relative to the last score) of each other.
func plateauLength(steps []models.Step) int {
	last := steps[len(steps)-1].Score
	tolerance := plateauTolerance * math.Max(math.Abs(last), 1)

	minScore, maxScore := last, last
	n := 0
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i].Score
		lo := math.Min(minScore, s)
		hi := math.Max(maxScore, s)
		if hi-lo > tolerance {
			break
		}
		minScore, maxScore = lo, hi
		n++
	}
	return n
}
