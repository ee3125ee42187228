package improvement

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// ResultComparison compares two finished runs
type ResultComparison struct {
	RunID1          string
	RunID2          string
	ScoreDiff       float64 // BestScore of run2 minus run1
	Improvement     bool    // True if run2 found a better configuration
	ImprovementPct  float64
	IterationsDiff  int
	RuntimeDiffSecs float64
	SameBest        bool
}

// CompareResults compares the outcome of two runs. Scores are maximized.
func CompareResults(r1, r2 *models.Result) (*ResultComparison, error) {
	if r1 == nil {
		return nil, fmt.Errorf("result1 is nil")
	}
	if r2 == nil {
		return nil, fmt.Errorf("result2 is nil")
	}

	return &ResultComparison{
		RunID1:          r1.ID,
		RunID2:          r2.ID,
		ScoreDiff:       r2.BestScore - r1.BestScore,
		Improvement:     r2.BestScore > r1.BestScore,
		ImprovementPct:  GetImprovementPercentage(r1.BestScore, r2.BestScore),
		IterationsDiff:  r2.Iterations - r1.Iterations,
		RuntimeDiffSecs: r2.Runtime.Seconds() - r1.Runtime.Seconds(),
		SameBest:        r1.Best == r2.Best,
	}, nil
}

// RunHistoryComparison summarizes a set of runs, typically repeated trials
type RunHistoryComparison struct {
	BestRunID        string
	WorstRunID       string
	ImprovementTrend string // "improving", "degrading", "stable"
	AverageScore     float64
	ScoreStdDev      float64
	ByAlgorithm      map[string]AlgorithmStats
}

// AlgorithmStats aggregates best scores of the runs of one algorithm
type AlgorithmStats struct {
	Runs      int
	MeanScore float64
	StdDev    float64
	MaxScore  float64
}

// CompareRunHistory compares best scores across runs in the given order
func CompareRunHistory(runs []*models.Result) (*RunHistoryComparison, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs provided")
	}

	scores := make([]float64, len(runs))
	grouped := make(map[string][]float64)
	bestIdx, worstIdx := 0, 0
	for i, run := range runs {
		if run == nil {
			return nil, fmt.Errorf("run %d is nil", i)
		}
		scores[i] = run.BestScore
		grouped[run.Algorithm] = append(grouped[run.Algorithm], run.BestScore)
		if scores[i] > scores[bestIdx] {
			bestIdx = i
		}
		if scores[i] < scores[worstIdx] {
			worstIdx = i
		}
	}

	byAlgorithm := make(map[string]AlgorithmStats, len(grouped))
	for name, s := range grouped {
		byAlgorithm[name] = AlgorithmStats{
			Runs:      len(s),
			MeanScore: stat.Mean(s, nil),
			StdDev:    stdDev(s),
			MaxScore:  maxOf(s),
		}
	}

	return &RunHistoryComparison{
		BestRunID:        runs[bestIdx].ID,
		WorstRunID:       runs[worstIdx].ID,
		ImprovementTrend: determineTrend(scores),
		AverageScore:     stat.Mean(scores, nil),
		ScoreStdDev:      stdDev(scores),
		ByAlgorithm:      byAlgorithm,
	}, nil
}

// determineTrend fits a line through the scores; a positive slope is an improvement
func determineTrend(scores []float64) string {
	if len(scores) < 2 {
		return "stable"
	}

	xs := make([]float64, len(scores))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, scores, nil, false)

	if slope > 0.01 {
		return "improving"
	}
	if slope < -0.01 {
		return "degrading"
	}
	return "stable"
}

// stdDev is the sample standard deviation, zero for fewer than two values
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}

// GetImprovementPercentage calculates the relative gain of score2 over score1
func GetImprovementPercentage(score1, score2 float64) float64 {
	if score1 == 0 {
		return 0
	}
	return (score2 - score1) / math.Abs(score1) * 100
}

// IsSignificantImprovement reports whether run2 beats run1 by at least
// thresholdPercent
func IsSignificantImprovement(comparison *ResultComparison, thresholdPercent float64) bool {
	if comparison == nil || !comparison.Improvement {
		return false
	}
	return comparison.ImprovementPct >= thresholdPercent
}
