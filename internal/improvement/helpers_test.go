package improvement

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

var testSize = models.ProblemSize{N1: 256, N2: 256, N3: 256}

func testStart() models.Configuration {
	return models.DefaultConfiguration(testSize)
}

// peakScore is a separable landscape with its single maximum of 100 at
// (O3, avx2, *, 128, 6, 6)
func peakScore(cfg models.Configuration) float64 {
	score := 100.0
	if cfg.OptLevel != models.OptLevelO3 {
		score -= 5
	}
	if cfg.SIMD != models.SIMDAVX2 {
		score -= 3
	}
	score -= math.Abs(float64(cfg.Block1-128)) / 16
	score -= math.Abs(float64(cfg.Block2 - 6))
	score -= math.Abs(float64(cfg.Block3 - 6))
	return score
}

// countingOracle scores with fn and counts calls. Safe for concurrent use.
type countingOracle struct {
	fn    func(models.Configuration) float64
	calls atomic.Int64
}

func newCountingOracle(fn func(models.Configuration) float64) *countingOracle {
	return &countingOracle{fn: fn}
}

func (o *countingOracle) Evaluate(_ context.Context, cfg models.Configuration, _ models.ProblemSize) (float64, error) {
	o.calls.Add(1)
	return o.fn(cfg), nil
}

// scriptedRand replays fixed draws and then repeats the last one
type scriptedRand struct {
	ints   []int
	floats []float64
}

func (r *scriptedRand) Intn(n int) int {
	v := 0
	if len(r.ints) > 0 {
		v = r.ints[0]
		if len(r.ints) > 1 {
			r.ints = r.ints[1:]
		}
	}
	return v % n
}

func (r *scriptedRand) Float64() float64 {
	v := 0.0
	if len(r.floats) > 0 {
		v = r.floats[0]
		if len(r.floats) > 1 {
			r.floats = r.floats[1:]
		}
	}
	return v
}

// fixedExplorer returns the same neighbor list for every configuration
type fixedExplorer struct {
	neighbors []models.Configuration
}

func (e *fixedExplorer) Name() string { return "fixed" }

func (e *fixedExplorer) GenerateNeighbors(models.Configuration, models.ProblemSize) []models.Configuration {
	out := make([]models.Configuration, len(e.neighbors))
	copy(out, e.neighbors)
	return out
}
