package tunerd

import (
	"context"
	"testing"
	"time"

	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
problem: {n1: 64, n2: 64, n3: 64}
initial: {opt_level: O3, simd: avx2, threads: 16, block1: 32, block2: 4, block3: 4}
algorithm:
  method: ghc
  max_iterations: 8
  seed: 7
`

// peakOracle scores configurations by closeness to O3 avx2 16 48 6 6
var peakOracle = improvement.OracleFunc(func(_ context.Context, cfg models.Configuration, _ models.ProblemSize) (float64, error) {
	score := 100.0
	abs := func(x int) float64 {
		if x < 0 {
			return float64(-x)
		}
		return float64(x)
	}
	score -= abs(cfg.Block1-48) / 16
	score -= abs(cfg.Block2 - 6)
	score -= abs(cfg.Block3 - 6)
	if cfg.SIMD != models.SIMDAVX2 {
		score -= 5
	}
	return score, nil
})

// blockingOracle never returns before the run is cancelled
var blockingOracle = improvement.OracleFunc(func(ctx context.Context, _ models.Configuration, _ models.ProblemSize) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
})

func staticOracles(o improvement.Oracle) OracleFactory {
	return func(*config.Config, string) (improvement.Oracle, error) {
		return o, nil
	}
}

type memorySink struct {
	saved []*models.Result
}

func (m *memorySink) Save(_ context.Context, res *models.Result) (string, error) {
	m.saved = append(m.saved, res)
	return "trial-" + string(rune('a'+len(m.saved)-1)), nil
}

func waitForStatus(t *testing.T, store *RunStore, runID string, want RunStatus) *RunRecord {
	t.Helper()
	var rec *RunRecord
	require.Eventually(t, func() bool {
		r, ok := store.Get(runID)
		if !ok {
			return false
		}
		rec = r
		return r.Run.Status == want
	}, 5*time.Second, 5*time.Millisecond, "run %s never reached %s", runID, want)
	return rec
}
