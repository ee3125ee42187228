package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExporterCountsEvaluations(t *testing.T) {
	exp := NewExporter()
	calls := 0
	oracle := InstrumentOracle(improvement.OracleFunc(func(context.Context, models.Configuration, models.ProblemSize) (float64, error) {
		calls++
		if calls == 3 {
			return 0, errors.New("timeout")
		}
		return 1, nil
	}), NewCollector(), exp)

	size := models.ProblemSize{N1: 64, N2: 64, N3: 64}
	cfg := models.Configuration{OptLevel: models.OptLevelO3, SIMD: models.SIMDAVX512, Threads: 32, Block1: 64, Block2: 4, Block3: 4}
	for i := 0; i < 3; i++ {
		_, _ = oracle.Evaluate(context.Background(), cfg, size)
	}

	if got := testutil.ToFloat64(exp.evaluations.WithLabelValues("avx512", "ok")); got != 2 {
		t.Fatalf("expected 2 successful evaluations, got %f", got)
	}
	if got := testutil.ToFloat64(exp.evaluations.WithLabelValues("avx512", "error")); got != 1 {
		t.Fatalf("expected 1 failed evaluation, got %f", got)
	}
}

func TestExporterRunsAndHandler(t *testing.T) {
	exp := NewExporter()
	exp.RunStarted()
	exp.RunStarted()
	exp.RunFinished("completed")

	if got := testutil.ToFloat64(exp.activeRuns); got != 1 {
		t.Fatalf("expected 1 active run, got %f", got)
	}

	rr := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `autotune_runs_total{status="completed"} 1`) {
		t.Fatalf("runs counter missing from scrape:\n%s", rr.Body.String())
	}
}

func TestNilExporterIsNoop(t *testing.T) {
	var exp *Exporter
	exp.RunStarted()
	exp.RunFinished("failed")
	exp.observeEvaluation("sse", 1, nil)
}
