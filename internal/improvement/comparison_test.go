package improvement

import (
	"math"
	"testing"
	"time"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

func result(id, algorithm string, score float64) *models.Result {
	return &models.Result{ID: id, Algorithm: algorithm, BestScore: score, Best: testStart(), Runtime: time.Second}
}

func TestCompareResults(t *testing.T) {
	r1 := result("a", "sa", 100)
	r2 := result("b", "sa", 110)
	r2.Iterations = 5

	cmp, err := CompareResults(r1, r2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmp.Improvement || cmp.ScoreDiff != 10 {
		t.Fatalf("expected improvement of 10, got %+v", cmp)
	}
	if math.Abs(cmp.ImprovementPct-10) > 1e-9 {
		t.Fatalf("expected 10%%, got %f", cmp.ImprovementPct)
	}
	if !cmp.SameBest || cmp.IterationsDiff != 5 {
		t.Fatalf("unexpected comparison %+v", cmp)
	}
	if !IsSignificantImprovement(cmp, 5) || IsSignificantImprovement(cmp, 15) {
		t.Fatal("significance threshold not applied")
	}

	if _, err := CompareResults(nil, r2); err == nil {
		t.Fatal("expected error for nil result")
	}
}

func TestCompareRunHistory(t *testing.T) {
	runs := []*models.Result{
		result("r1", "sa", 10),
		result("r2", "ghc", 20),
		result("r3", "sa", 30),
	}

	cmp, err := CompareRunHistory(runs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmp.BestRunID != "r3" || cmp.WorstRunID != "r1" {
		t.Fatalf("unexpected best/worst %s/%s", cmp.BestRunID, cmp.WorstRunID)
	}
	if cmp.ImprovementTrend != "improving" {
		t.Fatalf("expected improving trend, got %s", cmp.ImprovementTrend)
	}
	if cmp.AverageScore != 20 {
		t.Fatalf("expected mean 20, got %f", cmp.AverageScore)
	}
	if math.Abs(cmp.ScoreStdDev-10) > 1e-9 {
		t.Fatalf("expected sample std dev 10, got %f", cmp.ScoreStdDev)
	}

	sa := cmp.ByAlgorithm["sa"]
	if sa.Runs != 2 || sa.MeanScore != 20 || sa.MaxScore != 30 {
		t.Fatalf("unexpected sa stats %+v", sa)
	}
	if ghc := cmp.ByAlgorithm["ghc"]; ghc.StdDev != 0 {
		t.Fatalf("expected zero std dev for a single run, got %f", ghc.StdDev)
	}

	if _, err := CompareRunHistory(nil); err == nil {
		t.Fatal("expected error for no runs")
	}
}

func TestDetermineTrend(t *testing.T) {
	if got := determineTrend([]float64{5}); got != "stable" {
		t.Errorf("expected stable for one score, got %s", got)
	}
	if got := determineTrend([]float64{30, 20, 10}); got != "degrading" {
		t.Errorf("expected degrading, got %s", got)
	}
	if got := determineTrend([]float64{4, 4, 4}); got != "stable" {
		t.Errorf("expected stable, got %s", got)
	}
}
