package metrics

import (
	"context"
	"time"

	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// Metric names recorded by InstrumentOracle
const (
	EvaluationSeconds = "evaluation_seconds"
	EvaluationScore   = "evaluation_score"
	EvaluationErrors  = "evaluation_errors"
)

// ConfigurationLabels labels a sample with the build parameters of cfg
func ConfigurationLabels(cfg models.Configuration) map[string]string {
	return map[string]string{
		"opt_level": string(cfg.OptLevel),
		"simd":      string(cfg.SIMD),
	}
}

type instrumentedOracle struct {
	next      improvement.Oracle
	collector *Collector
	exporter  *Exporter
}

// InstrumentOracle wraps o so every evaluation records its wall time and
// score, or an error sample, into c. exp may be nil.
func InstrumentOracle(o improvement.Oracle, c *Collector, exp *Exporter) improvement.Oracle {
	return &instrumentedOracle{next: o, collector: c, exporter: exp}
}

func (i *instrumentedOracle) Evaluate(ctx context.Context, cfg models.Configuration, size models.ProblemSize) (float64, error) {
	start := time.Now()
	score, err := i.next.Evaluate(ctx, cfg, size)
	elapsed := time.Since(start).Seconds()
	labels := ConfigurationLabels(cfg)
	i.exporter.observeEvaluation(labels["simd"], elapsed, err)
	i.collector.Record(EvaluationSeconds, elapsed, start, labels)
	if err != nil {
		i.collector.Record(EvaluationErrors, 1, start, labels)
		return score, err
	}
	i.collector.Record(EvaluationScore, score, start, labels)
	return score, nil
}

// Summary is the evaluation report of one run
type Summary struct {
	StartTime   time.Time               `json:"start_time"`
	EndTime     time.Time               `json:"end_time,omitempty"`
	Evaluations int                     `json:"evaluations"`
	Errors      int                     `json:"errors"`
	Latency     *Aggregation            `json:"latency_seconds,omitempty"`
	Score       *Aggregation            `json:"score,omitempty"`
	ScoreBySIMD map[string]*Aggregation `json:"score_by_simd,omitempty"`
}

// Summarize builds the evaluation report from a collector fed by InstrumentOracle
func Summarize(c *Collector) *Summary {
	start, end := c.Window()
	s := &Summary{
		StartTime:   start,
		EndTime:     end,
		Latency:     c.AggregateAll(EvaluationSeconds),
		Score:       c.AggregateAll(EvaluationScore),
		ScoreBySIMD: c.AggregateBy(EvaluationScore, "simd"),
	}
	if s.Latency != nil {
		s.Evaluations = s.Latency.Count
	}
	if errs := c.AggregateAll(EvaluationErrors); errs != nil {
		s.Errors = errs.Count
	}
	return s
}
