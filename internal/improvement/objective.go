package improvement

import (
	"context"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// Oracle measures the quality of a configuration. Higher scores are better.
//
// Implementations may be slow and noisy: two calls with the same
// configuration can return different values, so callers never memoize.
// A failed measurement returns an error.
type Oracle interface {
	Evaluate(ctx context.Context, cfg models.Configuration, size models.ProblemSize) (float64, error)
}

// OracleFunc adapts a plain function to the Oracle interface
type OracleFunc func(ctx context.Context, cfg models.Configuration, size models.ProblemSize) (float64, error)

// Evaluate calls f
func (f OracleFunc) Evaluate(ctx context.Context, cfg models.Configuration, size models.ProblemSize) (float64, error) {
	return f(ctx, cfg, size)
}
