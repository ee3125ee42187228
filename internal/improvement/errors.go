package improvement

import (
	"errors"
	"fmt"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

var (
	// ErrStalled is reported when every neighbor of the current configuration
	// is tabu. The run stops early with this as its convergence reason.
	ErrStalled = errors.New("stalled: every neighbor is tabu")

	// ErrAlreadyOptimized is returned by a second call to Optimize
	ErrAlreadyOptimized = errors.New("optimizer already ran")
)

// InvalidHyperparameterError indicates a rejected constructor argument
type InvalidHyperparameterError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidHyperparameterError) Error() string {
	return fmt.Sprintf("invalid hyperparameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

// EvaluationError wraps an oracle failure. It aborts the run.
type EvaluationError struct {
	Config models.Configuration
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of [%s] failed: %v", e.Config, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func invalidParam(name string, value any, format string, args ...any) error {
	return &InvalidHyperparameterError{Name: name, Value: value, Reason: fmt.Sprintf(format, args...)}
}
