package results

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// ToProto converts a result into a protobuf Struct. The runtime is carried
// in its protojson Duration form, e.g. "1.500s".
func ToProto(res *models.Result) (*structpb.Struct, error) {
	if res == nil {
		return nil, fmt.Errorf("result is nil")
	}

	runtime, err := protojson.Marshal(durationpb.New(res.Runtime))
	if err != nil {
		return nil, fmt.Errorf("encode runtime: %w", err)
	}

	trajectory := make([]any, len(res.Trajectory))
	for i, step := range res.Trajectory {
		trajectory[i] = map[string]any{
			"iteration": step.Iteration,
			"config":    step.Config.String(),
			"score":     step.Score,
		}
	}

	params := make(map[string]any, len(res.Params))
	for k, v := range res.Params {
		params[k] = v
	}
	diagnostics := make(map[string]any, len(res.Diagnostics))
	for k, v := range res.Diagnostics {
		diagnostics[k] = v
	}

	s, err := structpb.NewStruct(map[string]any{
		"id":                 res.ID,
		"algorithm":          res.Algorithm,
		"params":             params,
		"best":               res.Best.String(),
		"best_score":         res.BestScore,
		"trajectory":         trajectory,
		"runtime":            unquote(string(runtime)),
		"iterations":         res.Iterations,
		"converged":          res.Converged,
		"convergence_reason": res.ConvergenceReason,
		"diagnostics":        diagnostics,
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return s, nil
}

// FromProto is the inverse of ToProto. Numeric params come back as float64.
func FromProto(s *structpb.Struct) (*models.Result, error) {
	if s == nil {
		return nil, fmt.Errorf("struct is nil")
	}
	fields := s.GetFields()

	best, err := models.ParseConfiguration(fields["best"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode best: %w", err)
	}
	runtime, err := decodeDuration(fields["runtime"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode runtime: %w", err)
	}

	res := &models.Result{
		ID:                fields["id"].GetStringValue(),
		Algorithm:         fields["algorithm"].GetStringValue(),
		Params:            models.Params(fields["params"].GetStructValue().AsMap()),
		Best:              best,
		BestScore:         fields["best_score"].GetNumberValue(),
		Runtime:           runtime,
		Iterations:        int(fields["iterations"].GetNumberValue()),
		Converged:         fields["converged"].GetBoolValue(),
		ConvergenceReason: fields["convergence_reason"].GetStringValue(),
	}

	if diag := fields["diagnostics"].GetStructValue(); diag != nil && len(diag.GetFields()) > 0 {
		res.Diagnostics = make(map[string]float64, len(diag.GetFields()))
		for k, v := range diag.GetFields() {
			res.Diagnostics[k] = v.GetNumberValue()
		}
	}

	for i, v := range fields["trajectory"].GetListValue().GetValues() {
		step := v.GetStructValue().GetFields()
		cfg, err := models.ParseConfiguration(step["config"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("decode step %d: %w", i, err)
		}
		res.Trajectory = append(res.Trajectory, models.Step{
			Iteration: int(step["iteration"].GetNumberValue()),
			Config:    cfg,
			Score:     step["score"].GetNumberValue(),
		})
	}
	return res, nil
}

// MarshalJSON renders a result through its protobuf form
func MarshalJSON(res *models.Result) ([]byte, error) {
	s, err := ToProto(res)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
}

// UnmarshalJSON parses what MarshalJSON produced
func UnmarshalJSON(data []byte) (*models.Result, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return FromProto(s)
}

func decodeDuration(text string) (time.Duration, error) {
	if text == "" {
		return 0, nil
	}
	d := &durationpb.Duration{}
	if err := protojson.Unmarshal([]byte(`"`+text+`"`), d); err != nil {
		return 0, err
	}
	if err := d.CheckValid(); err != nil {
		return 0, err
	}
	return d.AsDuration(), nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
