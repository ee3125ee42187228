package tunerd

import (
	"context"
	"errors"
	"strings"

	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// TunerGRPCServer implements TunerServiceServer on top of a RunStore
type TunerGRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
}

var _ TunerServiceServer = (*TunerGRPCServer)(nil)

func NewTunerGRPCServer(store *RunStore, executor *RunExecutor) *TunerGRPCServer {
	return &TunerGRPCServer{
		store:    store,
		Executor: executor,
	}
}

// StartRun registers and starts a run. Request fields: run_id (optional),
// config_yaml, objective, callback_url, callback_secret.
func (s *TunerGRPCServer) StartRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	input := &RunInput{
		ConfigYAML:     stringField(req, "config_yaml"),
		Objective:      stringField(req, "objective"),
		CallbackURL:    stringField(req, "callback_url"),
		CallbackSecret: stringField(req, "callback_secret"),
	}
	if err := validateObjective(input.Objective); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.store.Create(stringField(req, "run_id"), input)
	if err != nil {
		if errors.Is(err, ErrRunExists) {
			return nil, status.Error(codes.AlreadyExists, err.Error())
		}
		if strings.Contains(err.Error(), "cannot contain") {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	started, err := s.Executor.Start(rec.Run.ID)
	if err != nil {
		return nil, executorStatus(err)
	}
	logger.Info("run started (gRPC)", "run_id", rec.Run.ID)
	return runResponse(started)
}

func (s *TunerGRPCServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	return runResponse(rec)
}

func (s *TunerGRPCServer) StopRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		return nil, executorStatus(err)
	}
	logger.Info("run cancelled (gRPC)", "run_id", runID)
	return runResponse(updated)
}

func executorStatus(err error) error {
	switch {
	case errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunIDMissing):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// runResponse wraps a run, and its best configuration once known, as {"run": {...}}
func runResponse(rec *RunRecord) (*structpb.Struct, error) {
	run := map[string]any{
		"id":                 rec.Run.ID,
		"status":             string(rec.Run.Status),
		"method":             rec.Run.Method,
		"created_at_unix_ms": rec.Run.CreatedAtUnixMs,
		"started_at_unix_ms": rec.Run.StartedAtUnixMs,
		"ended_at_unix_ms":   rec.Run.EndedAtUnixMs,
		"error":              rec.Run.Error,
		"iteration":          rec.Run.Iteration,
		"current_score":      rec.Run.CurrentScore,
		"best_score":         rec.Run.BestScore,
		"result_id":          rec.Run.ResultID,
	}
	if rec.Result != nil {
		run["best"] = rec.Result.Best.String()
		run["converged"] = rec.Result.Converged
		run["convergence_reason"] = rec.Result.ConvergenceReason
	}
	out, err := structpb.NewStruct(map[string]any{"run": run})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
