// Package server exposes the orchestrator over gRPC.
//
// Input contract violations are rejected here, before a request reaches the
// engine, and engine errors are mapped to gRPC status codes:
//
//	types.ErrInvalidInput            -> InvalidArgument
//	types.ErrRunNotFound             -> NotFound
//	orchestrator.ErrSolutionNotFound -> NotFound
//	orchestrator.ErrRunExists        -> AlreadyExists
//	registry.ErrRunBusy              -> Aborted
//	orchestrator.ErrRunFailed        -> FailedPrecondition (feedback on a failed run)
//	orchestrator.ErrNoDataSource     -> Unavailable
//
// A run that fails during Analyze is not an RPC error: the response carries
// the failed stage and the run's error log.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
	"github.com/ChuLiYu/conflict-engine/internal/registry"
	"github.com/ChuLiYu/conflict-engine/internal/rpc"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

var log = slog.Default()

// Engine is the part of the orchestrator the server drives
type Engine interface {
	Analyze(ctx context.Context, req orchestrator.AnalysisRequest) (types.RunContext, error)
	SubmitFeedback(ctx context.Context, executionID string, in orchestrator.FeedbackInput) (orchestrator.FeedbackResult, error)
	Status(ctx context.Context, executionID string) (registry.Entry, error)
}

// Server implements rpc.ConflictEngineServer
type Server struct {
	engine Engine
}

// NewServer creates a server over engine
func NewServer(engine Engine) *Server {
	return &Server{engine: engine}
}

// NewGRPCServer builds a grpc.Server with the ConflictEngine service, the
// standard health service and request logging
func NewGRPCServer(engine Engine, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logRequests)}, opts...)
	s := grpc.NewServer(opts...)

	rpc.RegisterConflictEngineServer(s, NewServer(engine))

	hs := health.NewServer()
	hs.SetServingStatus(rpc.ConflictEngineService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

// Analyze handles conflictengine.v1.ConflictEngine/Analyze
func (s *Server) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.AnalyzeRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Query().Validate(); err != nil {
		return nil, toStatus(err)
	}
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return nil, toStatus(err)
		}
	}

	rc, err := s.engine.Analyze(ctx, orchestrator.AnalysisRequest{
		ExecutionID: req.ExecutionID,
		Query:       req.Query(),
		Weights:     req.Weights,
	})
	if err != nil && !errors.Is(err, orchestrator.ErrRunFailed) {
		return nil, toStatus(err)
	}

	return rpc.Encode(rpc.AnalyzeResponse{
		Summary:         rc.Summary(),
		Conflicts:       rc.Conflicts,
		RankedSolutions: rc.RankedSolutions,
		Errors:          rc.Errors,
	})
}

// SubmitFeedback handles conflictengine.v1.ConflictEngine/SubmitFeedback
func (s *Server) SubmitFeedback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.FeedbackRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.ExecutionID == "" {
		return nil, status.Error(codes.InvalidArgument, "execution_id is required")
	}
	fb := types.Feedback{
		SolutionID:    req.SolutionID,
		ManagerRating: req.ManagerRating,
		Outcome:       req.Outcome,
	}
	if err := fb.Validate(); err != nil {
		return nil, toStatus(err)
	}

	result, err := s.engine.SubmitFeedback(ctx, req.ExecutionID, orchestrator.FeedbackInput{
		SolutionID:    req.SolutionID,
		Accepted:      req.Accepted,
		ManagerRating: req.ManagerRating,
		Outcome:       req.Outcome,
		Context:       req.Context,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return rpc.Encode(rpc.FeedbackResponse{
		Summary:            result.Context.Summary(),
		EffectivenessScore: result.Feedback.EffectivenessScore,
		LoopedBack:         result.LoopedBack,
		RankedSolutions:    result.Context.RankedSolutions,
	})
}

// GetStatus handles conflictengine.v1.ConflictEngine/GetStatus
func (s *Server) GetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.StatusRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.ExecutionID == "" {
		return nil, status.Error(codes.InvalidArgument, "execution_id is required")
	}

	entry, err := s.engine.Status(ctx, req.ExecutionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Encode(rpc.StatusResponse{
		Status:    string(entry.Status),
		Summary:   entry.Summary,
		LastError: entry.LastError,
	})
}

// toStatus maps an engine error to a gRPC status error
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, types.ErrRunNotFound), errors.Is(err, orchestrator.ErrSolutionNotFound):
		code = codes.NotFound
	case errors.Is(err, orchestrator.ErrRunExists):
		code = codes.AlreadyExists
	case errors.Is(err, registry.ErrRunBusy):
		code = codes.Aborted
	case errors.Is(err, orchestrator.ErrRunFailed):
		code = codes.FailedPrecondition
	case errors.Is(err, orchestrator.ErrNoDataSource):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func logRequests(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
	if err != nil {
		log.Warn("rpc failed", append(attrs, "code", status.Code(err).String(), "error", err)...)
	} else {
		log.Debug("rpc served", attrs...)
	}
	return resp, err
}

// Compile-time check
var _ rpc.ConflictEngineServer = (*Server)(nil)
