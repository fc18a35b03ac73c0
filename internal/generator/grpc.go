package generator

import (
	"context"
	"fmt"

	"github.com/ChuLiYu/conflict-engine/internal/rpc"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCGenerator calls a remote SolutionGenerator service
type GRPCGenerator struct {
	client *rpc.SolutionGeneratorClient
}

// NewGRPCGenerator creates a generator over an established connection
func NewGRPCGenerator(conn grpc.ClientConnInterface) *GRPCGenerator {
	return &GRPCGenerator{client: rpc.NewSolutionGeneratorClient(conn)}
}

// Generate implements Generator
func (g *GRPCGenerator) Generate(ctx context.Context, conflicts []types.Conflict) (map[string][]types.Solution, error) {
	resp, err := g.client.Generate(ctx, rpc.GenerateRequest{
		ExecutionID: ExecutionID(ctx),
		Conflicts:   conflicts,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc generate failed: %w", err)
	}
	if resp.Solutions == nil {
		return map[string][]types.Solution{}, nil
	}
	return resp.Solutions, nil
}

// Server exposes any Generator as a SolutionGenerator service
type Server struct {
	gen Generator
}

// NewServer wraps gen
func NewServer(gen Generator) *Server {
	return &Server{gen: gen}
}

// Generate implements rpc.SolutionGeneratorServer
func (s *Server) Generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rpc.GenerateRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	solutions, err := s.gen.Generate(WithExecutionID(ctx, req.ExecutionID), req.Conflicts)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return rpc.Encode(rpc.GenerateResponse{Solutions: solutions})
}
