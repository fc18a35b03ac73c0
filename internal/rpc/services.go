package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully-qualified method names
const (
	ConflictEngineService    = "conflictengine.v1.ConflictEngine"
	SolutionGeneratorService = "conflictengine.v1.SolutionGenerator"

	AnalyzeMethod        = "/" + ConflictEngineService + "/Analyze"
	SubmitFeedbackMethod = "/" + ConflictEngineService + "/SubmitFeedback"
	GetStatusMethod      = "/" + ConflictEngineService + "/GetStatus"
	GenerateMethod       = "/" + SolutionGeneratorService + "/Generate"
)

// ============================================================================
// ConflictEngine service
// ============================================================================

// ConflictEngineServer is implemented by the engine's transport adapter
type ConflictEngineServer interface {
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SubmitFeedback(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ConflictEngineServiceDesc describes the ConflictEngine service for grpc.Server
var ConflictEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ConflictEngineService,
	HandlerType: (*ConflictEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: unary(AnalyzeMethod, func(srv interface{}) unaryFunc {
			return srv.(ConflictEngineServer).Analyze
		})},
		{MethodName: "SubmitFeedback", Handler: unary(SubmitFeedbackMethod, func(srv interface{}) unaryFunc {
			return srv.(ConflictEngineServer).SubmitFeedback
		})},
		{MethodName: "GetStatus", Handler: unary(GetStatusMethod, func(srv interface{}) unaryFunc {
			return srv.(ConflictEngineServer).GetStatus
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "conflictengine/v1/engine.proto",
}

// RegisterConflictEngineServer registers srv on s
func RegisterConflictEngineServer(s grpc.ServiceRegistrar, srv ConflictEngineServer) {
	s.RegisterService(&ConflictEngineServiceDesc, srv)
}

// ============================================================================
// SolutionGenerator service
// ============================================================================

// SolutionGeneratorServer produces candidate solutions for conflicts
type SolutionGeneratorServer interface {
	Generate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// SolutionGeneratorServiceDesc describes the SolutionGenerator service
var SolutionGeneratorServiceDesc = grpc.ServiceDesc{
	ServiceName: SolutionGeneratorService,
	HandlerType: (*SolutionGeneratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: unary(GenerateMethod, func(srv interface{}) unaryFunc {
			return srv.(SolutionGeneratorServer).Generate
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "conflictengine/v1/generator.proto",
}

// RegisterSolutionGeneratorServer registers srv on s
func RegisterSolutionGeneratorServer(s grpc.ServiceRegistrar, srv SolutionGeneratorServer) {
	s.RegisterService(&SolutionGeneratorServiceDesc, srv)
}

// ============================================================================
// Handler plumbing
// ============================================================================

type unaryFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unary builds a grpc method handler that decodes a Struct and dispatches
// through the interceptor chain
func unary(fullMethod string, bind func(srv interface{}) unaryFunc) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := bind(srv)
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ============================================================================
// Clients
// ============================================================================

// ConflictEngineClient calls a remote ConflictEngine service
type ConflictEngineClient struct {
	conn grpc.ClientConnInterface
}

// NewConflictEngineClient wraps an established connection
func NewConflictEngineClient(conn grpc.ClientConnInterface) *ConflictEngineClient {
	return &ConflictEngineClient{conn: conn}
}

// Analyze starts an analysis
func (c *ConflictEngineClient) Analyze(ctx context.Context, req AnalyzeRequest, opts ...grpc.CallOption) (AnalyzeResponse, error) {
	var resp AnalyzeResponse
	err := invoke(ctx, c.conn, AnalyzeMethod, req, &resp, opts...)
	return resp, err
}

// SubmitFeedback submits a verdict on a ranked solution
func (c *ConflictEngineClient) SubmitFeedback(ctx context.Context, req FeedbackRequest, opts ...grpc.CallOption) (FeedbackResponse, error) {
	var resp FeedbackResponse
	err := invoke(ctx, c.conn, SubmitFeedbackMethod, req, &resp, opts...)
	return resp, err
}

// GetStatus fetches the state of an execution id
func (c *ConflictEngineClient) GetStatus(ctx context.Context, req StatusRequest, opts ...grpc.CallOption) (StatusResponse, error) {
	var resp StatusResponse
	err := invoke(ctx, c.conn, GetStatusMethod, req, &resp, opts...)
	return resp, err
}

// SolutionGeneratorClient calls a remote SolutionGenerator service
type SolutionGeneratorClient struct {
	conn grpc.ClientConnInterface
}

// NewSolutionGeneratorClient wraps an established connection
func NewSolutionGeneratorClient(conn grpc.ClientConnInterface) *SolutionGeneratorClient {
	return &SolutionGeneratorClient{conn: conn}
}

// Generate requests candidate solutions
func (c *SolutionGeneratorClient) Generate(ctx context.Context, req GenerateRequest, opts ...grpc.CallOption) (GenerateResponse, error) {
	var resp GenerateResponse
	err := invoke(ctx, c.conn, GenerateMethod, req, &resp, opts...)
	return resp, err
}

func invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	return Decode(out, resp)
}
