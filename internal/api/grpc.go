package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"strategylab/internal/backtest"
)

// BacktestServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct values carrying the same JSON documents as the HTTP
// API.
const BacktestServiceName = "strategylab.v1.Backtest"

// BacktestServiceServer is the server side of the Backtest service.
type BacktestServiceServer interface {
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ComputeMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// BacktestServiceDesc describes the Backtest service for grpc.Server.
var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*BacktestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunBacktest", Handler: unaryHandler("RunBacktest", BacktestServiceServer.RunBacktest)},
		{MethodName: "RunBatch", Handler: unaryHandler("RunBatch", BacktestServiceServer.RunBatch)},
		{MethodName: "ComputeMetrics", Handler: unaryHandler("ComputeMetrics", BacktestServiceServer.ComputeMetrics)},
		{MethodName: "ListStrategies", Handler: unaryHandler("ListStrategies", BacktestServiceServer.ListStrategies)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "strategylab/v1/backtest.proto",
}

// RegisterBacktestService registers srv on gs.
func RegisterBacktestService(gs grpc.ServiceRegistrar, srv BacktestServiceServer) {
	gs.RegisterService(&BacktestServiceDesc, srv)
}

type unaryMethod func(BacktestServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + BacktestServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BacktestServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BacktestServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// grpcService adapts Server to BacktestServiceServer.
type grpcService struct {
	s *Server
}

var _ BacktestServiceServer = grpcService{}

func (g grpcService) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body BacktestRequest
	if err := decodeStruct(in, &body); err != nil {
		return nil, err
	}
	req, err := body.toRequest(g.s.defaultCapital)
	if err != nil {
		return nil, g.status(err)
	}
	res, err := g.s.backtester.Run(ctx, req)
	if err != nil {
		return nil, g.status(err)
	}
	return encodeStruct(res)
}

func (g grpcService) RunBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body BatchRequest
	if err := decodeStruct(in, &body); err != nil {
		return nil, err
	}
	reqs := make([]backtest.Request, 0, len(body.Runs))
	for _, run := range body.Runs {
		req, err := run.toRequest(g.s.defaultCapital)
		if err != nil {
			return nil, g.status(err)
		}
		reqs = append(reqs, req)
	}
	items, summary, err := g.s.backtester.RunBatch(ctx, reqs)
	if err != nil {
		return nil, g.status(err)
	}
	return encodeStruct(BatchResponse{Items: items, Summary: summary})
}

func (g grpcService) ComputeMetrics(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body MetricsRequest
	if err := decodeStruct(in, &body); err != nil {
		return nil, err
	}
	resp, err := g.s.computeMetrics(body)
	if err != nil {
		return nil, g.status(err)
	}
	return encodeStruct(resp)
}

func (g grpcService) ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return encodeStruct(StrategiesResponse{Strategies: g.s.backtester.Strategies()})
}

func (g grpcService) status(err error) error {
	class := classify(err)
	if class.grpc == codes.Internal {
		g.s.log.Error("grpc call failed", "error", err)
	}
	return status.Error(class.grpc, err.Error())
}

// decodeStruct converts a Struct into v through its JSON form and applies
// the same validation as the HTTP binding.
func decodeStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	if err := binding.Validator.ValidateStruct(v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encoding response: %v", err))
	}
	return out, nil
}
