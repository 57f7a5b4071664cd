// Package rpc serves the engine's predictions over gRPC. Messages are
// google.protobuf.Struct values so no generated code is needed:
//
//	request:  {"input": [x1, x2, ...]}
//	response: {"weighted": [...], "intersection": [...], "union": [...],
//	           "consistency": c, "mode": "intersection"|"union",
//	           "decision": k, "matched": n}
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const (
	ServiceName   = "prbf.v1.Predictor"
	predictMethod = "/" + ServiceName + "/Predict"
)

// PredictorServer is the server API of the Predictor service.
type PredictorServer interface {
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Predictor service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "prbf/v1/predictor.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv PredictorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictorServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion service-desc
