package grpcclient

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/skin-check/internal/classifier"
)

// ClassifierServer is the server side of PredictMethod.
type ClassifierServer interface {
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: "skincheck.v1.Classifier",
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler:    predictHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClassifierServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterClassifierServer attaches srv to s.
func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&classifierServiceDesc, srv)
}

// CapabilityServer exposes a local capability to remote callers.
type CapabilityServer struct {
	capability classifier.Capability
	logger     *zap.Logger
}

// NewCapabilityServer wraps capability for serving over gRPC.
func NewCapabilityServer(capability classifier.Capability, logger *zap.Logger) *CapabilityServer {
	return &CapabilityServer{capability: capability, logger: logger.Named("model_server")}
}

// Predict implements ClassifierServer.
func (s *CapabilityServer) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tensor, err := DecodeTensor(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	probs, err := s.capability.Predict(ctx, tensor)
	if err != nil {
		s.logger.Error("prediction failed", zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	return EncodeProbabilities(probs)
}
