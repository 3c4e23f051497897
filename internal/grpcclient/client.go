package grpcclient

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/skin-check/internal/classifier"
	"github.com/example/skin-check/internal/logging"
)

// PredictMethod is the full gRPC method name served by inference hosts.
const PredictMethod = "/skincheck.v1.Classifier/Predict"

// DialClassifier returns a classification capability backed by a remote
// inference service.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*RemoteClassifier, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &RemoteClassifier{conn: conn, logger: logger}, conn, nil
}

// RemoteClassifier implements classifier.Capability over gRPC.
type RemoteClassifier struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// Predict sends the tensor and returns the remote probability vector.
func (r *RemoteClassifier) Predict(ctx context.Context, input classifier.Tensor) ([]float32, error) {
	req, err := EncodeTensor(input)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.encode_tensor", "", err)
	}

	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", "", err)
		r.logger.Error("remote classifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return DecodeProbabilities(resp)
}

// EncodeTensor packs a tensor as {shape, layout, data}, with data holding
// little-endian float32 values in base64.
func EncodeTensor(t classifier.Tensor) (*structpb.Struct, error) {
	shape := make([]any, len(t.Shape))
	for i, d := range t.Shape {
		shape[i] = float64(d)
	}
	buf := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return structpb.NewStruct(map[string]any{
		"shape":  shape,
		"layout": t.Layout.String(),
		"data":   base64.StdEncoding.EncodeToString(buf),
	})
}

// DecodeTensor reverses EncodeTensor.
func DecodeTensor(s *structpb.Struct) (classifier.Tensor, error) {
	fields := s.GetFields()
	layout, err := classifier.ParseLayout(fields["layout"].GetStringValue())
	if err != nil {
		return classifier.Tensor{}, err
	}

	var shape []int64
	expected := int64(1)
	for _, v := range fields["shape"].GetListValue().GetValues() {
		d := int64(v.GetNumberValue())
		shape = append(shape, d)
		expected *= d
	}

	raw, err := base64.StdEncoding.DecodeString(fields["data"].GetStringValue())
	if err != nil {
		return classifier.Tensor{}, fmt.Errorf("tensor data: %w", err)
	}
	if len(raw)%4 != 0 || len(shape) == 0 || int64(len(raw)/4) != expected {
		return classifier.Tensor{}, fmt.Errorf("tensor data has %d bytes for shape %v", len(raw), shape)
	}
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return classifier.Tensor{Shape: shape, Layout: layout, Data: data}, nil
}

// EncodeProbabilities packs a probability vector as {probabilities: [...]}.
func EncodeProbabilities(probs []float32) (*structpb.Struct, error) {
	values := make([]any, len(probs))
	for i, p := range probs {
		values[i] = float64(p)
	}
	return structpb.NewStruct(map[string]any{"probabilities": values})
}

// DecodeProbabilities reverses EncodeProbabilities.
func DecodeProbabilities(s *structpb.Struct) ([]float32, error) {
	list := s.GetFields()["probabilities"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("response has no probabilities")
	}
	probs := make([]float32, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		probs = append(probs, float32(v.GetNumberValue()))
	}
	return probs, nil
}
