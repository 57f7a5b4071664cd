package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/prbf/go-engine/internal/logging"
	"github.com/danielpatrickdp/prbf/go-engine/internal/matching"
	"github.com/danielpatrickdp/prbf/go-engine/internal/orchestrator"
)

var tracer = otel.Tracer("prbf.rpc")

var predictRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prbf_rpc_predict_requests_total",
		Help: "Predict calls by gRPC status code.",
	},
	[]string{"code"},
)

// #region server

// Predictor answers one input. *orchestrator.Runner implements it.
type Predictor interface {
	Predict(x []float64) (orchestrator.Prediction, error)
}

// Server implements PredictorServer on a single match set. Calls are
// serialized because a match set serves one state at a time.
type Server struct {
	mu        sync.Mutex
	predictor Predictor
	inputSize int
	logger    *slog.Logger
}

// NewServer returns a server that accepts inputs of inputSize values.
func NewServer(p Predictor, inputSize int, logger *slog.Logger) *Server {
	return &Server{
		predictor: p,
		inputSize: inputSize,
		logger:    logging.OrDefault(logger).With("component", "rpc"),
	}
}

// Predict implements PredictorServer.
func (s *Server) Predict(ctx context.Context, req *structpb.Struct) (resp *structpb.Struct, err error) {
	_, span := tracer.Start(ctx, "rpc.Predict")
	defer func() {
		code := status.Code(err)
		predictRequests.WithLabelValues(code.String()).Inc()
		span.SetAttributes(attribute.String("grpc.code", code.String()))
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	x, err := decodeInput(req, s.inputSize)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	pred, err := s.predictor.Predict(x)
	s.mu.Unlock()

	switch {
	case errors.Is(err, matching.ErrEmptyMatchSet):
		return nil, status.Error(codes.NotFound, "no classifier matches the input")
	case err != nil:
		s.logger.Error("predict failed", "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp, err = structpb.NewStruct(map[string]any{
		"weighted":     floatList(pred.Weighted),
		"intersection": floatList(pred.Fused.Intersection),
		"union":        floatList(pred.Fused.Union),
		"consistency":  pred.Fused.Consistency,
		"mode":         string(pred.Decision.Mode),
		"decision":     pred.Decision.Crisp,
		"matched":      pred.Matched,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// #endregion server

// #region helpers
func decodeInput(req *structpb.Struct, size int) ([]float64, error) {
	v, ok := req.GetFields()["input"]
	if !ok {
		return nil, errors.New("missing field input")
	}
	list := v.GetListValue()
	if list == nil {
		return nil, errors.New("input must be a list of numbers")
	}
	if size > 0 && len(list.GetValues()) != size {
		return nil, fmt.Errorf("input has %d values, want %d", len(list.GetValues()), size)
	}
	x := make([]float64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("input[%d] is not a number", i)
		}
		if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
			return nil, fmt.Errorf("input[%d] is not finite", i)
		}
		x[i] = n.NumberValue
	}
	return x, nil
}

func floatList(v []float64) []any {
	out := make([]any, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}

// #endregion helpers
