package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region types
// Result is a decoded Predict response.
type Result struct {
	Weighted     []float64
	Intersection []float64
	Union        []float64
	Consistency  float64
	Mode         string
	Decision     int
	Matched      int
}

// #endregion types

// #region client-struct
// Client calls a remote Predictor service.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to a Predictor server.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client on an existing connection.
// Used for testing.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down a connection opened by NewClient.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region predict
// Predict sends x and decodes the fused answer.
func (c *Client) Predict(ctx context.Context, x []float64) (Result, error) {
	req, err := structpb.NewStruct(map[string]any{"input": floatList(x)})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, predictMethod, req, out); err != nil {
		return Result{}, fmt.Errorf("predict rpc: %w", err)
	}

	f := out.GetFields()
	return Result{
		Weighted:     numbers(f["weighted"]),
		Intersection: numbers(f["intersection"]),
		Union:        numbers(f["union"]),
		Consistency:  f["consistency"].GetNumberValue(),
		Mode:         f["mode"].GetStringValue(),
		Decision:     int(f["decision"].GetNumberValue()),
		Matched:      int(f["matched"].GetNumberValue()),
	}, nil
}

// #endregion predict

// #region helpers
func numbers(v *structpb.Value) []float64 {
	values := v.GetListValue().GetValues()
	out := make([]float64, len(values))
	for i, item := range values {
		out[i] = item.GetNumberValue()
	}
	return out
}

// #endregion helpers
