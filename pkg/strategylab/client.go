// Package strategylab is a Go SDK for the strategylab gRPC API.
package strategylab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "strategylab.v1.Backtest"

// Client provides a Go SDK for interacting with the strategylab-server API.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
}

// Dial connects to a strategylab server. Without options the connection is
// plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	c := NewClient(conn)
	c.closer = conn.Close
	return c, nil
}

// NewClient wraps an existing connection. Close does not close conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn, timeout: 5 * time.Minute}
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// RunBacktest runs one backtest on the server.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	var out BacktestResult
	if err := c.call(ctx, "RunBacktest", toWire(req), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunBatch runs several backtests concurrently on the server.
func (c *Client) RunBatch(ctx context.Context, reqs []BacktestRequest) (*BatchResult, error) {
	runs := make([]wireRequest, len(reqs))
	for i, r := range reqs {
		runs[i] = toWire(r)
	}
	var out BatchResult
	if err := c.call(ctx, "RunBatch", map[string]any{"runs": runs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComputeMetrics analyses an externally produced equity curve. benchmark
// may be nil.
func (c *Client) ComputeMetrics(ctx context.Context, curve, benchmark []EquityPoint) (*MetricsResult, error) {
	in := map[string]any{"curve": curve}
	if len(benchmark) > 0 {
		in["benchmark"] = benchmark
	}
	var out MetricsResult
	if err := c.call(ctx, "ComputeMetrics", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStrategies returns the strategy ids the server can run.
func (c *Client) ListStrategies(ctx context.Context) ([]string, error) {
	var out struct {
		Strategies []string `json:"strategies"`
	}
	if err := c.call(ctx, "ListStrategies", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

type wireRequest struct {
	StrategyID     string  `json:"strategy_id"`
	Ticker         string  `json:"ticker"`
	Params         Params  `json:"params"`
	Start          string  `json:"start"`
	End            string  `json:"end"`
	InitialCapital float64 `json:"initial_capital,omitempty"`
}

func toWire(r BacktestRequest) wireRequest {
	return wireRequest{
		StrategyID:     r.StrategyID,
		Ticker:         r.Ticker,
		Params:         r.Params,
		Start:          r.Start.UTC().Format(time.RFC3339Nano),
		End:            r.End.UTC().Format(time.RFC3339Nano),
		InitialCapital: r.InitialCapital,
	}
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", method, err)
	}
	req := new(structpb.Struct)
	if err := protojson.Unmarshal(data, req); err != nil {
		return fmt.Errorf("%s: encoding request: %w", method, err)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	data, err = protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	return nil
}
