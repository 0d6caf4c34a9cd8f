package explain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ExplainMethod is the full gRPC method name served by the explanation
// generator. Requests and responses are google.protobuf.Struct messages.
const ExplainMethod = "/sanction.v1.Explainer/Explain"

// #region types
// Request is the payload handed to the explanation generator.
type Request struct {
	Metric  string
	Value   float64
	Context map[string]any // policy fields plus "country"
}

// ErrEmptyExplanation is returned when the generator answers without text.
var ErrEmptyExplanation = errors.New("explainer returned no explanation")

// #endregion types

// #region config
// Config holds the explainer endpoint settings.
type Config struct {
	Addr    string
	Timeout time.Duration
}

// DefaultConfig reads EXPLAINER_ADDR and EXPLAINER_TIMEOUT.
func DefaultConfig() Config {
	cfg := Config{Addr: "localhost:50061", Timeout: 30 * time.Second}
	if v := os.Getenv("EXPLAINER_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("EXPLAINER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}

// #endregion config

// #region client-struct
// Client wraps the gRPC connection to the explanation generator.
type Client struct {
	conn    *grpc.ClientConn
	cc      grpc.ClientConnInterface
	timeout time.Duration
}

// #endregion client-struct

// #region constructor
// NewClient connects to the explanation generator.
func NewClient(cfg Config) (*Client, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", cfg.Addr, err)
	}
	return &Client{conn: conn, cc: conn, timeout: cfg.Timeout}, nil
}

// NewClientWithConn creates a Client over an existing connection. Used for
// testing over an in-process transport.
func NewClientWithConn(cc grpc.ClientConnInterface, timeout time.Duration) *Client {
	return &Client{cc: cc, timeout: timeout}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the Client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region explain
// Explain sends one metric value with its policy context and returns the
// generated text as-is.
func (c *Client) Explain(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	in, err := structpb.NewStruct(map[string]any{
		"metric":  req.Metric,
		"value":   req.Value,
		"context": contextValue(req.Context),
	})
	if err != nil {
		return "", fmt.Errorf("encode explain request: %w", err)
	}

	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, ExplainMethod, in, out); err != nil {
		return "", fmt.Errorf("explain rpc: %w", err)
	}

	fields := out.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return "", fmt.Errorf("explainer: %s", msg)
	}
	text := fields["explanation"].GetStringValue()
	if text == "" {
		return "", ErrEmptyExplanation
	}
	return text, nil
}

func contextValue(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// #endregion explain
