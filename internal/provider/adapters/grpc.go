package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// ClassifyMethod is the full gRPC method name served by classifier sidecars.
const ClassifyMethod = "/gate.classifier.v1.Classifier/ClassifyYesNo"

// JSONCodec carries classifier messages as JSON over gRPC so sidecars need
// no generated stubs. Callers select it with grpc.CallContentSubtype.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// ClassifyRequest is the wire request of ClassifyMethod.
type ClassifyRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Input       string             `json:"input"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Trace       types.TraceContext `json:"trace"`
}

// ClassifyResponse is the wire response of ClassifyMethod. Text is nil when
// the model produced no text.
type ClassifyResponse struct {
	Text *string `json:"text"`
}

// GRPCAdapter calls a classifier sidecar over gRPC.
type GRPCAdapter struct {
	conn *grpc.ClientConn
}

// NewGRPCAdapter creates a client for the sidecar at cfg.Address. The
// connection is established lazily on first call.
func NewGRPCAdapter(cfg config.ProviderConfig) (*GRPCAdapter, error) {
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("classifier sidecar dial %s: %w", cfg.Address, err)
	}
	return &GRPCAdapter{conn: conn}, nil
}

// NewGRPCAdapterWithConn wraps an existing connection.
func NewGRPCAdapterWithConn(conn *grpc.ClientConn) *GRPCAdapter {
	return &GRPCAdapter{conn: conn}
}

func (a *GRPCAdapter) Name() string { return "grpc" }

func (a *GRPCAdapter) Complete(ctx context.Context, req *Request) (string, error) {
	in := &ClassifyRequest{
		Model:       req.Model,
		System:      req.System,
		Input:       req.Input,
		MaxTokens:   req.maxTokens(),
		Temperature: req.Temperature,
		Trace:       req.Trace,
	}
	out := &ClassifyResponse{}
	if err := a.conn.Invoke(ctx, ClassifyMethod, in, out, grpc.CallContentSubtype(JSONCodec{}.Name())); err != nil {
		return "", fmt.Errorf("classifier sidecar: %w", err)
	}
	if out.Text == nil {
		return "", fmt.Errorf("classifier sidecar: %w", classify.ErrNonText)
	}
	return *out.Text, nil
}

func (a *GRPCAdapter) Close() error {
	return a.conn.Close()
}
