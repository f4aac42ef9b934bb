package llmclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// rawCodec passes byte slices through verbatim, letting GRPCClient speak
// the llmv1.LLMStructuredService contract (see pkg/llmclient/proto/llm.proto)
// without a generated protobuf package — see that file's header comment
// for why none ships in this repository.
type rawCodec struct{}

func (rawCodec) Name() string { return "raw" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("llmclient: rawCodec.Marshal: unsupported type %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("llmclient: rawCodec.Unmarshal: unsupported type %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// GRPCClient implements StructuredLLM by calling an out-of-process LLM
// sidecar over gRPC, mirroring the teacher's GRPCLLMClient
// (pkg/agent/llm_grpc.go) sidecar pattern, generalized from a streaming
// chat RPC to a single structured-generation call.
type GRPCClient struct {
	conn   *grpc.ClientConn
	method string
}

// NewGRPCClient dials addr with insecure (plaintext) transport — the
// sidecar is expected to run colocated, same assumption the teacher's
// client makes.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithDefaultCallOptions(grpc.CallContentSubtype("raw")))
	if err != nil {
		return nil, fmt.Errorf("llmclient: dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, method: "/llmv1.LLMStructuredService/GenerateStructured"}, nil
}

// Invoke implements StructuredLLM.
func (c *GRPCClient) Invoke(ctx context.Context, req Request, into any) error {
	payload, err := encodeGenerateStructuredRequest(req)
	if err != nil {
		return fmt.Errorf("llmclient: encode request: %w", err)
	}

	var respBytes []byte
	if err := c.conn.Invoke(ctx, c.method, &payload, &respBytes); err != nil {
		return fmt.Errorf("llmclient: grpc invoke: %w", err)
	}

	result, errMsg, err := decodeGenerateStructuredResponse(respBytes)
	if err != nil {
		return &ErrInvalidResponse{Transport: "grpc", Cause: err}
	}
	if errMsg != "" {
		return fmt.Errorf("llmclient: sidecar error: %s", errMsg)
	}
	if err := DecodeStrict(result, into); err != nil {
		return &ErrInvalidResponse{Transport: "grpc", Cause: err}
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }
