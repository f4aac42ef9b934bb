// Package llmclient defines the StructuredLLM seam every LLM-driven
// pipeline node (Decomposer, ASTPlanner, Refiner, AnswerSynthesizer)
// consumes, plus concrete transports: a gRPC sidecar client mirroring the
// teacher's llm_grpc.go pattern, and an in-process langchaingo adapter.
// The core never parses free-form text: every call is structured,
// validated against a declared JSON response schema, with unknown
// fields rejected.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Request is one StructuredLLM call: a prompt plus the JSON schema the
// response must validate against.
type Request struct {
	Prompt         string
	ResponseSchema json.RawMessage
	// SchemaName labels the schema for transports that require a name
	// (e.g. OpenAI-style structured output / function-calling backends).
	SchemaName string
}

// StructuredLLM is the contract every LLM-driven node calls through.
// Implementations must reject additional properties not declared in the
// response schema — the core never falls back to free-text parsing.
type StructuredLLM interface {
	Invoke(ctx context.Context, req Request, into any) error
}

// ErrInvalidResponse wraps a transport's structured-output validation
// failure (malformed JSON, schema mismatch, extra fields).
type ErrInvalidResponse struct {
	Transport string
	Cause     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("llmclient: %s returned invalid structured response: %v", e.Transport, e.Cause)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Cause }

// DecodeStrict unmarshals raw into into, rejecting unknown fields — the
// Go-side half of "never tolerate extra fields" (the other half is the
// schema the transport sends the provider).
func DecodeStrict(raw []byte, into any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}
