package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// LangchainClient implements StructuredLLM in-process via langchaingo's
// llms.Model, for embedding the engine without a gRPC sidecar (the CLI's
// demo mode). Grounded on the Zqzqsb-ReActSqlExp reference adapter's use
// of langchaingo for structured SQL-agent output.
type LangchainClient struct {
	model       llms.Model
	maxTokens   int
	temperature float64
}

// NewLangchainClient wraps an already-configured llms.Model.
func NewLangchainClient(model llms.Model, maxTokens int, temperature float64) *LangchainClient {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &LangchainClient{model: model, maxTokens: maxTokens, temperature: temperature}
}

// Invoke implements StructuredLLM by instructing the model, via a system
// preamble embedding the JSON schema, to return exactly one JSON object
// matching it, then strictly decoding the completion.
func (c *LangchainClient) Invoke(ctx context.Context, req Request, into any) error {
	prompt := req.Prompt
	if len(req.ResponseSchema) > 0 {
		prompt = fmt.Sprintf(
			"%s\n\nRespond with exactly one JSON object matching this schema. "+
				"Do not include any fields not declared in the schema, and do not "+
				"include any text outside the JSON object.\n\nSchema:\n%s",
			req.Prompt, string(req.ResponseSchema),
		)
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(c.temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		return fmt.Errorf("llmclient: langchaingo generate: %w", err)
	}

	var probe json.RawMessage
	if err := json.Unmarshal([]byte(completion), &probe); err != nil {
		return &ErrInvalidResponse{Transport: "langchaingo", Cause: err}
	}
	if err := DecodeStrict(probe, into); err != nil {
		return &ErrInvalidResponse{Transport: "langchaingo", Cause: err}
	}
	return nil
}
