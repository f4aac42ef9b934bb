package llmclient

import "encoding/json"

// wireRequest/wireResponse are JSON-shaped mirrors of the
// GenerateStructuredRequest/Response messages in
// pkg/llmclient/proto/llm.proto. The rawCodec ships them as JSON bytes
// over the gRPC transport in lieu of generated protobuf marshaling.
type wireRequest struct {
	Prompt             string `json:"prompt"`
	ResponseSchemaJSON string `json:"response_schema_json,omitempty"`
	SchemaName         string `json:"schema_name,omitempty"`
	TraceID            string `json:"trace_id,omitempty"`
}

type wireResponse struct {
	ResultJSON   string `json:"result_json,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
}

func encodeGenerateStructuredRequest(req Request) ([]byte, error) {
	return json.Marshal(wireRequest{
		Prompt:             req.Prompt,
		ResponseSchemaJSON: string(req.ResponseSchema),
		SchemaName:         req.SchemaName,
	})
}

func decodeGenerateStructuredResponse(raw []byte) (result json.RawMessage, errMessage string, err error) {
	var w wireResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, "", err
	}
	if w.ErrorMessage != "" {
		return nil, w.ErrorMessage, nil
	}
	return json.RawMessage(w.ResultJSON), "", nil
}
