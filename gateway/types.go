package gateway

import "encoding/json"

// GenerationRequest is the client body for POST /api/generate.
type GenerationRequest struct {
	Prompt  string         `json:"prompt"`
	Model   string         `json:"model,omitempty"`
	Stream  *bool          `json:"stream,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Streaming reports whether the client asked for a fragment stream.
// Omitting "stream" means true.
func (r *GenerationRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// GenerationResponse is the buffered-mode result.
type GenerationResponse struct {
	Response string `json:"response"`
}

// DownloadRequest is the client body for POST /api/models/download.
type DownloadRequest struct {
	LLMName string `json:"llm_name"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ModelsResponse wraps the upstream model entries verbatim.
type ModelsResponse struct {
	Models []json.RawMessage `json:"models"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
	Version  string `json:"version,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse is the JSON body of every gateway error.
type ErrorResponse struct {
	Error string `json:"error"`
}
