package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/upstream"
	"github.com/papercomputeco/lmgate/pkg/utils"
)

const previewLen = 120

var (
	generateToolName    = "generate"
	generateDescription = "Generate text with a locally hosted language model. Returns the full response once the model has finished."

	listModelsToolName    = "list_models"
	listModelsDescription = "List the models available on the language-model server."

	recentToolName    = "recent_generations"
	recentDescription = "List the most recent generations recorded by the gateway, newest first, with truncated prompts."
)

// GenerateInput represents the input arguments for the generate tool.
type GenerateInput struct {
	Prompt string `json:"prompt" jsonschema:"the prompt to send to the model"`
	Model  string `json:"model,omitempty" jsonschema:"the model to use (default: the gateway's default model)"`
}

// GenerateOutput represents the output of the generate tool.
type GenerateOutput struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Fragments int    `json:"fragments"`
}

// ListModelsInput is empty; list_models takes no arguments.
type ListModelsInput struct{}

// ListModelsOutput represents the output of the list_models tool.
type ListModelsOutput struct {
	Models []map[string]any `json:"models,omitempty"`
	Count  int              `json:"count"`
}

// RecentInput represents the input arguments for the recent_generations tool.
type RecentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of generations to return (default: 10)"`
}

// GenerationSummary is one row of recent_generations.
type GenerationSummary struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Status     string `json:"status"`
	Streaming  bool   `json:"streaming"`
	Prompt     string `json:"prompt"`
	Fragments  int    `json:"fragments"`
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
}

// RecentOutput represents the output of the recent_generations tool.
type RecentOutput struct {
	Generations []GenerationSummary `json:"generations,omitempty"`
	Count       int                 `json:"count"`
}

// handleGenerate runs a buffered generation against the upstream.
func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	logger := s.config.Logger

	if input.Prompt == "" {
		return errorResult("prompt is required"), GenerateOutput{}, nil
	}

	model := input.Model
	if model == "" {
		model = s.config.DefaultModel
	}

	logger.Debug("MCP generate request", "model", model)

	body, err := s.config.Upstream.Generate(ctx, upstream.GenerateRequest{
		Model:  model,
		Prompt: input.Prompt,
	}, nil)
	if err != nil {
		logger.Error("MCP generate failed", "model", model, "error", err)
		return errorResult(fmt.Sprintf("Generation failed: %v", err)), GenerateOutput{}, nil
	}
	defer body.Close()

	response, stats, err := s.config.Relay.Drain(ctx, body)
	if err != nil {
		logger.Error("MCP generate stream failed", "model", model, "error", err)
		return errorResult(fmt.Sprintf("Generation stream failed: %v", err)), GenerateOutput{}, nil
	}

	output := GenerateOutput{
		Model:     model,
		Response:  response,
		Fragments: stats.Fragments,
	}
	return jsonResult(output), output, nil
}

// handleListModels returns the upstream's model entries.
func (s *Server) handleListModels(ctx context.Context, _ *mcp.CallToolRequest, _ ListModelsInput) (*mcp.CallToolResult, ListModelsOutput, error) {
	raw, err := s.config.Upstream.ListModels(ctx)
	if err != nil {
		s.config.Logger.Error("MCP list models failed", "error", err)
		return errorResult(fmt.Sprintf("Failed to list models: %v", err)), ListModelsOutput{}, nil
	}

	models := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		var m map[string]any
		if err := json.Unmarshal(entry, &m); err != nil {
			continue
		}
		models = append(models, m)
	}

	output := ListModelsOutput{Models: models, Count: len(models)}
	return jsonResult(output), output, nil
}

// handleRecentGenerations summarizes recorded generations.
func (s *Server) handleRecentGenerations(ctx context.Context, _ *mcp.CallToolRequest, input RecentInput) (*mcp.CallToolResult, RecentOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	records, err := s.config.Driver.List(ctx, limit)
	if err != nil {
		s.config.Logger.Error("MCP recent generations failed", "error", err)
		return errorResult(fmt.Sprintf("Failed to list generations: %v", err)), RecentOutput{}, nil
	}

	summaries := make([]GenerationSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, summarize(rec))
	}

	output := RecentOutput{Generations: summaries, Count: len(summaries)}
	return jsonResult(output), output, nil
}

func summarize(rec *storage.Record) GenerationSummary {
	return GenerationSummary{
		ID:         rec.ID,
		Model:      rec.Model,
		Status:     rec.Status,
		Streaming:  rec.Streaming,
		Prompt:     utils.Truncate(rec.Prompt, previewLen),
		Fragments:  rec.Fragments,
		StartedAt:  rec.StartedAt.UTC().Format(time.RFC3339),
		DurationMs: rec.Duration().Milliseconds(),
	}
}

// jsonResult also serializes structured output into a text block for
// clients that ignore structured content.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
