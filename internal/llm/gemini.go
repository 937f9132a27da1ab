package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiClient is a client for the Google Gemini API, backed by the
// official genai SDK rather than raw HTTP.
type GeminiClient struct {
	apiKey string
	logger *slog.Logger

	mu     sync.Mutex
	client *genai.Client // lazily created on first use
}

// NewGeminiClient creates a new Gemini client. The underlying SDK client
// is created lazily so that a missing key surfaces as a ConfigurationError
// at call time, not at startup.
func NewGeminiClient(apiKey string, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		apiKey: apiKey,
		logger: logger.With("provider", "gemini"),
	}
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, &ConfigurationError{Provider: "gemini", Reason: "api_key is not set"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  c.apiKey,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Err: fmt.Errorf("create client: %w", err)}
	}
	c.client = client
	return client, nil
}

// Chat sends a chat completion request.
func (c *GeminiClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	contents, system := convertToGemini(req.Messages)

	genConfig := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if tools := convertToolsToGemini(req.Tools); len(tools) > 0 {
		genConfig.Tools = tools
	}

	c.logger.Debug("preparing request",
		"model", req.Model,
		"contents", len(contents),
		"tools", len(req.Tools),
		"system_len", len(system),
	)

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Err: err}
	}
	if len(resp.Candidates) == 0 {
		return nil, &ProviderError{Provider: "gemini", Err: fmt.Errorf("response contained no candidates")}
	}

	result := convertFromGemini(req.Model, resp)

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.ToolCalls),
		"finish_reason", result.FinishReason,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Content)

	return result, nil
}

// Ping checks that the API key is usable by issuing a minimal request.
func (c *GeminiClient) Ping(ctx context.Context) error {
	client, err := c.sdk(ctx)
	if err != nil {
		return err
	}
	_, err = client.Models.CountTokens(ctx, "gemini-2.0-flash",
		[]*genai.Content{genai.NewContentFromText("ping", genai.RoleUser)}, nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return nil
}

// convertToGemini converts canonical messages to genai contents. System
// messages are extracted; the API takes the system prompt as a separate
// SystemInstruction parameter.
func convertToGemini(messages []Message) ([]*genai.Content, string) {
	var system string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content

		case "assistant":
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				part := genai.NewPartFromFunctionCall(tc.Name, args)
				part.FunctionCall.ID = tc.ID
				parts = append(parts, part)
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText(" "))
			}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: parts,
			})

		case "tool":
			// Function results correlate by name on this API, not id.
			part := genai.NewPartFromFunctionResponse(msg.ToolName, map[string]any{
				"result": msg.Content,
			})
			part.FunctionResponse.ID = msg.ToolCallID
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{part},
			})

		case "user":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	if len(contents) == 0 {
		contents = []*genai.Content{genai.NewContentFromText(" ", genai.RoleUser)}
	}
	return contents, system
}

// convertToolsToGemini converts tool definitions to genai declarations.
// Parameter schemas arrive as loose JSON-schema maps and are round-tripped
// through JSON into the SDK's typed Schema.
func convertToolsToGemini(tools []ToolDef) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		if t.Parameters != nil {
			decl.Parameters = schemaFromMap(t.Parameters)
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaFromMap(m map[string]any) *genai.Schema {
	data, err := json.Marshal(normalizeSchemaTypes(m))
	if err != nil {
		return nil
	}
	var schema genai.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil
	}
	return &schema
}

// normalizeSchemaTypes uppercases "type" values recursively. JSON schema
// uses lowercase type names; the Gemini API expects its uppercase enum.
func normalizeSchemaTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			if k == "type" {
				if s, ok := sub.(string); ok {
					out[k] = strings.ToUpper(s)
					continue
				}
			}
			out[k] = normalizeSchemaTypes(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = normalizeSchemaTypes(sub)
		}
		return out
	default:
		return v
	}
}

// convertFromGemini converts a genai response to the canonical shape.
func convertFromGemini(model string, resp *genai.GenerateContentResponse) *Response {
	var content string
	var toolCalls []ToolCall

	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				content += part.Text
			}
			if fc := part.FunctionCall; fc != nil {
				args := fc.Args
				if args == nil {
					args = map[string]any{}
				}
				toolCalls = append(toolCalls, ToolCall{
					ID:        fc.ID,
					Name:      fc.Name,
					Arguments: args,
				})
			}
		}
	}

	result := &Response{
		Model:        model,
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: string(candidate.FinishReason),
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result
}
