package llm

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiMissingKey(t *testing.T) {
	client := NewGeminiClient("", testLogger())
	_, err := client.Chat(context.Background(), &Request{Model: "gemini-2.0-flash"})

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestConvertToGeminiRolesAndSystem(t *testing.T) {
	contents, system := convertToGemini([]Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})

	if system != "be helpful" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[1].Role != genai.RoleModel {
		t.Errorf("roles = %s, %s", contents[0].Role, contents[1].Role)
	}
}

func TestConvertToGeminiFunctionCallAndResponse(t *testing.T) {
	contents, _ := convertToGemini([]Message{
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "fc_1", Name: "read_file", Arguments: map[string]any{"path": "a.md"}},
		}},
		{Role: "tool", Content: "body text", ToolCallID: "fc_1", ToolName: "read_file"},
	})

	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}

	fc := contents[0].Parts[0].FunctionCall
	if fc == nil || fc.Name != "read_file" || fc.ID != "fc_1" {
		t.Fatalf("function call = %+v", fc)
	}
	if fc.Args["path"] != "a.md" {
		t.Errorf("args = %v", fc.Args)
	}

	fr := contents[1].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "read_file" || fr.ID != "fc_1" {
		t.Fatalf("function response = %+v", fr)
	}
	if fr.Response["result"] != "body text" {
		t.Errorf("response payload = %v", fr.Response)
	}
	if contents[1].Role != genai.RoleUser {
		t.Errorf("function response role = %s", contents[1].Role)
	}
}

func TestConvertToGeminiNeverEmpty(t *testing.T) {
	contents, _ := convertToGemini([]Message{{Role: "system", Content: "only system"}})
	if len(contents) == 0 {
		t.Fatal("expected a placeholder content, got none")
	}
}

func TestConvertToolsToGemini(t *testing.T) {
	tools := convertToolsToGemini([]ToolDef{{
		Name:        "write_file",
		Description: "Write a file",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []string{"path"},
		},
	}})

	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools = %+v", tools)
	}
	decl := tools[0].FunctionDeclarations[0]
	if decl.Name != "write_file" {
		t.Errorf("name = %q", decl.Name)
	}
	if decl.Parameters == nil || decl.Parameters.Type != genai.TypeObject {
		t.Fatalf("parameters = %+v", decl.Parameters)
	}
	if _, ok := decl.Parameters.Properties["path"]; !ok {
		t.Errorf("missing path property: %+v", decl.Parameters.Properties)
	}
}

func TestSchemaFromMapBadInput(t *testing.T) {
	if s := schemaFromMap(map[string]any{"type": 42}); s != nil {
		t.Errorf("expected nil schema for invalid type, got %+v", s)
	}
}

func TestConvertFromGemini(t *testing.T) {
	resp := convertFromGemini("gemini-2.0-flash", &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{
					{Text: "thinking...", Thought: true},
					{Text: "Answer: 4"},
					{FunctionCall: &genai.FunctionCall{ID: "fc_2", Name: "save_memory", Args: map[string]any{"content": "2+2=4"}}},
				},
			},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     50,
			CandidatesTokenCount: 10,
		},
	})

	// Thought parts must not leak into user-visible content.
	if resp.Content != "Answer: 4" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "save_memory" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.InputTokens != 50 || resp.OutputTokens != 10 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}
