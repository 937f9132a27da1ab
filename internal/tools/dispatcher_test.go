package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmathers/foreman/internal/llm"
	"github.com/dmathers/foreman/internal/store"
)

func builtinTool(name string) *store.ToolDescriptor {
	return &store.ToolDescriptor{Name: name, ToolType: store.ToolBuiltin}
}

func TestExecuteUnknownToolIsData(t *testing.T) {
	d := NewDispatcher("http://unused", "", nil)
	res := d.Execute(context.Background(), CallContext{SessionID: "s1"},
		llm.ToolCall{Name: "nope"}, []*store.ToolDescriptor{builtinTool("read_file")})

	if res.Success {
		t.Error("unknown tool must fail")
	}
	if !strings.Contains(res.Text, "nope") {
		t.Errorf("result text = %q, want mention of the tool name", res.Text)
	}
}

func TestExecuteExternalServerStub(t *testing.T) {
	d := NewDispatcher("http://unused", "", nil)
	ext := &store.ToolDescriptor{Name: "remote_thing", ToolType: store.ToolExternalServer}
	res := d.Execute(context.Background(), CallContext{}, llm.ToolCall{Name: "remote_thing"},
		[]*store.ToolDescriptor{ext})

	if res.Success {
		t.Error("external server tools are stubbed and must fail")
	}
	if !strings.Contains(res.Text, "not yet supported") {
		t.Errorf("result text = %q", res.Text)
	}
}

func TestExecuteBuiltinAugmentsPayloadAndForwardsAuth(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "result": "file written"})
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "secret-token", nil)
	cc := CallContext{SessionID: "s1", TenantID: "t1", AgentID: "a1"}
	call := llm.ToolCall{Name: "write_file", Arguments: map[string]any{"path": "out.txt", "content": "hi"}}

	res := d.Execute(context.Background(), cc, call, []*store.ToolDescriptor{builtinTool("write_file")})

	if !res.Success || res.Text != "file written" {
		t.Errorf("result = %+v", res)
	}
	if gotPath != "/internal/tools/write_file" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["path"] != "out.txt" || gotBody["content"] != "hi" {
		t.Errorf("model arguments not forwarded: %+v", gotBody)
	}
	if gotBody["session_id"] != "s1" || gotBody["tenant_id"] != "t1" || gotBody["agent_id"] != "a1" {
		t.Errorf("engine parameters not injected: %+v", gotBody)
	}
}

func TestExecuteBuiltinFailureResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "file not found"})
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "", nil)
	res := d.Execute(context.Background(), CallContext{}, llm.ToolCall{Name: "read_file"},
		[]*store.ToolDescriptor{builtinTool("read_file")})

	if res.Success {
		t.Error("back-end failure must surface as unsuccessful result")
	}
	if !strings.Contains(res.Text, "file not found") {
		t.Errorf("result text = %q, want back-end error detail", res.Text)
	}
}

func TestExecuteBuiltinHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "", nil)
	res := d.Execute(context.Background(), CallContext{}, llm.ToolCall{Name: "read_file"},
		[]*store.ToolDescriptor{builtinTool("read_file")})

	if res.Success {
		t.Error("HTTP error must surface as unsuccessful result")
	}
	if !strings.Contains(res.Text, "500") {
		t.Errorf("result text = %q, want status code", res.Text)
	}
}

func TestExecuteBuiltinUnreachable(t *testing.T) {
	d := NewDispatcher("http://127.0.0.1:1", "", nil)
	res := d.Execute(context.Background(), CallContext{}, llm.ToolCall{Name: "read_file"},
		[]*store.ToolDescriptor{builtinTool("read_file")})

	if res.Success {
		t.Error("unreachable back end must surface as unsuccessful result, not a crash")
	}
}
