package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmathers/foreman/internal/config"
	"github.com/dmathers/foreman/internal/engine"
	"github.com/dmathers/foreman/internal/llm"
	"github.com/dmathers/foreman/internal/plan"
	"github.com/dmathers/foreman/internal/store"
	"github.com/dmathers/foreman/internal/tools"
	_ "github.com/mattn/go-sqlite3"
)

// echoClient answers every chat request with a fixed completion.
type echoClient struct {
	content string
}

func (c *echoClient) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: c.content, InputTokens: 3, OutputTokens: 2, FinishReason: "stop"}, nil
}

func (c *echoClient) Ping(ctx context.Context) error { return nil }

type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, cc tools.CallContext, call llm.ToolCall, available []*store.ToolDescriptor) tools.Result {
	return tools.Result{Success: true, Text: "ok"}
}

func newTestServer(t *testing.T, modelReply string) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Workspace.Path = t.TempDir()
	cfg.Tools.Token = "test-token"

	registry := llm.NewRegistry()
	registry.Register("echo", &echoClient{content: modelReply})
	tracker := plan.NewTracker(st, nil)
	eng := engine.New(st, registry, tracker, noopExecutor{}, cfg.Engine, nil)

	return NewServer(cfg, st, eng, tracker, nil), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAgentAndSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, "GOAL_COMPLETE: all done")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/v1/agents", map[string]any{
		"name": "helper", "goal": "help", "provider": "echo", "model": "echo-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent: status %d: %s", rec.Code, rec.Body.String())
	}
	agent := decode[agentResponse](t, rec)
	if agent.ID == "" || !agent.Active {
		t.Errorf("agent = %+v", agent)
	}

	rec = doJSON(t, h, "POST", "/v1/agents/"+agent.ID+"/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", rec.Code, rec.Body.String())
	}
	sess := decode[sessionResponse](t, rec)
	if sess.Status != store.SessionActive {
		t.Errorf("session status = %q", sess.Status)
	}

	rec = doJSON(t, h, "POST", "/v1/sessions/"+sess.ID+"/messages", map[string]any{
		"content": "do the thing",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send message: status %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[engine.Result](t, rec)
	if !result.GoalMet || result.SessionStatus != store.SessionCompleted {
		t.Errorf("result = %+v", result)
	}

	rec = doJSON(t, h, "GET", "/v1/sessions/"+sess.ID+"/messages", nil)
	msgs := decode[[]messageResponse](t, rec)
	if len(msgs) != 2 {
		t.Errorf("transcript has %d messages, want 2", len(msgs))
	}

	// Terminal session rejects further turns.
	rec = doJSON(t, h, "POST", "/v1/sessions/"+sess.ID+"/messages", map[string]any{"content": "more"})
	if rec.Code != http.StatusConflict {
		t.Errorf("send to terminal session: status %d, want 409", rec.Code)
	}
}

func TestSessionCancelEndpoint(t *testing.T) {
	srv, st := newTestServer(t, "hello")
	h := srv.Handler()

	st.EnsureTenant("default", "default")
	agent := &store.Agent{TenantID: "default", Name: "a", Goal: "g", SystemPrompt: "p", Provider: "echo", Model: "m", Active: true}
	if err := st.CreateAgent(agent); err != nil {
		t.Fatal(err)
	}
	sess, err := st.CreateSession("default", agent.ID)
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, h, "POST", "/v1/sessions/"+sess.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[sessionResponse](t, rec)
	if got.Status != store.SessionCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}

	rec = doJSON(t, h, "POST", "/v1/sessions/"+sess.ID+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second cancel: status %d, want 409", rec.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t, "hello")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/v1/sessions/missing/messages", map[string]any{"content": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/v1/sessions/missing/messages", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty content: status %d, want 400", rec.Code)
	}
}

func TestToolEndpointAuth(t *testing.T) {
	srv, _ := newTestServer(t, "hello")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/internal/tools/web_search", map[string]any{"query": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/internal/tools/web_search", map[string]any{"query": "x"},
		"Authorization", "Bearer wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/internal/tools/web_search", map[string]any{"query": "x"},
		"Authorization", "Bearer test-token")
	if rec.Code != http.StatusOK {
		t.Errorf("good token: status %d, want 200", rec.Code)
	}
}

func TestToolEndpointUnknownTool(t *testing.T) {
	srv, _ := newTestServer(t, "hello")
	rec := doJSON(t, srv.Handler(), "POST", "/internal/tools/teleport", map[string]any{},
		"Authorization", "Bearer test-token")

	out := decode[map[string]any](t, rec)
	if out["success"] != false {
		t.Errorf("unknown tool must report failure: %v", out)
	}
}

func TestUpdatePlanEndpoint(t *testing.T) {
	srv, st := newTestServer(t, "hello")
	h := srv.Handler()

	st.EnsureTenant("default", "default")
	agent := &store.Agent{TenantID: "default", Name: "a", Goal: "g", SystemPrompt: "p", Provider: "echo", Model: "m", Active: true}
	st.CreateAgent(agent)
	sess, _ := st.CreateSession("default", agent.ID)

	rec := doJSON(t, h, "POST", "/internal/tools/update_plan", map[string]any{
		"session_id": sess.ID,
		"action":     "create",
		"goal":       "finish the report",
		"steps":      []string{"outline", "draft"},
	}, "Authorization", "Bearer test-token")

	out := decode[map[string]any](t, rec)
	if out["success"] != true {
		t.Fatalf("create plan failed: %v", out)
	}

	rec = doJSON(t, h, "GET", "/v1/sessions/"+sess.ID+"/plan", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get plan: status %d", rec.Code)
	}
	p := decode[plan.Plan](t, rec)
	if len(p.Steps) != 2 || p.Status != plan.StatusExecuting {
		t.Errorf("plan = %+v", p)
	}
}

func TestFileToolsConfinedToWorkspace(t *testing.T) {
	srv, _ := newTestServer(t, "hello")
	h := srv.Handler()
	auth := []string{"Authorization", "Bearer test-token"}

	rec := doJSON(t, h, "POST", "/internal/tools/write_file", map[string]any{
		"path": "notes/report.md", "content": "# Report",
	}, auth...)
	out := decode[map[string]any](t, rec)
	if out["success"] != true {
		t.Fatalf("write failed: %v", out)
	}
	written := filepath.Join(srv.cfg.Workspace.Path, "notes", "report.md")
	if _, err := os.Stat(written); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	rec = doJSON(t, h, "POST", "/internal/tools/read_file", map[string]any{
		"path": "notes/report.md",
	}, auth...)
	out = decode[map[string]any](t, rec)
	if out["success"] != true || out["result"] != "# Report" {
		t.Errorf("read = %v", out)
	}

	// Escapes are rejected as tool failure data.
	rec = doJSON(t, h, "POST", "/internal/tools/read_file", map[string]any{
		"path": "../../etc/passwd",
	}, auth...)
	out = decode[map[string]any](t, rec)
	if out["success"] != false {
		t.Error("path escape must fail")
	}
	errMsg, _ := out["error"].(string)
	if !strings.Contains(errMsg, "read") && !strings.Contains(errMsg, "workspace") {
		t.Errorf("error = %q", errMsg)
	}
}

func TestSaveMemoryEndpoint(t *testing.T) {
	srv, st := newTestServer(t, "hello")
	h := srv.Handler()

	st.EnsureTenant("default", "default")
	agent := &store.Agent{TenantID: "default", Name: "a", Goal: "g", SystemPrompt: "p", Provider: "echo", Model: "m", Active: true}
	st.CreateAgent(agent)

	rec := doJSON(t, h, "POST", "/internal/tools/save_memory", map[string]any{
		"agent_id": agent.ID, "content": "the user likes brevity", "importance": 0.8,
	}, "Authorization", "Bearer test-token")
	out := decode[map[string]any](t, rec)
	if out["success"] != true {
		t.Fatalf("save failed: %v", out)
	}

	items, err := st.TopMemories(agent.ID, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Content != "the user likes brevity" {
		t.Errorf("memories = %+v", items)
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t, "hello")
	h := srv.Handler()

	rec := doJSON(t, h, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
	rec = doJSON(t, h, "GET", "/v1/version", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("version: status %d", rec.Code)
	}
}

func TestToolListing(t *testing.T) {
	srv, st := newTestServer(t, "ok")
	h := srv.Handler()

	for _, desc := range tools.BuiltinDescriptors() {
		if err := st.CreateTool(desc); err != nil {
			t.Fatalf("seed tool %s: %v", desc.Name, err)
		}
	}

	rec := doJSON(t, h, "GET", "/v1/tools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list tools: status %d: %s", rec.Code, rec.Body.String())
	}
	listed := decode[[]map[string]any](t, rec)
	if len(listed) != len(tools.BuiltinDescriptors()) {
		t.Fatalf("expected %d tools, got %d", len(tools.BuiltinDescriptors()), len(listed))
	}
	names := map[string]bool{}
	for _, item := range listed {
		names[item["name"].(string)] = true
	}
	for _, want := range []string{"update_plan", "save_memory", "read_file", "write_file", "web_search"} {
		if !names[want] {
			t.Errorf("missing tool %q in listing", want)
		}
	}
}

func TestSessionReadErrorsSurfaceAsServerError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	registry := llm.NewRegistry()
	registry.Register("echo", &echoClient{content: "ok"})
	tracker := plan.NewTracker(st, nil)
	eng := engine.New(st, registry, tracker, noopExecutor{}, cfg.Engine, nil)
	h := NewServer(cfg, st, eng, tracker, nil).Handler()

	// Break the session read from a second connection so GetSession fails
	// with a persistence error rather than ErrNotFound.
	raw, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()
	if _, err := raw.Exec("DROP TABLE sessions"); err != nil {
		t.Fatalf("drop sessions: %v", err)
	}

	for _, path := range []string{
		"/v1/sessions/some-id/messages",
		"/v1/sessions/some-id/plan",
	} {
		rec := doJSON(t, h, "GET", path, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("GET %s: status %d, want 500", path, rec.Code)
		}
	}
}
