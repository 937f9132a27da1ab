// Package tools dispatches model-requested tool calls. Tool failures are
// data, not errors: every outcome becomes a Result that gets persisted
// as a tool message and shown back to the model.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmathers/foreman/internal/httpkit"
	"github.com/dmathers/foreman/internal/llm"
	"github.com/dmathers/foreman/internal/store"
)

// Result is the uniform outcome of a tool execution.
type Result struct {
	Success bool
	Text    string
}

// CallContext carries the engine-side parameters injected into builtin
// tool payloads: which session the call belongs to and who owns it.
type CallContext struct {
	SessionID string
	TenantID  string
	AgentID   string
}

// endpointResponse is the wire contract of every builtin tool back end.
type endpointResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Error   string `json:"error"`
}

// Dispatcher routes tool calls to their back ends. It never mutates
// conversation state; from the loop controller's point of view it is a
// pure request/response function.
type Dispatcher struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher for the builtin tool back ends at
// baseURL, authenticating with the given bearer token.
func NewDispatcher(baseURL, token string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(60 * time.Second)),
		logger:     logger.With("component", "tools"),
	}
}

// Execute runs one tool call against the agent's assigned tools and
// returns the outcome. Unknown tools and back-end failures come back as
// unsuccessful results, never as errors; only context cancellation
// escapes as an error path (reported as a failed result too, since the
// loop persists whatever it got before noticing cancellation).
func (d *Dispatcher) Execute(ctx context.Context, cc CallContext, call llm.ToolCall, available []*store.ToolDescriptor) Result {
	var desc *store.ToolDescriptor
	for _, t := range available {
		if t.Name == call.Name {
			desc = t
			break
		}
	}
	if desc == nil {
		d.logger.Warn("unknown tool requested", "tool", call.Name, "session_id", cc.SessionID)
		return Result{Success: false, Text: fmt.Sprintf("Tool %q is not available to this agent.", call.Name)}
	}

	switch desc.ToolType {
	case store.ToolBuiltin:
		return d.executeBuiltin(ctx, cc, call)
	case store.ToolExternalServer:
		// External tool servers are not wired up yet. This is a
		// legitimate outcome the model has to work around, not a crash.
		return Result{Success: false, Text: fmt.Sprintf("Tool %q lives on an external tool server, which is not yet supported.", call.Name)}
	default:
		return Result{Success: false, Text: fmt.Sprintf("Tool %q has unknown type %q.", call.Name, desc.ToolType)}
	}
}

func (d *Dispatcher) executeBuiltin(ctx context.Context, cc CallContext, call llm.ToolCall) Result {
	payload := make(map[string]any, len(call.Arguments)+3)
	for k, v := range call.Arguments {
		payload[k] = v
	}
	// Implicit parameters the back end needs but the model never sees.
	payload["session_id"] = cc.SessionID
	payload["tenant_id"] = cc.TenantID
	payload["agent_id"] = cc.AgentID

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Text: fmt.Sprintf("Tool %q arguments could not be encoded: %v", call.Name, err)}
	}

	url := fmt.Sprintf("%s/internal/tools/%s", d.baseURL, call.Name)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Text: fmt.Sprintf("Tool %q request could not be built: %v", call.Name, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	d.logger.Debug("executing builtin tool", "tool", call.Name, "session_id", cc.SessionID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn("tool back end unreachable", "tool", call.Name, "error", err)
		return Result{Success: false, Text: fmt.Sprintf("Tool %q failed: %v", call.Name, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 2048)
		d.logger.Warn("tool back end error", "tool", call.Name, "status", resp.StatusCode, "body", errBody)
		return Result{Success: false, Text: fmt.Sprintf("Tool %q failed with status %d: %s", call.Name, resp.StatusCode, errBody)}
	}

	var out endpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{Success: false, Text: fmt.Sprintf("Tool %q returned an unreadable response: %v", call.Name, err)}
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "tool reported failure without detail"
		}
		return Result{Success: false, Text: fmt.Sprintf("Tool %q failed: %s", call.Name, msg)}
	}
	return Result{Success: true, Text: out.Result}
}
