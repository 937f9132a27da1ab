// Package engine drives the agent execution loop: given a session and a
// new user message it repeatedly assembles context, invokes the model,
// executes requested tools, advances the execution plan, and decides
// whether to continue autonomously or hand control back to the user.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmathers/foreman/internal/compose"
	"github.com/dmathers/foreman/internal/config"
	"github.com/dmathers/foreman/internal/llm"
	"github.com/dmathers/foreman/internal/plan"
	"github.com/dmathers/foreman/internal/store"
	"github.com/dmathers/foreman/internal/tools"
)

// ToolExecutor runs one tool call and reports the outcome as data.
type ToolExecutor interface {
	Execute(ctx context.Context, cc tools.CallContext, call llm.ToolCall, available []*store.ToolDescriptor) tools.Result
}

// Result is what one SendMessage call hands back to the caller.
// Autonomous continuation happens inside the call; the caller only sees
// the final state of the turn.
type Result struct {
	AssistantText  string `json:"assistant_text"`
	TokensUsed     int    `json:"tokens_used"`
	SessionStatus  string `json:"session_status"`
	GoalMet        bool   `json:"goal_met"`
	ShouldContinue bool   `json:"should_continue"`
}

// Engine is the loop controller. One Engine serves many sessions; it
// holds no per-session state, so concurrent sessions are independent.
// Callers must not drive the same session concurrently.
type Engine struct {
	store    *store.Store
	registry *llm.Registry
	tracker  *plan.Tracker
	executor ToolExecutor
	cfg      config.EngineConfig
	logger   *slog.Logger
}

// New creates an engine.
func New(st *store.Store, registry *llm.Registry, tracker *plan.Tracker, executor ToolExecutor, cfg config.EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		registry: registry,
		tracker:  tracker,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
	}
}

// SendMessage drives the loop for one user turn. Provider and
// persistence failures abort the call and leave the session active so
// the user can retry; only a missing agent marks the session failed.
func (e *Engine) SendMessage(ctx context.Context, sessionID, userText string) (*Result, error) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Terminal() {
		return nil, store.ErrSessionTerminal
	}

	agent, err := e.store.GetAgent(sess.AgentID)
	if err != nil {
		// Only a provably missing agent orphans the session. A transient
		// read failure leaves it active so the user can retry.
		if errors.Is(err, store.ErrNotFound) {
			if failErr := e.store.FailSession(sessionID); failErr != nil {
				e.logger.Error("could not fail orphaned session", "session_id", sessionID, "error", failErr)
			}
		}
		return nil, fmt.Errorf("load agent %s: %w", sess.AgentID, err)
	}
	if !agent.Active {
		return nil, fmt.Errorf("agent %s is not active", agent.ID)
	}

	client, err := e.registry.Get(agent.Provider)
	if err != nil {
		return nil, err
	}

	assigned, err := e.store.ToolsForAgent(agent.ID)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}
	planningTool := ""
	for _, t := range assigned {
		if t.Name == e.cfg.PlanningTool {
			planningTool = t.Name
			break
		}
	}

	if err := e.store.AppendMessage(&store.Message{
		SessionID: sessionID,
		Role:      store.RoleUser,
		Content:   userText,
	}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	log := e.logger.With("session_id", sessionID, "agent", agent.Name)
	log.Info("turn started", "max_steps", agent.MaxSteps)

	cc := tools.CallContext{SessionID: sessionID, TenantID: sess.TenantID, AgentID: agent.ID}
	toolDefs := compose.ToolDefs(assigned)

	var totalTokens int
	var lastText string
	autonomous := 0

	for iter := 0; iter < agent.MaxSteps; iter++ {
		// Cancellation is observed at iteration boundaries, never mid-call.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err := e.store.GetSession(sessionID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if current.Status == store.SessionCancelled {
			log.Info("turn cancelled", "iteration", iter)
			return &Result{
				AssistantText: lastText,
				TokensUsed:    totalTokens,
				SessionStatus: store.SessionCancelled,
			}, nil
		}

		resp, err := e.invokeModel(ctx, client, agent, sessionID, planningTool, toolDefs)
		if err != nil {
			return nil, err
		}
		totalTokens += resp.TokensUsed()

		// Goal completion sentinel wins over everything else in the turn.
		if strings.HasPrefix(strings.TrimSpace(resp.Content), e.cfg.GoalSentinel) {
			if err := e.store.AppendMessage(&store.Message{
				SessionID: sessionID,
				Role:      store.RoleAssistant,
				Content:   resp.Content,
			}); err != nil {
				return nil, fmt.Errorf("append assistant message: %w", err)
			}
			if err := e.store.CompleteSession(sessionID, true); err != nil {
				return nil, fmt.Errorf("complete session: %w", err)
			}
			log.Info("goal complete", "iteration", iter, "tokens", totalTokens)
			return &Result{
				AssistantText: resp.Content,
				TokensUsed:    totalTokens,
				SessionStatus: store.SessionCompleted,
				GoalMet:       true,
			}, nil
		}

		if len(resp.ToolCalls) > 0 {
			budgetLeft := iter < agent.MaxSteps-1
			if err := e.runToolCalls(ctx, cc, resp, assigned, planningTool, budgetLeft, log); err != nil {
				return nil, err
			}
			// Tool calls always trigger another model turn. A tool round is
			// real work, so the run of consecutive autonomous continuations
			// ends here.
			autonomous = 0
			continue
		}

		// Plain text, no tool calls.
		if err := e.store.AppendMessage(&store.Message{
			SessionID: sessionID,
			Role:      store.RoleAssistant,
			Content:   resp.Content,
		}); err != nil {
			return nil, fmt.Errorf("append assistant message: %w", err)
		}
		lastText = resp.Content

		p, err := e.tracker.Get(sessionID)
		if err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
		actionable := p != nil && p.HasActionableSteps()

		if actionable && autonomous < e.cfg.AutonomyCap {
			autonomous++
			log.Debug("continuing autonomously", "iteration", iter, "continuation", autonomous)
			continue
		}

		if iter < agent.MaxSteps-1 {
			log.Info("awaiting user", "iteration", iter, "tokens", totalTokens)
			return &Result{
				AssistantText:  lastText,
				TokensUsed:     totalTokens,
				SessionStatus:  store.SessionActive,
				ShouldContinue: actionable,
			}, nil
		}
		// Final permitted iteration: fall through to budget exhaustion.
		break
	}

	// Budget exhausted without goal completion. Not a failure; the user
	// simply did not get a final answer within budget.
	if err := e.store.CompleteSession(sessionID, false); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	log.Info("step budget exhausted", "tokens", totalTokens)
	return &Result{
		AssistantText: lastText,
		TokensUsed:    totalTokens,
		SessionStatus: store.SessionCompleted,
		GoalMet:       false,
	}, nil
}

// invokeModel assembles fresh context and calls the model once.
func (e *Engine) invokeModel(ctx context.Context, client llm.Client, agent *store.Agent, sessionID, planningTool string, toolDefs []llm.ToolDef) (*llm.Response, error) {
	memories, err := e.store.TopMemories(agent.ID, e.cfg.MemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	p, err := e.tracker.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	history, err := e.store.Messages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: compose.SystemPrompt(agent, memories, p, planningTool),
	})
	messages = append(messages, compose.History(history)...)

	return client.Chat(ctx, &llm.Request{
		Model:       agent.Model,
		Temperature: agent.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Messages:    messages,
		Tools:       toolDefs,
	})
}

// runToolCalls persists the assistant tool-call message, executes each
// call in the order the model returned it (later calls may depend on
// earlier side effects), persists each result as its own step, and runs
// plan auto-completion for successful work tools. A turn that touched
// only the planning tool gets a corrective user-role injection so the
// next model turn actually does the work; the injection is skipped when
// no budget remains, since the promised extra turn could never happen.
func (e *Engine) runToolCalls(ctx context.Context, cc tools.CallContext, resp *llm.Response, assigned []*store.ToolDescriptor, planningTool string, budgetLeft bool, log *slog.Logger) error {
	callsJSON, err := json.Marshal(resp.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	if err := e.store.AppendMessage(&store.Message{
		SessionID: cc.SessionID,
		Role:      store.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: string(callsJSON),
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}

	workToolCalled := false
	for _, call := range resp.ToolCalls {
		result := e.executor.Execute(ctx, cc, call, assigned)
		log.Debug("tool executed", "tool", call.Name, "success", result.Success)

		inputJSON, _ := json.Marshal(call.Arguments)
		outputJSON, _ := json.Marshal(map[string]any{"success": result.Success, "result": result.Text})
		if err := e.store.AppendMessage(&store.Message{
			SessionID:  cc.SessionID,
			Role:       store.RoleTool,
			Content:    result.Text,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			ToolInput:  string(inputJSON),
			ToolOutput: string(outputJSON),
		}); err != nil {
			return fmt.Errorf("append tool result: %w", err)
		}

		isWorkTool := planningTool == "" || call.Name != planningTool
		if isWorkTool {
			workToolCalled = true
			if result.Success {
				if err := e.tracker.AutoCompleteInProgress(cc.SessionID, call.Name); err != nil {
					return fmt.Errorf("auto-complete plan step: %w", err)
				}
			}
		}
	}

	if planningTool != "" && !workToolCalled && budgetLeft {
		// The model "did" a step by updating its status without performing
		// the underlying action. Push back once and force another turn.
		if err := e.store.AppendMessage(&store.Message{
			SessionID: cc.SessionID,
			Role:      store.RoleUser,
			Content: "You only updated the plan without doing any actual work. " +
				"Now perform the work for the current step using your other tools, " +
				"or answer directly if no tool is needed.",
		}); err != nil {
			return fmt.Errorf("append corrective message: %w", err)
		}
		log.Debug("planning-only turn, corrective instruction injected")
	}

	return nil
}
