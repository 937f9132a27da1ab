// Package compose assembles the conversation context for a model turn:
// the system prompt (agent prompt, goal, memories, plan state) and the
// canonical message history.
package compose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmathers/foreman/internal/llm"
	"github.com/dmathers/foreman/internal/plan"
	"github.com/dmathers/foreman/internal/store"
)

// SystemPrompt builds the system prompt for one model turn. When the
// agent has a planning tool assigned the prompt takes exactly one of two
// shapes: no active plan (the model must create one before anything
// else) or active plan (render the steps, forbid re-planning, and name
// exactly one next action). The branching guards against two failure
// modes: re-planning every turn, and marking a step in progress without
// doing the work.
func SystemPrompt(agent *store.Agent, memories []*store.MemoryItem, p *plan.Plan, planningTool string) string {
	var b strings.Builder

	b.WriteString(agent.SystemPrompt)
	b.WriteString("\n\n## Goal\n")
	b.WriteString(agent.Goal)

	if len(memories) > 0 {
		b.WriteString("\n\n## What you know\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s\n", m.Content)
		}
	}

	if planningTool == "" {
		return b.String()
	}

	if p == nil {
		fmt.Fprintf(&b, "\n\n## Planning\nYou do not have an execution plan yet. "+
			"Before doing anything else, call the %s tool with action \"create\" to break "+
			"the goal into concrete, ordered steps. Do not answer or use any other tool "+
			"until the plan exists.\n", planningTool)
		return b.String()
	}

	b.WriteString("\n\n## Execution plan\n")
	fmt.Fprintf(&b, "Goal: %s\nStatus: %s\n\n", p.Goal, p.Status)
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s", s.StepNumber, s.Status, s.Description)
		if s.Result != "" {
			fmt.Fprintf(&b, " (result: %s)", s.Result)
		}
		b.WriteString("\n")
	}

	if p.Status == plan.StatusExecuting {
		b.WriteString("\nThis plan already exists. Do NOT create a new plan. ")
		if idx := p.InProgressStep(); idx >= 0 {
			fmt.Fprintf(&b, "Your next action: resume step %d (%q), which is already in progress. "+
				"Do the work for that step now using your tools.\n",
				p.Steps[idx].StepNumber, p.Steps[idx].Description)
		} else if p.CurrentStepIndex < len(p.Steps) {
			next := p.Steps[p.CurrentStepIndex]
			fmt.Fprintf(&b, "Your next action: start step %d (%q). Mark it in_progress with the %s "+
				"tool, then do the work for it.\n", next.StepNumber, next.Description, planningTool)
		} else {
			b.WriteString("All steps are complete. Finish up and report the outcome.\n")
		}
	}

	return b.String()
}

// History converts a session transcript into the canonical message list
// fed to the model gateway. Tool-call ids round-trip so each tool result
// references the exact call that produced it.
func History(messages []*store.Message) []llm.Message {
	var out []llm.Message
	for _, m := range messages {
		switch m.Role {
		case store.RoleAssistant:
			msg := llm.Message{Role: "assistant", Content: m.Content}
			if m.ToolCalls != "" {
				var calls []llm.ToolCall
				if err := json.Unmarshal([]byte(m.ToolCalls), &calls); err == nil {
					msg.ToolCalls = calls
				}
			}
			out = append(out, msg)

		case store.RoleTool:
			out = append(out, llm.Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				ToolName:   m.ToolName,
			})

		case store.RoleUser:
			out = append(out, llm.Message{Role: "user", Content: m.Content})
		}
	}
	return out
}

// ToolDefs converts stored tool descriptors into the schema list
// advertised to the model. Schemas pass through structurally; an
// unreadable schema degrades to an empty object schema rather than
// dropping the tool.
func ToolDefs(tools []*store.ToolDescriptor) []llm.ToolDef {
	var defs []llm.ToolDef
	for _, t := range tools {
		var params map[string]any
		if t.InputSchema != "" {
			if err := json.Unmarshal([]byte(t.InputSchema), &params); err != nil {
				params = nil
			}
		}
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return defs
}
