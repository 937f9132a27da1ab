package store

import "time"

// Session status values. A session becomes terminal exactly once.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
	SessionCancelled = "cancelled"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool types.
const (
	ToolBuiltin        = "builtin"
	ToolExternalServer = "external_server"
)

// Agent is a named, reusable configuration of goal, prompt, model, and
// tools. Read-only during execution.
type Agent struct {
	ID           string
	TenantID     string
	Name         string
	Goal         string
	SystemPrompt string
	Provider     string
	Model        string
	Temperature  float64
	MaxSteps     int
	Active       bool
	CreatedAt    time.Time
}

// Session is one conversation instance of an agent.
type Session struct {
	ID          string
	TenantID    string
	AgentID     string
	Status      string
	CurrentStep int
	GoalMet     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	EndedAt     *time.Time
}

// Terminal reports whether the session has reached a final status.
func (s *Session) Terminal() bool {
	return s.Status != SessionActive
}

// Message is an immutable, ordered record within a session. Messages are
// append-only and ordered by (step_number, created_at); they are the sole
// source of truth for conversation replay.
type Message struct {
	ID         string
	SessionID  string
	StepNumber int
	Role       string
	Content    string
	ToolCalls  string // JSON array of emitted tool calls, assistant messages only
	ToolCallID string // tool messages: the originating call
	ToolName   string
	ToolInput  string // JSON
	ToolOutput string // JSON
	CreatedAt  time.Time
}

// MemoryItem is a long-term fact or preference associated with an agent,
// ranked by importance then recency of access.
type MemoryItem struct {
	ID           string
	AgentID      string
	Content      string
	Importance   float64
	Source       string
	CreatedAt    time.Time
	LastAccessed time.Time
}

// ToolDescriptor defines a callable tool: what the model is told about it
// and how the dispatcher routes it.
type ToolDescriptor struct {
	ID          string
	Name        string
	Description string
	InputSchema string // JSON schema for the tool's arguments
	ToolType    string // builtin or external_server
	CreatedAt   time.Time
}
