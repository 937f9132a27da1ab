package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnsureTenant upserts a tenant row. Existing names are left alone.
func (s *Store) EnsureTenant(id, name string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO tenants (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ensure tenant %s: %w", id, err)
	}
	return nil
}

// CreateAgent persists a new agent. A zero ID is replaced with a fresh
// UUID; zero max_steps and temperature get workable defaults.
func (s *Store) CreateAgent(a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.MaxSteps <= 0 {
		a.MaxSteps = 10
	}
	if a.Temperature == 0 {
		a.Temperature = 0.7
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO agents (id, tenant_id, name, goal, system_prompt, provider, model, temperature, max_steps, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.Name, a.Goal, a.SystemPrompt, a.Provider, a.Model,
		a.Temperature, a.MaxSteps, a.Active, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// GetAgent returns the agent with the given id, or ErrNotFound.
func (s *Store) GetAgent(id string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRow(
		`SELECT id, tenant_id, name, goal, system_prompt, provider, model, temperature, max_steps, active, created_at
		 FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.TenantID, &a.Name, &a.Goal, &a.SystemPrompt, &a.Provider,
		&a.Model, &a.Temperature, &a.MaxSteps, &a.Active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

// ListAgents returns all agents for a tenant, newest first.
func (s *Store) ListAgents(tenantID string) ([]*Agent, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, name, goal, system_prompt, provider, model, temperature, max_steps, active, created_at
		 FROM agents WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.Goal, &a.SystemPrompt,
			&a.Provider, &a.Model, &a.Temperature, &a.MaxSteps, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// CreateTool persists a tool descriptor. Names are unique.
func (s *Store) CreateTool(t *ToolDescriptor) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.ToolType == "" {
		t.ToolType = ToolBuiltin
	}
	t.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO tools (id, name, description, input_schema, tool_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.InputSchema, t.ToolType, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create tool %s: %w", t.Name, err)
	}
	return nil
}

// GetToolByName returns the tool descriptor with the given name, or
// ErrNotFound.
func (s *Store) GetToolByName(name string) (*ToolDescriptor, error) {
	var t ToolDescriptor
	err := s.db.QueryRow(
		`SELECT id, name, description, input_schema, tool_type, created_at
		 FROM tools WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name, &t.Description, &t.InputSchema, &t.ToolType, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool %s: %w", name, err)
	}
	return &t, nil
}

// ListTools returns all registered tool descriptors, ordered by name.
func (s *Store) ListTools() ([]*ToolDescriptor, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, input_schema, tool_type, created_at
		 FROM tools ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []*ToolDescriptor
	for rows.Next() {
		var t ToolDescriptor
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.InputSchema, &t.ToolType, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, &t)
	}
	return tools, rows.Err()
}

// AssignTool attaches a tool to an agent. Assigning twice is a no-op.
func (s *Store) AssignTool(agentID, toolID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO agent_tools (agent_id, tool_id) VALUES (?, ?)`,
		agentID, toolID,
	)
	if err != nil {
		return fmt.Errorf("assign tool: %w", err)
	}
	return nil
}

// ToolsForAgent returns the tool descriptors assigned to an agent,
// ordered by name.
func (s *Store) ToolsForAgent(agentID string) ([]*ToolDescriptor, error) {
	rows, err := s.db.Query(
		`SELECT t.id, t.name, t.description, t.input_schema, t.tool_type, t.created_at
		 FROM tools t JOIN agent_tools at ON at.tool_id = t.id
		 WHERE at.agent_id = ? ORDER BY t.name`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("tools for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var tools []*ToolDescriptor
	for rows.Next() {
		var t ToolDescriptor
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.InputSchema, &t.ToolType, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, &t)
	}
	return tools, rows.Err()
}
