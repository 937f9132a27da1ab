package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmathers/foreman/internal/llm"
	"github.com/dmathers/foreman/internal/store"
)

// defaultTenant is used until multi-tenant auth exists; tenant plumbing
// is threaded through the engine and store already.
const defaultTenant = "default"

type agentRequest struct {
	Name         string  `json:"name"`
	Goal         string  `json:"goal"`
	SystemPrompt string  `json:"system_prompt"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxSteps     int     `json:"max_steps"`
}

type agentResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Goal         string    `json:"goal"`
	SystemPrompt string    `json:"system_prompt"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	MaxSteps     int       `json:"max_steps"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAgentResponse(a *store.Agent) agentResponse {
	return agentResponse{
		ID:           a.ID,
		Name:         a.Name,
		Goal:         a.Goal,
		SystemPrompt: a.SystemPrompt,
		Provider:     a.Provider,
		Model:        a.Model,
		Temperature:  a.Temperature,
		MaxSteps:     a.MaxSteps,
		Active:       a.Active,
		CreatedAt:    a.CreatedAt,
	}
}

func (s *Server) handleAgentCreate(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Goal == "" || req.Provider == "" || req.Model == "" {
		s.writeError(w, http.StatusBadRequest, "name, goal, provider, and model are required")
		return
	}

	if err := s.store.EnsureTenant(defaultTenant, "default"); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	agent := &store.Agent{
		TenantID:     defaultTenant,
		Name:         req.Name,
		Goal:         req.Goal,
		SystemPrompt: req.SystemPrompt,
		Provider:     req.Provider,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxSteps:     req.MaxSteps,
		Active:       true,
	}
	if err := s.store.CreateAgent(agent); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, toAgentResponse(agent), s.logger)
}

func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(defaultTenant)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentResponse(a))
	}
	writeJSON(w, out, s.logger)
}

func (s *Server) handleAgentGet(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, toAgentResponse(agent), s.logger)
}

func (s *Server) handleAgentAssignTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToolName string `json:"tool_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToolName == "" {
		s.writeError(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	agent, err := s.store.GetAgent(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tool, err := s.store.GetToolByName(req.ToolName)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.AssignTool(agent.ID, tool.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"agent_id": agent.ID, "tool": tool.Name}, s.logger)
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	tools, err := s.store.ListTools()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type toolResponse struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		ToolType    string `json:"tool_type"`
	}
	out := make([]toolResponse, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolResponse{ID: t.ID, Name: t.Name, Description: t.Description, ToolType: t.ToolType})
	}
	writeJSON(w, out, s.logger)
}

type sessionResponse struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	Status      string     `json:"status"`
	CurrentStep int        `json:"current_step"`
	GoalMet     bool       `json:"goal_met"`
	CreatedAt   time.Time  `json:"created_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func toSessionResponse(sess *store.Session) sessionResponse {
	return sessionResponse{
		ID:          sess.ID,
		AgentID:     sess.AgentID,
		Status:      sess.Status,
		CurrentStep: sess.CurrentStep,
		GoalMet:     sess.GoalMet,
		CreatedAt:   sess.CreatedAt,
		EndedAt:     sess.EndedAt,
	}
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess, err := s.store.CreateSession(agent.TenantID, agent.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, toSessionResponse(sess), s.logger)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, out, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, toSessionResponse(sess), s.logger)
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	err := s.store.CancelSession(r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, store.ErrSessionTerminal):
		s.writeError(w, http.StatusConflict, "session is already terminal")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess, err := s.store.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, toSessionResponse(sess), s.logger)
}

type messageResponse struct {
	StepNumber int       `json:"step_number"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolInput  string    `json:"tool_input,omitempty"`
	ToolOutput string    `json:"tool_output,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.GetSession(r.PathValue("id")); errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	} else if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages, err := s.store.Messages(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageResponse{
			StepNumber: m.StepNumber,
			Role:       m.Role,
			Content:    m.Content,
			ToolName:   m.ToolName,
			ToolInput:  m.ToolInput,
			ToolOutput: m.ToolOutput,
			CreatedAt:  m.CreatedAt,
		})
	}
	writeJSON(w, out, s.logger)
}

func (s *Server) handleSessionPlan(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.GetSession(r.PathValue("id")); errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	} else if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	p, err := s.tracker.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		s.writeError(w, http.StatusNotFound, "session has no plan")
		return
	}
	writeJSON(w, p, s.logger)
}

// handleSendMessage drives the execution loop for one user turn.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	result, err := s.engine.SendMessage(r.Context(), r.PathValue("id"), req.Content)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, store.ErrSessionTerminal):
		s.writeError(w, http.StatusConflict, "session is terminal")
		return
	case err != nil:
		var cfgErr *llm.ConfigurationError
		if errors.As(err, &cfgErr) {
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		var provErr *llm.ProviderError
		if errors.As(err, &provErr) {
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, result, s.logger)
}
