package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession starts a new active session for an agent.
func (s *Store) CreateSession(tenantID, agentID string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Status:    SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, tenant_id, agent_id, status, current_step, goal_met, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, FALSE, ?, ?)`,
		sess.ID, sess.TenantID, sess.AgentID, sess.Status, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session with the given id, or ErrNotFound. The
// loop controller reads this at the top of each iteration, so a concurrent
// cancellation takes effect at the next iteration boundary.
func (s *Store) GetSession(id string) (*Session, error) {
	var sess Session
	var endedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, tenant_id, agent_id, status, current_step, goal_met, created_at, updated_at, ended_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.TenantID, &sess.AgentID, &sess.Status, &sess.CurrentStep,
		&sess.GoalMet, &sess.CreatedAt, &sess.UpdatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}

// ListSessions returns all sessions for an agent, newest first.
func (s *Store) ListSessions(agentID string) ([]*Session, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, agent_id, status, current_step, goal_met, created_at, updated_at, ended_at
		 FROM sessions WHERE agent_id = ? ORDER BY created_at DESC`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var endedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.TenantID, &sess.AgentID, &sess.Status,
			&sess.CurrentStep, &sess.GoalMet, &sess.CreatedAt, &sess.UpdatedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// terminate moves a session from active into a terminal status. The guard
// on status makes the transition happen exactly once; a second call is a
// no-op returning ErrSessionTerminal (or ErrNotFound for unknown ids).
func (s *Store) terminate(id, status string, goalMet bool) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, goal_met = ?, updated_at = ?, ended_at = ?
		 WHERE id = ? AND status = ?`,
		status, goalMet, now, now, id, SessionActive,
	)
	if err != nil {
		return fmt.Errorf("terminate session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("terminate session %s: %w", id, err)
	}
	if n == 0 {
		if _, getErr := s.GetSession(id); getErr != nil {
			return getErr
		}
		return ErrSessionTerminal
	}
	return nil
}

// CompleteSession marks a session completed. goalMet distinguishes the
// model declaring the goal done from the step budget running out.
func (s *Store) CompleteSession(id string, goalMet bool) error {
	return s.terminate(id, SessionCompleted, goalMet)
}

// FailSession marks a session failed.
func (s *Store) FailSession(id string) error {
	return s.terminate(id, SessionFailed, false)
}

// CancelSession marks a session cancelled.
func (s *Store) CancelSession(id string) error {
	return s.terminate(id, SessionCancelled, false)
}

// AppendMessage appends a message to a session as a new step, advancing
// the session's step counter atomically with the insert. The assigned
// step number and id are written back into the message. Terminal sessions
// reject appends with ErrSessionTerminal.
func (s *Store) AppendMessage(m *Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback()

	var status string
	var step int
	err = tx.QueryRow(
		`SELECT status, current_step FROM sessions WHERE id = ?`, m.SessionID,
	).Scan(&status, &step)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if status != SessionActive {
		return ErrSessionTerminal
	}

	step++
	now := time.Now().UTC()
	if _, err := tx.Exec(
		`UPDATE sessions SET current_step = ?, updated_at = ? WHERE id = ?`,
		step, now, m.SessionID,
	); err != nil {
		return fmt.Errorf("advance step: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}
	m.ID = id.String()
	m.StepNumber = step
	m.CreatedAt = now

	if _, err := tx.Exec(
		`INSERT INTO messages (id, session_id, step_number, role, content, tool_calls, tool_call_id, tool_name, tool_input, tool_output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.StepNumber, m.Role, m.Content,
		m.ToolCalls, m.ToolCallID, m.ToolName, m.ToolInput, m.ToolOutput, m.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

// Messages returns a session's full transcript in replay order.
func (s *Store) Messages(sessionID string) ([]*Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, step_number, role, content,
		        COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''),
		        COALESCE(tool_name, ''), COALESCE(tool_input, ''), COALESCE(tool_output, ''),
		        created_at
		 FROM messages WHERE session_id = ? ORDER BY step_number, created_at`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.StepNumber, &m.Role, &m.Content,
			&m.ToolCalls, &m.ToolCallID, &m.ToolName, &m.ToolInput, &m.ToolOutput, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
