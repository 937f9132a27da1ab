package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AddMemory persists a long-term memory item for an agent.
func (s *Store) AddMemory(m *MemoryItem) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Importance <= 0 {
		m.Importance = 0.5
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.LastAccessed = now

	_, err := s.db.Exec(
		`INSERT INTO memories (id, agent_id, content, importance, source, created_at, last_accessed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, m.Content, m.Importance, m.Source, m.CreatedAt, m.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

// TopMemories returns an agent's most relevant memories, ranked by
// importance then by recency of access. Reads touch last_accessed so
// recently used memories stay warm in the ranking.
func (s *Store) TopMemories(agentID string, limit int) ([]*MemoryItem, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT id, agent_id, content, importance, COALESCE(source, ''), created_at, last_accessed
		 FROM memories WHERE agent_id = ?
		 ORDER BY importance DESC, last_accessed DESC
		 LIMIT ?`, agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top memories for %s: %w", agentID, err)
	}
	defer rows.Close()

	var items []*MemoryItem
	var ids []any
	for rows.Next() {
		var m MemoryItem
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Content, &m.Importance, &m.Source,
			&m.CreatedAt, &m.LastAccessed); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		items = append(items, &m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := append([]any{time.Now().UTC()}, ids...)
		if _, err := s.db.Exec(
			`UPDATE memories SET last_accessed = ? WHERE id IN (`+placeholders+`)`, args...,
		); err != nil {
			return nil, fmt.Errorf("touch memories: %w", err)
		}
	}

	return items, nil
}

// DeleteMemoriesBySource removes all of an agent's memories imported from
// a given source, so a document can be re-ingested cleanly.
func (s *Store) DeleteMemoriesBySource(agentID, source string) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM memories WHERE agent_id = ? AND source = ?`, agentID, source,
	)
	if err != nil {
		return 0, fmt.Errorf("delete memories from %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete memories from %s: %w", source, err)
	}
	return int(n), nil
}
