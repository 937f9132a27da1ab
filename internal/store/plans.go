package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetPlanDocument returns the raw plan document for a session, or an
// empty string if the session has no plan. The document is opaque JSON
// at this layer; decoding and validation live in the plan package.
func (s *Store) GetPlanDocument(sessionID string) (string, error) {
	var doc string
	err := s.db.QueryRow(
		`SELECT document FROM plans WHERE session_id = ?`, sessionID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get plan for %s: %w", sessionID, err)
	}
	return doc, nil
}

// ReplacePlanDocument upserts a session's plan document. Each session
// has at most one plan.
func (s *Store) ReplacePlanDocument(sessionID, document string) error {
	_, err := s.db.Exec(
		`INSERT INTO plans (session_id, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE
		 SET document = excluded.document, updated_at = excluded.updated_at`,
		sessionID, document, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("replace plan for %s: %w", sessionID, err)
	}
	return nil
}
