// Package store provides SQLite-backed persistence for agents, sessions,
// messages, memories, tool descriptors, and execution plan documents.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a keyed read matches no row.
	ErrNotFound = errors.New("not found")

	// ErrSessionTerminal is returned when a write targets a session that
	// has already completed, failed, or been cancelled.
	ErrSessionTerminal = errors.New("session is terminal")
)

// Store is the persistence layer. All public methods are safe for
// concurrent use (SQLite serializes writes); the engine additionally
// assumes a single driver per session.
type Store struct {
	db *sql.DB
}

// Open creates a store at the given database path. The schema is created
// automatically on first use.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		name          TEXT NOT NULL,
		goal          TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		temperature   REAL NOT NULL DEFAULT 0.7,
		max_steps     INTEGER NOT NULL DEFAULT 10,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMP NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id)
	);
	CREATE INDEX IF NOT EXISTS idx_agents_tenant ON agents(tenant_id);

	CREATE TABLE IF NOT EXISTS tools (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL UNIQUE,
		description  TEXT NOT NULL,
		input_schema TEXT NOT NULL,
		tool_type    TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_tools (
		agent_id TEXT NOT NULL,
		tool_id  TEXT NOT NULL,
		PRIMARY KEY (agent_id, tool_id),
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE,
		FOREIGN KEY (tool_id) REFERENCES tools(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		tenant_id    TEXT NOT NULL,
		agent_id     TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'active',
		current_step INTEGER NOT NULL DEFAULT 0,
		goal_met     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL,
		ended_at     TIMESTAMP,
		FOREIGN KEY (agent_id) REFERENCES agents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id, created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		step_number  INTEGER NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL,
		tool_calls   TEXT,
		tool_call_id TEXT,
		tool_name    TEXT,
		tool_input   TEXT,
		tool_output  TEXT,
		created_at   TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, step_number, created_at);

	CREATE TABLE IF NOT EXISTS memories (
		id            TEXT PRIMARY KEY,
		agent_id      TEXT NOT NULL,
		content       TEXT NOT NULL,
		importance    REAL NOT NULL DEFAULT 0.5,
		source        TEXT,
		created_at    TIMESTAMP NOT NULL,
		last_accessed TIMESTAMP NOT NULL,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id, importance);

	CREATE TABLE IF NOT EXISTS plans (
		session_id TEXT PRIMARY KEY,
		document   TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
