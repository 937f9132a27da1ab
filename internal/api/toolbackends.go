package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmathers/foreman/internal/store"
)

// toolPayload is the JSON body every builtin tool back end receives: the
// model's arguments plus the fields the dispatcher injects.
type toolPayload map[string]any

func (p toolPayload) str(key string) string {
	v, _ := p[key].(string)
	return v
}

func (p toolPayload) num(key string) float64 {
	v, _ := p[key].(float64)
	return v
}

func (s *Server) toolSuccess(w http.ResponseWriter, result string) {
	writeJSON(w, map[string]any{"success": true, "result": result}, s.logger)
}

func (s *Server) toolFailure(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, map[string]any{"success": false, "error": fmt.Sprintf(format, args...)}, s.logger)
}

// requireToolAuth guards the tool back ends with the shared bearer token
// the dispatcher forwards.
func (s *Server) requireToolAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Tools.Token
		if token == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		want := "Bearer " + token
		if subtle.ConstantTimeCompare([]byte(auth), []byte(want)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid tool token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleToolEndpoint(w http.ResponseWriter, r *http.Request) {
	var payload toolPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.toolFailure(w, "invalid JSON body: %v", err)
		return
	}

	name := r.PathValue("name")
	switch name {
	case "update_plan":
		s.toolUpdatePlan(w, payload)
	case "save_memory":
		s.toolSaveMemory(w, payload)
	case "read_file":
		s.toolReadFile(w, payload)
	case "write_file":
		s.toolWriteFile(w, payload)
	case "web_search":
		s.toolWebSearch(w, payload)
	default:
		s.toolFailure(w, "no builtin tool named %q", name)
	}
}

// toolUpdatePlan is the planning tool's back end. The model supplies an
// action (create, update_step, complete) and its parameters; the session
// id arrives via dispatcher injection.
func (s *Server) toolUpdatePlan(w http.ResponseWriter, payload toolPayload) {
	sessionID := payload.str("session_id")
	if sessionID == "" {
		s.toolFailure(w, "no session attached to this call")
		return
	}

	result, err := s.tracker.Apply(sessionID, payload)
	if err != nil {
		s.toolFailure(w, "%v", err)
		return
	}
	s.toolSuccess(w, result)
}

func (s *Server) toolSaveMemory(w http.ResponseWriter, payload toolPayload) {
	agentID := payload.str("agent_id")
	content := strings.TrimSpace(payload.str("content"))
	if agentID == "" {
		s.toolFailure(w, "no agent attached to this call")
		return
	}
	if content == "" {
		s.toolFailure(w, "content is required")
		return
	}

	item := &store.MemoryItem{
		AgentID:    agentID,
		Content:    content,
		Importance: payload.num("importance"),
		Source:     "agent",
	}
	if err := s.store.AddMemory(item); err != nil {
		s.toolFailure(w, "save memory: %v", err)
		return
	}
	s.toolSuccess(w, "Memory saved.")
}

// workspacePath confines a model-supplied relative path to the
// configured workspace directory.
func (s *Server) workspacePath(rel string) (string, error) {
	root := s.cfg.Workspace.Path
	if root == "" {
		return "", fmt.Errorf("no workspace directory is configured")
	}
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := filepath.Join(root, filepath.Clean("/"+rel))
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes the workspace")
	}
	return abs, nil
}

func (s *Server) toolReadFile(w http.ResponseWriter, payload toolPayload) {
	path, err := s.workspacePath(payload.str("path"))
	if err != nil {
		s.toolFailure(w, "%v", err)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.toolFailure(w, "read %s: %v", payload.str("path"), err)
		return
	}
	const maxReturn = 64 * 1024
	if len(data) > maxReturn {
		data = data[:maxReturn]
	}
	s.toolSuccess(w, string(data))
}

func (s *Server) toolWriteFile(w http.ResponseWriter, payload toolPayload) {
	path, err := s.workspacePath(payload.str("path"))
	if err != nil {
		s.toolFailure(w, "%v", err)
		return
	}
	content := payload.str("content")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.toolFailure(w, "write %s: %v", payload.str("path"), err)
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		s.toolFailure(w, "write %s: %v", payload.str("path"), err)
		return
	}
	s.toolSuccess(w, fmt.Sprintf("Wrote %d bytes to %s.", len(content), payload.str("path")))
}

// toolWebSearch is a placeholder until a search backend is wired up.
// Returning failure data keeps the model informed without crashing the
// loop.
func (s *Server) toolWebSearch(w http.ResponseWriter, payload toolPayload) {
	query := strings.TrimSpace(payload.str("query"))
	if query == "" {
		s.toolFailure(w, "query is required")
		return
	}
	s.toolFailure(w, "web search is not configured on this server")
}
