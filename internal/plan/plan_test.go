package plan

import (
	"strings"
	"testing"
)

// memStore is an in-memory DocumentStore for tracker tests.
type memStore struct {
	docs map[string]string
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]string)}
}

func (m *memStore) GetPlanDocument(sessionID string) (string, error) {
	return m.docs[sessionID], nil
}

func (m *memStore) ReplacePlanDocument(sessionID, document string) error {
	m.docs[sessionID] = document
	return nil
}

func TestDecodeToleratesBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not json", "definitely not json"},
		{"wrong shape", `{"steps": "oops"}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p := Decode(tt.doc); p != nil {
				t.Errorf("Decode(%q) = %+v, want nil", tt.doc, p)
			}
		})
	}
}

func TestDecodeNormalizesIndex(t *testing.T) {
	doc := `{"goal":"g","status":"executing","current_step_index":0,"steps":[
		{"step_number":1,"description":"a","status":"completed"},
		{"step_number":2,"description":"b","status":"pending"}]}`
	p := Decode(doc)
	if p == nil {
		t.Fatal("Decode returned nil")
	}
	if p.CurrentStepIndex != 1 {
		t.Errorf("index = %d, want 1 (first non-completed step)", p.CurrentStepIndex)
	}
}

func TestDecodeIndexPastEndWhenAllCompleted(t *testing.T) {
	doc := `{"goal":"g","status":"executing","steps":[
		{"step_number":1,"description":"a","status":"completed"}]}`
	p := Decode(doc)
	if p == nil {
		t.Fatal("Decode returned nil")
	}
	if p.CurrentStepIndex != 1 {
		t.Errorf("index = %d, want 1 (past end)", p.CurrentStepIndex)
	}
}

func TestApplyCreate(t *testing.T) {
	store := newMemStore()
	tr := NewTracker(store, nil)

	result, err := tr.Apply("s1", map[string]any{
		"action": "create",
		"goal":   "write a report",
		"steps":  []any{"gather sources", "draft", "review"},
	})
	if err != nil {
		t.Fatalf("apply create: %v", err)
	}
	if !strings.Contains(result, "3 steps") {
		t.Errorf("result = %q, want mention of 3 steps", result)
	}

	p, err := tr.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p == nil {
		t.Fatal("plan not persisted")
	}
	if p.Status != StatusExecuting {
		t.Errorf("status = %q, want executing", p.Status)
	}
	if len(p.Steps) != 3 || p.Steps[0].Status != StepPending {
		t.Errorf("steps = %+v", p.Steps)
	}
	if p.CurrentStepIndex != 0 {
		t.Errorf("index = %d, want 0", p.CurrentStepIndex)
	}
}

func TestApplyCreateAcceptsObjectSteps(t *testing.T) {
	tr := NewTracker(newMemStore(), nil)
	_, err := tr.Apply("s1", map[string]any{
		"action": "create",
		"goal":   "g",
		"steps": []any{
			map[string]any{"description": "first"},
			map[string]any{"description": "second"},
		},
	})
	if err != nil {
		t.Fatalf("apply create: %v", err)
	}
}

func TestApplyCreateRejectsEmptyPlan(t *testing.T) {
	tr := NewTracker(newMemStore(), nil)
	if _, err := tr.Apply("s1", map[string]any{"action": "create", "goal": "g"}); err == nil {
		t.Error("expected error for plan with no steps")
	}
}

func TestApplyUpdateStep(t *testing.T) {
	store := newMemStore()
	tr := NewTracker(store, nil)
	mustCreate(t, tr, "s1", "a", "b")

	if _, err := tr.Apply("s1", map[string]any{
		"action": "update_step", "step_number": float64(1), "status": "in_progress",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, _ := tr.Get("s1")
	if p.Steps[0].Status != StepInProgress {
		t.Errorf("step 1 status = %q, want in_progress", p.Steps[0].Status)
	}

	// Moving step 2 to in_progress demotes step 1 back to pending.
	if _, err := tr.Apply("s1", map[string]any{
		"action": "update_step", "step_number": float64(2), "status": "in_progress",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, _ = tr.Get("s1")
	if p.Steps[0].Status != StepPending || p.Steps[1].Status != StepInProgress {
		t.Errorf("statuses = [%s, %s], want [pending, in_progress]",
			p.Steps[0].Status, p.Steps[1].Status)
	}
}

func TestApplyUpdateStepValidation(t *testing.T) {
	tr := NewTracker(newMemStore(), nil)
	mustCreate(t, tr, "s1", "a")

	if _, err := tr.Apply("s1", map[string]any{
		"action": "update_step", "step_number": float64(9), "status": "completed",
	}); err == nil {
		t.Error("expected error for unknown step number")
	}
	if _, err := tr.Apply("s1", map[string]any{
		"action": "update_step", "step_number": float64(1), "status": "done",
	}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestApplyComplete(t *testing.T) {
	tr := NewTracker(newMemStore(), nil)
	mustCreate(t, tr, "s1", "a", "b")

	if _, err := tr.Apply("s1", map[string]any{"action": "complete"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	p, _ := tr.Get("s1")
	if p.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", p.Status)
	}
	for _, s := range p.Steps {
		if s.Status != StepCompleted {
			t.Errorf("step %d status = %q, want completed", s.StepNumber, s.Status)
		}
	}
	if p.CurrentStepIndex != 2 {
		t.Errorf("index = %d, want past end", p.CurrentStepIndex)
	}
}

func TestAutoCompleteMarksExactlyOneStep(t *testing.T) {
	tr := NewTracker(newMemStore(), nil)
	mustCreate(t, tr, "s1", "a", "b", "c")
	if _, err := tr.Apply("s1", map[string]any{
		"action": "update_step", "step_number": float64(1), "status": "in_progress",
	}); err != nil {
		t.Fatal(err)
	}

	if err := tr.AutoCompleteInProgress("s1", "write_file"); err != nil {
		t.Fatalf("auto-complete: %v", err)
	}

	p, _ := tr.Get("s1")
	completed := 0
	for _, s := range p.Steps {
		if s.Status == StepCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("completed %d steps, want exactly 1", completed)
	}
	if p.Steps[0].Status != StepCompleted {
		t.Error("in_progress step was not the one completed")
	}
	if !strings.Contains(p.Steps[0].Result, "write_file") {
		t.Errorf("result = %q, want mention of the tool", p.Steps[0].Result)
	}
	if p.Steps[0].CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if p.CurrentStepIndex != 1 {
		t.Errorf("index = %d, want 1 (next pending step)", p.CurrentStepIndex)
	}
}

func TestAutoCompleteNoOpWithoutInProgressStep(t *testing.T) {
	tr := NewTracker(newMemStore(), nil)
	mustCreate(t, tr, "s1", "a")

	if err := tr.AutoCompleteInProgress("s1", "write_file"); err != nil {
		t.Fatalf("auto-complete: %v", err)
	}
	p, _ := tr.Get("s1")
	if p.Steps[0].Status != StepPending {
		t.Errorf("step status = %q, want untouched pending", p.Steps[0].Status)
	}
}

func TestAutoCompleteNoOpOnNonExecutingPlan(t *testing.T) {
	store := newMemStore()
	tr := NewTracker(store, nil)
	store.docs["s1"] = `{"goal":"g","status":"waiting_for_user","steps":[
		{"step_number":1,"description":"a","status":"in_progress"}]}`

	if err := tr.AutoCompleteInProgress("s1", "write_file"); err != nil {
		t.Fatalf("auto-complete: %v", err)
	}
	p, _ := tr.Get("s1")
	if p.Steps[0].Status != StepInProgress {
		t.Errorf("step status = %q, want untouched in_progress", p.Steps[0].Status)
	}
}

func TestAutoCompleteNoOpWithoutPlan(t *testing.T) {
	tr := NewTracker(newMemStore(), nil)
	if err := tr.AutoCompleteInProgress("s1", "write_file"); err != nil {
		t.Fatalf("auto-complete without plan: %v", err)
	}
}

func TestHasActionableSteps(t *testing.T) {
	p := &Plan{Status: StatusExecuting, Steps: []Step{
		{StepNumber: 1, Status: StepCompleted},
		{StepNumber: 2, Status: StepPending},
	}}
	if !p.HasActionableSteps() {
		t.Error("plan with a pending step should be actionable")
	}

	p.Steps[1].Status = StepCompleted
	if p.HasActionableSteps() {
		t.Error("fully completed plan should not be actionable")
	}

	p.Steps[1].Status = StepPending
	p.Status = StatusWaitingForUser
	if p.HasActionableSteps() {
		t.Error("waiting_for_user plan should not be actionable")
	}
}

func mustCreate(t *testing.T, tr *Tracker, sessionID string, steps ...string) {
	t.Helper()
	raw := make([]any, len(steps))
	for i, s := range steps {
		raw[i] = s
	}
	if _, err := tr.Apply(sessionID, map[string]any{
		"action": "create", "goal": "test goal", "steps": raw,
	}); err != nil {
		t.Fatalf("create plan: %v", err)
	}
}
