package plan

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DocumentStore is the slice of the persistence layer the tracker needs.
type DocumentStore interface {
	GetPlanDocument(sessionID string) (string, error)
	ReplacePlanDocument(sessionID, document string) error
}

// Tracker reads and writes a session's execution plan.
type Tracker struct {
	store  DocumentStore
	logger *slog.Logger
}

// NewTracker creates a plan tracker.
func NewTracker(store DocumentStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger.With("component", "plan")}
}

// Get returns the session's plan, or nil if the session has none or the
// stored document is malformed.
func (t *Tracker) Get(sessionID string) (*Plan, error) {
	doc, err := t.store.GetPlanDocument(sessionID)
	if err != nil {
		return nil, err
	}
	p := Decode(doc)
	if p == nil && doc != "" {
		t.logger.Warn("plan document unreadable, treating as no plan", "session_id", sessionID)
	}
	return p, nil
}

// save normalizes and persists a plan.
func (t *Tracker) save(sessionID string, p *Plan) error {
	p.normalize()
	doc, err := p.Encode()
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return t.store.ReplacePlanDocument(sessionID, doc)
}

// AutoCompleteInProgress marks the single in_progress step completed
// after a work tool succeeded, recording which tool did the work, and
// advances the index past it. Models reliably forget to close out a step
// after doing the work; this keeps autonomous continuation from stalling.
// No-op when there is no plan, the plan is not executing, or no step is
// in progress.
func (t *Tracker) AutoCompleteInProgress(sessionID, toolName string) error {
	p, err := t.Get(sessionID)
	if err != nil {
		return err
	}
	if p == nil || p.Status != StatusExecuting {
		return nil
	}

	idx := p.InProgressStep()
	if idx < 0 {
		return nil
	}

	now := time.Now().UTC()
	p.Steps[idx].Status = StepCompleted
	p.Steps[idx].Result = fmt.Sprintf("Completed via %s tool", toolName)
	p.Steps[idx].CompletedAt = &now

	t.logger.Debug("auto-completed plan step",
		"session_id", sessionID,
		"step", p.Steps[idx].StepNumber,
		"tool", toolName,
	)

	return t.save(sessionID, p)
}

// Apply executes a model-issued plan action (the planning tool's write
// path) and returns a short result summary for the tool response.
// Supported actions: create, update_step, complete.
func (t *Tracker) Apply(sessionID string, args map[string]any) (string, error) {
	action, _ := args["action"].(string)

	switch action {
	case "create":
		return t.applyCreate(sessionID, args)
	case "update_step":
		return t.applyUpdateStep(sessionID, args)
	case "complete":
		return t.applyComplete(sessionID)
	default:
		return "", fmt.Errorf("unknown plan action %q", action)
	}
}

func (t *Tracker) applyCreate(sessionID string, args map[string]any) (string, error) {
	goal, _ := args["goal"].(string)
	rawSteps, _ := args["steps"].([]any)
	if len(rawSteps) == 0 {
		return "", fmt.Errorf("a plan needs at least one step")
	}

	p := &Plan{Goal: goal, Status: StatusExecuting}
	for i, raw := range rawSteps {
		desc := ""
		switch v := raw.(type) {
		case string:
			desc = v
		case map[string]any:
			desc, _ = v["description"].(string)
		}
		desc = strings.TrimSpace(desc)
		if desc == "" {
			return "", fmt.Errorf("step %d has no description", i+1)
		}
		p.Steps = append(p.Steps, Step{
			StepNumber:  i + 1,
			Description: desc,
			Status:      StepPending,
		})
	}

	if err := t.save(sessionID, p); err != nil {
		return "", err
	}
	t.logger.Info("plan created", "session_id", sessionID, "steps", len(p.Steps))
	return fmt.Sprintf("Plan created with %d steps. Begin with step 1.", len(p.Steps)), nil
}

func (t *Tracker) applyUpdateStep(sessionID string, args map[string]any) (string, error) {
	p, err := t.Get(sessionID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("no plan exists for this session")
	}

	stepNum := intArg(args, "step_number")
	status, _ := args["status"].(string)
	result, _ := args["result"].(string)

	if status != StepPending && status != StepInProgress && status != StepCompleted {
		return "", fmt.Errorf("invalid step status %q", status)
	}

	idx := -1
	for i, s := range p.Steps {
		if s.StepNumber == stepNum {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("no step numbered %d", stepNum)
	}

	// A plan has at most one step in progress at a time.
	if status == StepInProgress {
		for i := range p.Steps {
			if i != idx && p.Steps[i].Status == StepInProgress {
				p.Steps[i].Status = StepPending
			}
		}
	}

	p.Steps[idx].Status = status
	if result != "" {
		p.Steps[idx].Result = result
	}
	if status == StepCompleted {
		now := time.Now().UTC()
		p.Steps[idx].CompletedAt = &now
	}

	if err := t.save(sessionID, p); err != nil {
		return "", err
	}
	return fmt.Sprintf("Step %d marked %s.", stepNum, status), nil
}

func (t *Tracker) applyComplete(sessionID string) (string, error) {
	p, err := t.Get(sessionID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("no plan exists for this session")
	}

	now := time.Now().UTC()
	for i := range p.Steps {
		if p.Steps[i].Status != StepCompleted {
			p.Steps[i].Status = StepCompleted
			p.Steps[i].CompletedAt = &now
		}
	}
	p.Status = StatusCompleted

	if err := t.save(sessionID, p); err != nil {
		return "", err
	}
	t.logger.Info("plan completed", "session_id", sessionID)
	return "Plan marked complete.", nil
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
