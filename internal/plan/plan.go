// Package plan tracks a session's execution plan: a model-authored
// breakdown of the goal into ordered, status-tracked steps, stored as a
// single JSON document per session.
package plan

import (
	"encoding/json"
	"time"
)

// Plan statuses.
const (
	StatusExecuting      = "executing"
	StatusWaitingForUser = "waiting_for_user"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
)

// Step statuses.
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
)

// Plan is a structured breakdown of a goal into ordered steps.
type Plan struct {
	Goal             string `json:"goal"`
	Steps            []Step `json:"steps"`
	Status           string `json:"status"`
	CurrentStepIndex int    `json:"current_step_index"`
}

// Step is one unit of planned work.
type Step struct {
	StepNumber  int        `json:"step_number"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Decode parses a plan document. Absent or malformed documents decode to
// nil: plans are optional and the engine must run agents that never plan
// at all, so a bad document is "no plan", not an error.
func Decode(document string) *Plan {
	if document == "" {
		return nil
	}
	var p Plan
	if err := json.Unmarshal([]byte(document), &p); err != nil {
		return nil
	}
	if p.Goal == "" && len(p.Steps) == 0 {
		return nil
	}
	p.normalize()
	return &p
}

// Encode serializes a plan back into its stored document form.
func (p *Plan) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// normalize repairs the index so that CurrentStepIndex always points at
// the first non-completed step, or past the end if all are completed.
func (p *Plan) normalize() {
	if p.Status == "" {
		p.Status = StatusExecuting
	}
	idx := len(p.Steps)
	for i, s := range p.Steps {
		if s.Status != StepCompleted {
			idx = i
			break
		}
	}
	p.CurrentStepIndex = idx
}

// InProgressStep returns the index of the step currently in progress,
// or -1 if none is.
func (p *Plan) InProgressStep() int {
	for i, s := range p.Steps {
		if s.Status == StepInProgress {
			return i
		}
	}
	return -1
}

// HasActionableSteps reports whether the plan still has work the agent
// could continue autonomously: it is executing and at least one step is
// pending or in progress.
func (p *Plan) HasActionableSteps() bool {
	if p.Status != StatusExecuting {
		return false
	}
	for _, s := range p.Steps {
		if s.Status == StepPending || s.Status == StepInProgress {
			return true
		}
	}
	return false
}
