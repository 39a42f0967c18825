package orchestrator

import (
	"github.com/crewforge/engine/internal/workflow"
)

// Status is a point-in-time snapshot of the pipeline, served by the HTTP API.
type Status struct {
	Project       string   `json:"project"`
	Started       bool     `json:"started"`
	State         string   `json:"state"`
	Progress      int      `json:"progress"`
	AssignedRole  string   `json:"assigned_role,omitempty"`
	TaskAttempt   int      `json:"task_attempt,omitempty"`
	Blockers      []string `json:"blockers,omitempty"`
	Rounds        int      `json:"remediation_rounds"`
	FailureReason string   `json:"failure_reason,omitempty"`
}

// Status reports the current pipeline state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Status{
		Project:       o.cfg.Project,
		Started:       o.started,
		State:         string(o.state),
		Progress:      workflow.Progress(o.state),
		Rounds:        o.governor.Rounds(o.state),
		FailureReason: o.failure,
	}
	if o.task != nil {
		s.AssignedRole = o.task.Role
		s.TaskAttempt = o.task.Attempt
	}
	for _, b := range o.gate.Open() {
		s.Blockers = append(s.Blockers, b.Kind+": "+b.Summary)
	}
	return s
}
