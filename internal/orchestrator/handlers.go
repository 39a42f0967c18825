package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/crewforge/engine/internal/domain"
	"github.com/crewforge/engine/internal/workflow"
)

// SubmitDeliverable validates a deliverable submission against the state
// machine and the artifact store. An incomplete submission is rejected with
// the exact missing set and the state is unchanged; a complete one triggers
// the transition to the mapped next state.
func (o *Orchestrator) SubmitDeliverable(ctx context.Context, msg domain.Message) error {
	if msg.Kind != domain.KindDeliverable {
		return domain.NewEngineError(domain.ErrValidation.Code, "not a deliverable message")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return domain.ErrNotStarted
	}
	if workflow.IsTerminal(o.state) {
		o.sendError(msg.From, "project_done", fmt.Sprintf("project is %s", o.state))
		return nil
	}

	state := o.state
	category := workflow.Category(state)
	names := msg.Content.ArtifactNames()

	// Every named artifact must actually exist under the state's category.
	for _, name := range names {
		if !o.artifacts.Exists(category, name) {
			o.sendError(msg.From, "validation_error",
				fmt.Sprintf("artifact %s/%s is named but not stored", category, name))
			return nil
		}
	}

	// Track what has been provided for this state.
	if o.received[state] == nil {
		o.received[state] = make(map[string]bool)
	}
	for _, name := range names {
		o.received[state][name] = true
	}

	missing := o.missingLocked(state)
	if len(missing) > 0 {
		o.rejectMissing(msg.From, missing)
		return nil
	}

	// A review deliverable carries the verdict. NO-GO holds the state and
	// spends a remediation round; any other verdict releases prior review
	// blockers.
	if state == domain.StateReview {
		if v := msg.Content.String("decision"); v != "" {
			verdict := domain.ReviewVerdict(v)
			if workflow.BlockingVerdict(verdict) {
				o.gate.Add(workflow.Blocker{Kind: "review", From: msg.From, Summary: string(verdict)})
				o.audit(ctx, "review", msg.From, "no_go", msg.Content.String("summary"), "warning")
				return o.remediateLocked(ctx, o.cfg.RemediationRole, "review verdict NO-GO", msg.ID)
			}
			o.gate.ResolveAll("review")
			o.audit(ctx, "review", msg.From, "verdict", string(verdict), "info")
		}
	}

	// All deliverables present; open blockers still hold the state.
	if decision := o.gate.Evaluate(); !decision.Allow {
		o.sendError(msg.From, "state_blocked",
			fmt.Sprintf("state %s is held: %s", state, strings.Join(decision.Blockers, "; ")))
		return nil
	}

	// Architecture completion promotes proposed decisions to accepted.
	if state == domain.StateArchitecture {
		o.acceptProposedDecisions()
	}

	to, err := workflow.Next(state)
	if err != nil {
		return o.failLocked(ctx, fmt.Sprintf("no next state from %s: %v", state, err), msg.ID)
	}
	if !workflow.CanTransition(state, to) {
		// A table that disagrees with the forward path is a configuration
		// bug, not a runtime condition.
		o.audit(ctx, "workflow", Name, "transition_table_invalid",
			fmt.Sprintf("%s -> %s", state, to), "error")
		return o.failLocked(ctx, fmt.Sprintf("transition table misconfigured: %s -> %s", state, to), msg.ID)
	}

	return o.transitionLocked(ctx, to, fmt.Sprintf("deliverables complete for %s", state), msg.ID)
}

// missingLocked computes requiredDeliverables[state] minus everything
// received so far. Caller holds o.mu.
func (o *Orchestrator) missingLocked(state domain.State) []string {
	var missing []string
	for _, req := range workflow.RequiredDeliverables(state) {
		if !o.received[state][req] {
			missing = append(missing, req)
		}
	}
	sort.Strings(missing)
	return missing
}

// rejectMissing sends the exact missing set back to the submitter.
func (o *Orchestrator) rejectMissing(to string, missing []string) {
	msg, err := domain.NewErrorMessage(Name, to, "missing_deliverables",
		fmt.Sprintf("missing: %s", strings.Join(missing, ", ")))
	if err != nil {
		log.Printf("orchestrator: build rejection: %v", err)
		return
	}
	msg.Content["missing"] = missing
	if err := o.bus.Send(msg); err != nil {
		log.Printf("orchestrator: send rejection to %s: %v", to, err)
	}
}

// acceptProposedDecisions promotes every proposed decision under the
// authority role. Caller holds o.mu.
func (o *Orchestrator) acceptProposedDecisions() {
	for _, d := range o.decisions.ListByStatus(domain.DecisionProposed) {
		if err := o.decisions.Accept(d.ID, o.cfg.AuthorityRole); err != nil {
			log.Printf("orchestrator: accept decision %d: %v", d.ID, err)
		}
	}
}

// SubmitClarification handles a clarification request. A blocking
// clarification halts dispatch in the current state until resolved and is
// forwarded to the configured resolver; a non-blocking one is only logged.
func (o *Orchestrator) SubmitClarification(ctx context.Context, msg domain.Message) error {
	if msg.Kind != domain.KindClarification {
		return domain.NewEngineError(domain.ErrValidation.Code, "not a clarification message")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	question := msg.Content.String("question")
	if !msg.Blocking {
		log.Printf("orchestrator: clarification from %s (non-blocking): %s", msg.From, question)
		return nil
	}

	o.gate.Add(workflow.Blocker{Kind: "clarification", From: msg.From, Summary: question})
	o.audit(ctx, "clarification", msg.From, "blocking_clarification", question, "warning")

	forward := msg
	forward.To = o.cfg.Resolver
	if err := o.bus.Send(forward); err != nil {
		return err
	}
	log.Printf("orchestrator: state %s halted on clarification from %s", o.state, msg.From)
	return nil
}

// ResolveClarifications records that open clarifications were answered and
// unblocks the state. Returns the number resolved.
func (o *Orchestrator) ResolveClarifications(ctx context.Context) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.gate.ResolveAll("clarification")
	if n > 0 {
		o.audit(ctx, "clarification", o.cfg.Resolver, "clarifications_resolved",
			fmt.Sprintf("%d resolved", n), "info")
	}
	return n
}

// SubmitBugReport handles a TESTING-state bug report. A blocking severity
// holds the state and triggers a bounded remediation round; any other
// severity clears prior bug blockers.
func (o *Orchestrator) SubmitBugReport(ctx context.Context, msg domain.Message) error {
	if msg.Kind != domain.KindBugReport {
		return domain.NewEngineError(domain.ErrValidation.Code, "not a bug report message")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != domain.StateTesting {
		o.sendError(msg.From, "wrong_state",
			fmt.Sprintf("bug reports apply to %s, project is in %s", domain.StateTesting, o.state))
		return nil
	}

	severity := msg.Content.String("severity")
	summary := msg.Content.String("summary")

	if !workflow.BlockingSeverity(severity) {
		o.gate.ResolveAll("bug_report")
		log.Printf("orchestrator: bug report from %s (severity=%s) cleared blockers", msg.From, severity)
		return nil
	}

	o.gate.Add(workflow.Blocker{Kind: "bug_report", From: msg.From, Summary: summary})
	o.audit(ctx, "bug_report", msg.From, "blocking_bug", summary, "warning")

	// Remediation goes back to the worker originally assigned this state.
	return o.remediateLocked(ctx, workflow.ResponsibleRole(o.state),
		fmt.Sprintf("blocking bug: %s", summary), msg.ID)
}

// SubmitReviewDecision handles a REVIEW-state verdict. NO-GO holds the state
// and triggers a remediation round to the configured remediation role; GO and
// CONDITIONAL GO clear review blockers.
func (o *Orchestrator) SubmitReviewDecision(ctx context.Context, msg domain.Message) error {
	if msg.Kind != domain.KindReviewComplete {
		return domain.NewEngineError(domain.ErrValidation.Code, "not a review message")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != domain.StateReview {
		o.sendError(msg.From, "wrong_state",
			fmt.Sprintf("review decisions apply to %s, project is in %s", domain.StateReview, o.state))
		return nil
	}

	verdict := domain.ReviewVerdict(msg.Content.String("decision"))
	if !workflow.BlockingVerdict(verdict) {
		o.gate.ResolveAll("review")
		log.Printf("orchestrator: review verdict %s from %s", verdict, msg.From)
		return nil
	}

	o.gate.Add(workflow.Blocker{Kind: "review", From: msg.From, Summary: string(verdict)})
	o.audit(ctx, "review", msg.From, "no_go", msg.Content.String("summary"), "warning")

	return o.remediateLocked(ctx, o.cfg.RemediationRole, "review verdict NO-GO", msg.ID)
}

// handleWorkerError treats a typed worker error as a failed attempt:
// re-dispatch within the retry budget, escalate to FAILED when exhausted.
func (o *Orchestrator) handleWorkerError(ctx context.Context, msg domain.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	errType := msg.Content.String("error_type")
	detail := msg.Content.String("message")
	o.audit(ctx, "error", msg.From, errType, detail, "error")

	if !o.started || workflow.IsTerminal(o.state) {
		return nil
	}
	return o.remediateLocked(ctx, workflow.ResponsibleRole(o.state),
		fmt.Sprintf("%s: %s", errType, detail), msg.ID)
}

// remediateLocked spends one remediation round: re-dispatch to the given role
// or, when the budget is exhausted, move the project to FAILED. Caller holds
// o.mu.
func (o *Orchestrator) remediateLocked(ctx context.Context, role, reason, messageID string) error {
	action := o.governor.Record(o.state)
	round := o.governor.Rounds(o.state)

	switch action {
	case domain.RetryHalt:
		o.audit(ctx, "remediation", Name, "rounds_exhausted", reason, "error")
		return o.failLocked(ctx, fmt.Sprintf("remediation rounds exhausted in %s: %s", o.state, reason), messageID)
	case domain.RetryWarn:
		o.audit(ctx, "remediation", Name, "budget_warning",
			fmt.Sprintf("round %d of %d", round, o.cfg.MaxRemediationRounds), "warning")
	}

	// A blocking clarification halts dispatch of further tasks in this state;
	// other blockers stay open until the remediation outcome arrives.
	for _, b := range o.gate.Open() {
		if b.Kind == "clarification" {
			log.Printf("orchestrator: remediation deferred, state halted on clarification")
			return nil
		}
	}

	log.Printf("orchestrator: remediation round %d in %s -> %s (%s)", round, o.state, role, reason)
	return o.dispatchRemediationLocked(role, round+1, reason)
}

// dispatchRemediationLocked sends a remediation task. Caller holds o.mu.
func (o *Orchestrator) dispatchRemediationLocked(role string, attempt int, reason string) error {
	state := o.state
	now := timeNow()
	task := domain.Task{
		State: state,
		Description: fmt.Sprintf("Remediate and resubmit the %s deliverables. Reason: %s",
			state, reason),
		Role:         role,
		Deliverables: workflow.RequiredDeliverables(state),
		Constraints:  o.decisions.ConstraintsSummary(),
		DispatchedAt: now,
		Deadline:     now.Add(o.cfg.TaskDeadline),
		Attempt:      attempt,
	}
	msg, err := domain.NewTaskMessage(Name, role, task)
	if err != nil {
		return err
	}
	if err := o.bus.Send(msg); err != nil {
		return err
	}
	o.task = &task
	return nil
}
