// Package orchestrator implements the Coordinator: it assigns tasks over the
// bus, validates deliverables against the state machine and the stores, and
// drives transitions. Every accepted transition lands in the append-only
// transition log.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewforge/engine/internal/artifact"
	"github.com/crewforge/engine/internal/bus"
	"github.com/crewforge/engine/internal/decision"
	"github.com/crewforge/engine/internal/domain"
	"github.com/crewforge/engine/internal/store"
	"github.com/crewforge/engine/internal/workflow"
)

// Name is the orchestrator's identity on the bus.
const Name = "orchestrator"

// Config holds the orchestrator's tunables.
type Config struct {
	// Project identifies this pipeline run in the transition log.
	Project string
	// AuthorityRole is the only role allowed to accept or deprecate decisions.
	AuthorityRole string
	// Resolver receives forwarded blocking clarifications.
	Resolver string
	// RemediationRole receives the remediation task after a NO-GO review.
	RemediationRole string
	// MaxRemediationRounds bounds remediation rounds per state.
	MaxRemediationRounds int
	// TaskDeadline is how long a worker has to answer a dispatched task.
	TaskDeadline time.Duration
	// WatchInterval is the deadline watchdog's check period.
	WatchInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Project == "" {
		c.Project = "project"
	}
	if c.AuthorityRole == "" {
		c.AuthorityRole = Name
	}
	if c.Resolver == "" {
		c.Resolver = "human"
	}
	if c.RemediationRole == "" {
		c.RemediationRole = workflow.ResponsibleRole(domain.StateImplementation)
	}
	if c.MaxRemediationRounds == 0 {
		c.MaxRemediationRounds = 3
	}
	if c.TaskDeadline == 0 {
		c.TaskDeadline = 10 * time.Minute
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = 10 * time.Second
	}
}

// Orchestrator coordinates the pipeline. All state mutations run under one
// lock, which makes the transition log totally ordered.
type Orchestrator struct {
	cfg       Config
	bus       *bus.Bus
	decisions *decision.Store
	artifacts *artifact.Store
	db        *sql.DB
	transRepo *store.TransitionRepo
	auditRepo *store.AuditRepo

	mu       sync.Mutex
	started  bool
	state    domain.State
	request  string
	task     *domain.Task
	received map[domain.State]map[string]bool
	gate     *workflow.BlockerGate
	governor *workflow.RemediationGovernor
	failure  string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New wires an orchestrator and registers it (and the resolver channel) on
// the bus.
func New(cfg Config, b *bus.Bus, decisions *decision.Store, artifacts *artifact.Store, db *sql.DB) *Orchestrator {
	cfg.applyDefaults()
	b.Register(Name)
	b.Register(cfg.Resolver)
	return &Orchestrator{
		cfg:       cfg,
		bus:       b,
		decisions: decisions,
		artifacts: artifacts,
		db:        db,
		transRepo: &store.TransitionRepo{},
		auditRepo: &store.AuditRepo{},
		state:     workflow.Initial(),
		received:  make(map[domain.State]map[string]bool),
		gate:      workflow.NewBlockerGate(),
		governor:  workflow.NewRemediationGovernor(cfg.MaxRemediationRounds),
		stopCh:    make(chan struct{}),
	}
}

// StartProject begins the pipeline for the given request: the project enters
// INTAKE, immediately transitions to the first working state, and the first
// task is dispatched. A second call fails with ErrAlreadyStarted.
func (o *Orchestrator) StartProject(ctx context.Context, requestText string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return domain.ErrAlreadyStarted
	}
	if requestText == "" {
		return domain.NewEngineError(domain.ErrValidation.Code, "request text is empty")
	}

	o.request = requestText
	o.state = workflow.Initial()

	first, err := workflow.Next(o.state)
	if err != nil {
		return err
	}
	// Mark started only once the opening transition lands, so a failed
	// start can be retried instead of reporting ErrAlreadyStarted.
	if err := o.transitionLocked(ctx, first, "project started", ""); err != nil {
		return err
	}
	o.started = true
	return nil
}

// State returns the current project state.
func (o *Orchestrator) State() domain.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run drives the orchestrator's message loop until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		msg, err := o.bus.Receive(ctx, Name)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		o.dispatchMessage(ctx, msg)
	}
}

// dispatchMessage routes one message by kind. The kind set is closed.
func (o *Orchestrator) dispatchMessage(ctx context.Context, msg domain.Message) {
	var err error
	switch msg.Kind {
	case domain.KindDeliverable:
		err = o.SubmitDeliverable(ctx, msg)
	case domain.KindClarification:
		err = o.SubmitClarification(ctx, msg)
	case domain.KindBugReport:
		err = o.SubmitBugReport(ctx, msg)
	case domain.KindReviewComplete:
		err = o.SubmitReviewDecision(ctx, msg)
	case domain.KindStatus:
		log.Printf("orchestrator: status from %s: %s", msg.From, msg.Content.String("status"))
	case domain.KindError:
		err = o.handleWorkerError(ctx, msg)
	case domain.KindTask:
		// Tasks flow outward only.
	default:
		err = domain.WrapEngineError(domain.ErrUnknownKind.Code, string(msg.Kind), nil)
	}
	if err != nil {
		log.Printf("orchestrator: handle %s from %s: %v", msg.Kind, msg.From, err)
	}
}

// transitionLocked performs a validated transition: log entry, state change,
// per-state bookkeeping reset, broadcast, and next-task dispatch. Caller
// holds o.mu.
func (o *Orchestrator) transitionLocked(ctx context.Context, to domain.State, reason, messageID string) error {
	from := o.state
	if !workflow.CanTransition(from, to) {
		return domain.WrapEngineError(domain.ErrTransitionTable.Code,
			fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	}

	if err := o.transRepo.Append(ctx, o.db, domain.Transition{
		Project:   o.cfg.Project,
		From:      from,
		To:        to,
		Reason:    reason,
		MessageID: messageID,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		return err
	}

	o.state = to
	o.task = nil
	o.gate.Clear()
	o.governor.Reset(from)

	o.broadcastStateChange(from, to)

	if !workflow.IsTerminal(to) {
		return o.dispatchTaskLocked(to, 1)
	}
	return nil
}

// dispatchTaskLocked builds and sends the task for a state. Caller holds o.mu.
func (o *Orchestrator) dispatchTaskLocked(state domain.State, attempt int) error {
	role := workflow.ResponsibleRole(state)
	now := timeNow()
	task := domain.Task{
		State:        state,
		Description:  o.taskDescription(state),
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
	log.Printf("orchestrator: dispatched %s task to %s (attempt %d)", state, role, attempt)
	return nil
}

// taskDescription renders the work statement for a state.
func (o *Orchestrator) taskDescription(state domain.State) string {
	switch state {
	case domain.StateAnalysis:
		return fmt.Sprintf("Analyze the request and produce functional specifications and user stories:\n\n%s", o.request)
	case domain.StateArchitecture:
		return "Design the system architecture from the functional specification. Produce architecture documentation, the API contract, and decision records."
	case domain.StateDesign:
		return "Create the UI/UX design: design system and wireframes, grounded in the user stories."
	case domain.StateImplementation:
		return "Implement the backend and frontend per the architecture and design."
	case domain.StateTesting:
		return "Test the implementation against every user story. Report bugs with severity."
	case domain.StateReview:
		return "Perform the final review across architecture, security, and quality. Conclude GO or NO-GO."
	default:
		return fmt.Sprintf("Execute the %s stage", state)
	}
}

// broadcastStateChange notifies every worker of a transition.
func (o *Orchestrator) broadcastStateChange(from, to domain.State) {
	msg, err := domain.NewMessage(Name, "broadcast", domain.KindStatus, domain.Content{
		"status":    "state_change",
		"old_state": string(from),
		"new_state": string(to),
		"progress":  workflow.Progress(to),
	})
	if err != nil {
		log.Printf("orchestrator: build state change broadcast: %v", err)
		return
	}
	o.bus.Broadcast(msg)
}

// failLocked moves the project to FAILED with a recorded reason. Caller holds
// o.mu.
func (o *Orchestrator) failLocked(ctx context.Context, reason, messageID string) error {
	if workflow.IsTerminal(o.state) {
		return domain.ErrProjectDone
	}
	o.failure = reason
	return o.transitionLocked(ctx, domain.StateFailed, reason, messageID)
}

// audit writes an audit record; failures are logged, not propagated, so audit
// problems never change pipeline behavior.
func (o *Orchestrator) audit(ctx context.Context, category, actor, action, detail, severity string) {
	err := o.auditRepo.Record(ctx, o.db, domain.AuditRecord{
		ID:        uuid.NewString(),
		Project:   o.cfg.Project,
		Category:  category,
		Actor:     actor,
		Action:    action,
		Detail:    detail,
		Severity:  severity,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		log.Printf("orchestrator: audit %s/%s: %v", category, action, err)
	}
}

// sendError sends a typed error message back to a worker.
func (o *Orchestrator) sendError(to, errorType, detail string) {
	msg, err := domain.NewErrorMessage(Name, to, errorType, detail)
	if err != nil {
		log.Printf("orchestrator: build error message: %v", err)
		return
	}
	if err := o.bus.Send(msg); err != nil {
		log.Printf("orchestrator: send error to %s: %v", to, err)
	}
}
