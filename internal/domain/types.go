// Package domain defines the core types for the Crewforge engine.
package domain

import "time"

// State represents a stage in the project lifecycle.
type State string

const (
	StateIntake         State = "intake"
	StateAnalysis       State = "analysis"
	StateArchitecture   State = "architecture"
	StateDesign         State = "design"
	StateImplementation State = "implementation"
	StateTesting        State = "testing"
	StateReview         State = "review"
	StateDelivery       State = "delivery"
	StateFailed         State = "failed"
)

// AllStates lists every state in pipeline order, terminal states last.
var AllStates = []State{
	StateIntake,
	StateAnalysis,
	StateArchitecture,
	StateDesign,
	StateImplementation,
	StateTesting,
	StateReview,
	StateDelivery,
	StateFailed,
}

// Task is a unit of work dispatched to a worker when the project enters a
// state. It is owned by the orchestrator and superseded on transition.
type Task struct {
	State        State
	Description  string
	Role         string
	Deliverables []string
	Constraints  string
	DispatchedAt time.Time
	Deadline     time.Time
	Attempt      int
}

// DecisionStatus is the lifecycle status of a decision record.
// Transitions are monotonic: proposed -> accepted -> deprecated.
type DecisionStatus string

const (
	DecisionProposed   DecisionStatus = "proposed"
	DecisionAccepted   DecisionStatus = "accepted"
	DecisionDeprecated DecisionStatus = "deprecated"
)

// Decision is an architecture decision record. Once accepted, every field
// except Status is frozen.
type Decision struct {
	ID          int            `json:"id"`
	Title       string         `json:"title"`
	Status      DecisionStatus `json:"status"`
	Decision    string         `json:"decision"`
	Rationale   []string       `json:"rationale"`
	Constraints []string       `json:"constraints"`
	Impact      []string       `json:"impact"`
}

// ArtifactInfo describes a stored artifact without its content.
type ArtifactInfo struct {
	Category  string
	Name      string
	Producer  string
	UpdatedAt time.Time
	Size      int64
}

// Transition is one entry in the append-only transition log.
type Transition struct {
	Seq       int64
	Project   string
	From      State
	To        State
	Reason    string
	MessageID string
	CreatedAt int64
}

// AuditRecord logs remediation, timeout, and authority events.
type AuditRecord struct {
	ID        string
	Project   string
	Category  string
	Actor     string
	Action    string
	Detail    string
	Severity  string
	CreatedAt int64
}

// ReviewVerdict is the outcome of a review-complete message.
type ReviewVerdict string

const (
	VerdictGo            ReviewVerdict = "GO"
	VerdictConditionalGo ReviewVerdict = "CONDITIONAL GO"
	VerdictNoGo          ReviewVerdict = "NO-GO"
)

// RetryAction is the remediation governor's decision for a retry budget.
type RetryAction string

const (
	RetryContinue RetryAction = "continue"
	RetryWarn     RetryAction = "warn"
	RetryHalt     RetryAction = "halt"
)
