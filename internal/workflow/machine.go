// Package workflow implements the project lifecycle state machine: a static
// table of legal transitions and the deliverables required to leave each
// state. The machine holds no mutable state; the orchestrator drives it.
package workflow

import (
	"fmt"

	"github.com/crewforge/engine/internal/domain"
)

// validTransitions defines the legal state transitions. The pipeline is
// strictly forward; FAILED is the abort path from every non-terminal state.
var validTransitions = map[domain.State]map[domain.State]bool{
	domain.StateIntake:         {domain.StateAnalysis: true, domain.StateFailed: true},
	domain.StateAnalysis:       {domain.StateArchitecture: true, domain.StateFailed: true},
	domain.StateArchitecture:   {domain.StateDesign: true, domain.StateFailed: true},
	domain.StateDesign:         {domain.StateImplementation: true, domain.StateFailed: true},
	domain.StateImplementation: {domain.StateTesting: true, domain.StateFailed: true},
	domain.StateTesting:        {domain.StateReview: true, domain.StateFailed: true},
	domain.StateReview:         {domain.StateDelivery: true, domain.StateFailed: true},
	domain.StateDelivery:       {},
	domain.StateFailed:         {},
}

// requiredDeliverables names the artifacts that must exist before a state can
// be left. States absent from the map require none.
var requiredDeliverables = map[domain.State][]string{
	domain.StateAnalysis:       {"functional_spec.md", "user_stories.yaml"},
	domain.StateArchitecture:   {"architecture.md", "openapi.yaml", "decisions.md"},
	domain.StateDesign:         {"design_system.md", "wireframes.md"},
	domain.StateImplementation: {"backend_code", "frontend_code"},
	domain.StateTesting:        {"test_plan.md", "test_results.md"},
	domain.StateReview:         {"cto_review.md"},
}

// stateRoles maps each state to the worker role responsible for it.
var stateRoles = map[domain.State]string{
	domain.StateIntake:         "orchestrator",
	domain.StateAnalysis:       "analyst",
	domain.StateArchitecture:   "architect",
	domain.StateDesign:         "designer",
	domain.StateImplementation: "backend",
	domain.StateTesting:        "qa",
	domain.StateReview:         "cto",
	domain.StateDelivery:       "orchestrator",
	domain.StateFailed:         "orchestrator",
}

// stateCategories maps each working state to the artifact category its
// deliverables are stored under.
var stateCategories = map[domain.State]string{
	domain.StateAnalysis:       "analysis",
	domain.StateArchitecture:   "architecture",
	domain.StateDesign:         "design",
	domain.StateImplementation: "code",
	domain.StateTesting:        "testing",
	domain.StateReview:         "review",
}

// forwardOrder is the normal pipeline path.
var forwardOrder = []domain.State{
	domain.StateIntake,
	domain.StateAnalysis,
	domain.StateArchitecture,
	domain.StateDesign,
	domain.StateImplementation,
	domain.StateTesting,
	domain.StateReview,
	domain.StateDelivery,
}

// Initial returns the starting state of every project.
func Initial() domain.State { return domain.StateIntake }

// CanTransition checks if a state transition is legal.
func CanTransition(from, to domain.State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Next returns the next state on the forward path, or an error at a terminal
// state or an unknown state.
func Next(from domain.State) (domain.State, error) {
	for i, s := range forwardOrder {
		if s == from {
			if i == len(forwardOrder)-1 {
				return "", domain.WrapEngineError(
					domain.ErrInvalidTransition.Code,
					fmt.Sprintf("no forward transition from %s", from), nil)
			}
			return forwardOrder[i+1], nil
		}
	}
	return "", domain.WrapEngineError(
		domain.ErrInvalidTransition.Code,
		fmt.Sprintf("unknown state %s", from), nil)
}

// IsTerminal reports whether the state has no outgoing transitions.
func IsTerminal(s domain.State) bool {
	return s == domain.StateDelivery || s == domain.StateFailed
}

// RequiredDeliverables returns the deliverable names that must be present to
// leave the state. The returned slice is a copy.
func RequiredDeliverables(s domain.State) []string {
	req := requiredDeliverables[s]
	out := make([]string, len(req))
	copy(out, req)
	return out
}

// ResponsibleRole returns the worker role assigned to the state.
func ResponsibleRole(s domain.State) string {
	if role, ok := stateRoles[s]; ok {
		return role
	}
	return "orchestrator"
}

// Category returns the artifact category for a state's deliverables.
func Category(s domain.State) string {
	return stateCategories[s]
}

// Progress returns a rough completion percentage for status reporting.
func Progress(s domain.State) int {
	weights := map[domain.State]int{
		domain.StateIntake:         0,
		domain.StateAnalysis:       10,
		domain.StateArchitecture:   25,
		domain.StateDesign:         40,
		domain.StateImplementation: 70,
		domain.StateTesting:        85,
		domain.StateReview:         95,
		domain.StateDelivery:       100,
		domain.StateFailed:         0,
	}
	return weights[s]
}
