package workflow

import "github.com/crewforge/engine/internal/domain"

// RemediationGovernor enforces the bounded retry budget for remediation
// rounds and worker timeouts. Rounds are tracked per state; a transition
// resets the counter.
type RemediationGovernor struct {
	// MaxRounds is the number of remediation rounds allowed per state before
	// the project escalates to FAILED.
	MaxRounds int
	// WarnAt is the round count at which a warning is issued.
	WarnAt int

	rounds map[domain.State]int
}

// NewRemediationGovernor creates a governor with the given budget.
// A non-positive max is clamped to 1.
func NewRemediationGovernor(maxRounds int) *RemediationGovernor {
	if maxRounds <= 0 {
		maxRounds = 1
	}
	warnAt := maxRounds - 1
	if warnAt < 1 {
		warnAt = 1
	}
	return &RemediationGovernor{
		MaxRounds: maxRounds,
		WarnAt:    warnAt,
		rounds:    make(map[domain.State]int),
	}
}

// Record counts one remediation round for the state and returns the
// resulting action: continue, warn near the budget, or halt when exhausted.
func (g *RemediationGovernor) Record(s domain.State) domain.RetryAction {
	g.rounds[s]++
	return g.evaluate(g.rounds[s])
}

// Rounds returns the rounds used so far in the state.
func (g *RemediationGovernor) Rounds(s domain.State) int {
	return g.rounds[s]
}

// Reset clears the counter for a state. Called on transition.
func (g *RemediationGovernor) Reset(s domain.State) {
	delete(g.rounds, s)
}

func (g *RemediationGovernor) evaluate(used int) domain.RetryAction {
	if used > g.MaxRounds {
		return domain.RetryHalt
	}
	if used >= g.WarnAt {
		return domain.RetryWarn
	}
	return domain.RetryContinue
}
