package workflow

import (
	"fmt"
	"sync"

	"github.com/crewforge/engine/internal/domain"
)

// GateDecision is the result of evaluating whether a state may be left.
type GateDecision struct {
	Allow    bool
	Blockers []string
}

// Blocker is an open condition holding the current state: a blocking
// clarification, a blocking bug report, or a NO-GO review.
type Blocker struct {
	Kind     string // "clarification", "bug_report", "review"
	From     string
	Summary  string
	Resolved bool
}

// BlockerGate tracks open blockers and decides whether the current state can
// be exited. The orchestrator consults it before every transition.
type BlockerGate struct {
	mu       sync.Mutex
	blockers []Blocker
}

// NewBlockerGate creates an empty gate.
func NewBlockerGate() *BlockerGate {
	return &BlockerGate{}
}

// Add registers an open blocker and returns its index for later resolution.
func (g *BlockerGate) Add(b Blocker) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockers = append(g.blockers, b)
	return len(g.blockers) - 1
}

// Resolve marks a blocker resolved. Out-of-range indices are ignored.
func (g *BlockerGate) Resolve(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if idx >= 0 && idx < len(g.blockers) {
		g.blockers[idx].Resolved = true
	}
}

// ResolveAll clears every open blocker of the given kind. It returns the
// number resolved.
func (g *BlockerGate) ResolveAll(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for i := range g.blockers {
		if !g.blockers[i].Resolved && g.blockers[i].Kind == kind {
			g.blockers[i].Resolved = true
			n++
		}
	}
	return n
}

// Clear drops all blockers. Called on state transition: blockers belong to
// the state that raised them.
func (g *BlockerGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockers = nil
}

// Open returns the unresolved blockers.
func (g *BlockerGate) Open() []Blocker {
	g.mu.Lock()
	defer g.mu.Unlock()
	var open []Blocker
	for _, b := range g.blockers {
		if !b.Resolved {
			open = append(open, b)
		}
	}
	return open
}

// Evaluate reports whether the state may be exited.
func (g *BlockerGate) Evaluate() GateDecision {
	open := g.Open()
	if len(open) == 0 {
		return GateDecision{Allow: true}
	}
	d := GateDecision{Allow: false}
	for _, b := range open {
		d.Blockers = append(d.Blockers, fmt.Sprintf("%s from %s: %s", b.Kind, b.From, b.Summary))
	}
	return d
}

// BlockingSeverity reports whether a bug report severity holds the state.
func BlockingSeverity(severity string) bool {
	return severity == "blocking"
}

// BlockingVerdict reports whether a review verdict holds the state.
func BlockingVerdict(v domain.ReviewVerdict) bool {
	return v == domain.VerdictNoGo
}
