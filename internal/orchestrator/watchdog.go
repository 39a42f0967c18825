package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/crewforge/engine/internal/workflow"
)

// timeNow is swapped in tests to drive deadlines.
var timeNow = time.Now

// CheckDeadline inspects the dispatched task against the given instant. A
// task past its deadline is an AgentTimeout: it is audited, announced as a
// typed error, and re-dispatched within the remediation budget (or the
// project fails when the budget is exhausted). Returns true when a timeout
// was handled.
func (o *Orchestrator) CheckDeadline(ctx context.Context, now time.Time) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.task == nil || workflow.IsTerminal(o.state) {
		return false, nil
	}
	if !now.After(o.task.Deadline) {
		return false, nil
	}

	role := o.task.Role
	detail := fmt.Sprintf("%s task to %s exceeded deadline (attempt %d)", o.task.State, role, o.task.Attempt)
	o.task = nil

	o.audit(ctx, "watchdog", Name, "agent_timeout", detail, "warning")
	o.sendError(role, "agent_timeout", detail)

	return true, o.remediateLocked(ctx, role, detail, "")
}

// StartWatchdog spawns the periodic deadline check. Stop it with
// StopWatchdog; it also exits with the context.
func (o *Orchestrator) StartWatchdog(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.WatchInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-o.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := o.CheckDeadline(ctx, timeNow()); err != nil {
					log.Printf("orchestrator: deadline check: %v", err)
				}
			}
		}
	}()
}

// StopWatchdog signals the watchdog goroutine to stop. Safe to call multiple
// times.
func (o *Orchestrator) StopWatchdog() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}
