package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/crewforge/engine/internal/artifact"
	"github.com/crewforge/engine/internal/bus"
	"github.com/crewforge/engine/internal/domain"
	"github.com/crewforge/engine/internal/generate"
)

// coordinator is the bus identity of the orchestrator.
const coordinator = "orchestrator"

// Worker consumes tasks for its role and produces deliverables or
// clarification requests. Content generation is delegated to the Generator.
type Worker struct {
	Role      Role
	Bus       *bus.Bus
	Artifacts *artifact.Store
	Gen       generate.Generator
}

// New creates a worker and registers it on the bus.
func New(role Role, b *bus.Bus, artifacts *artifact.Store, gen generate.Generator) *Worker {
	b.Register(role.Name)
	return &Worker{Role: role, Bus: b, Artifacts: artifacts, Gen: gen}
}

// Run drives the worker's message loop until the context is cancelled.
// Suspension happens only at bus receive and inside the generator call.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.Bus.Receive(ctx, w.Role.Name)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := w.handle(ctx, msg); err != nil {
			log.Printf("worker %s: handle %s: %v", w.Role.Name, msg.Kind, err)
		}
	}
}

// handle dispatches one message by kind. The kind set is closed; anything
// else is a validation failure.
func (w *Worker) handle(ctx context.Context, msg domain.Message) error {
	switch msg.Kind {
	case domain.KindTask:
		return w.executeTask(ctx, msg)
	case domain.KindClarification:
		return w.HandleClarification(ctx, msg)
	case domain.KindStatus:
		// State-change notices; nothing to do.
		return nil
	case domain.KindDeliverable, domain.KindBugReport, domain.KindReviewComplete, domain.KindError:
		// Addressed to the orchestrator, not to workers.
		return nil
	default:
		return domain.WrapEngineError(domain.ErrUnknownKind.Code, string(msg.Kind), nil)
	}
}

// executeTask generates and stores every deliverable the task names, then
// submits a deliverable message. A generation failure is reported to the
// orchestrator as a typed error message, never as a raw error.
func (w *Worker) executeTask(ctx context.Context, msg domain.Message) error {
	description := msg.Content.String("description")
	constraints := msg.Content.String("constraints")

	names := msg.Content.ArtifactNames()
	if len(names) == 0 {
		if v, ok := msg.Content["deliverables"]; ok {
			names = domain.Content{"artifacts": v}.ArtifactNames()
		}
	}
	if len(names) == 0 {
		names = w.Role.Deliverables
	}

	var produced []string
	var lastText string
	for _, name := range names {
		text, err := w.Gen.Generate(ctx, w.Role.SystemPrompt, description, constraints)
		if err != nil {
			return w.reportError(err)
		}
		if err := w.Artifacts.Store(w.Role.Category, name, []byte(text+"\n"), w.Role.Name); err != nil {
			return w.reportError(err)
		}
		produced = append(produced, name)
		lastText = text
	}

	summary := fmt.Sprintf("%s deliverables for %s", w.Role.Name, msg.Content.String("state"))
	content := domain.Content{"summary": summary, "artifacts": produced}
	if w.Role.Category == "review" {
		content["decision"] = string(reviewVerdict(lastText))
	}
	out, err := domain.NewMessage(w.Role.Name, coordinator, domain.KindDeliverable, content)
	if err != nil {
		return err
	}
	return w.Bus.Send(out)
}

// reviewVerdict reads the GO/NO-GO conclusion out of a generated review.
// NO-GO must be checked first since the other verdicts contain "GO".
func reviewVerdict(text string) domain.ReviewVerdict {
	if strings.Contains(text, string(domain.VerdictNoGo)) {
		return domain.VerdictNoGo
	}
	if strings.Contains(text, string(domain.VerdictConditionalGo)) {
		return domain.VerdictConditionalGo
	}
	return domain.VerdictGo
}

// HandleClarification answers a clarification forwarded to this worker and
// sends the answer back as a status message.
func (w *Worker) HandleClarification(ctx context.Context, msg domain.Message) error {
	question := msg.Content.String("question")
	answer, err := w.Gen.Generate(ctx, w.Role.SystemPrompt, question, msg.Content.String("context"))
	if err != nil {
		return w.reportError(err)
	}
	out, err := domain.NewMessage(w.Role.Name, msg.From, domain.KindStatus, domain.Content{
		"status":   "clarification_answered",
		"question": question,
		"answer":   answer,
	})
	if err != nil {
		return err
	}
	return w.Bus.Send(out)
}

// reportError translates a local failure into a typed error message to the
// orchestrator.
func (w *Worker) reportError(cause error) error {
	errType := "worker_error"
	var ee *domain.EngineError
	if errors.As(cause, &ee) {
		switch ee.Code {
		case domain.ErrGenerationTimeout.Code:
			errType = "generation_timeout"
		case domain.ErrGeneration.Code:
			errType = "generation_error"
		}
	}
	out, err := domain.NewErrorMessage(w.Role.Name, coordinator, errType, cause.Error())
	if err != nil {
		return err
	}
	return w.Bus.Send(out)
}
