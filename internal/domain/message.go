package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of a message. The set is closed: every consumer
// switches exhaustively over these values and rejects anything else.
type Kind string

const (
	KindTask           Kind = "task"
	KindDeliverable    Kind = "deliverable"
	KindClarification  Kind = "clarification"
	KindStatus         Kind = "status"
	KindBugReport      Kind = "bug_report"
	KindReviewComplete Kind = "review_complete"
	KindError          Kind = "error"
)

// allKinds is the closed set used by ValidKind.
var allKinds = map[Kind]bool{
	KindTask:           true,
	KindDeliverable:    true,
	KindClarification:  true,
	KindStatus:         true,
	KindBugReport:      true,
	KindReviewComplete: true,
	KindError:          true,
}

// ValidKind reports whether k is a member of the closed kind set.
func ValidKind(k Kind) bool { return allKinds[k] }

// Priority is the message priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Content is the kind-dependent structured payload of a message.
type Content map[string]any

// Message is the unit of communication between workers and the orchestrator.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Kind      Kind      `json:"type"`
	Content   Content   `json:"content"`
	Blocking  bool      `json:"blocking"`
	Priority  Priority  `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// requiredFields maps each kind to the content fields it must carry.
var requiredFields = map[Kind][]string{
	KindTask:           {"description", "state"},
	KindDeliverable:    {"summary", "artifacts"},
	KindClarification:  {"question", "context"},
	KindStatus:         {},
	KindBugReport:      {"severity", "summary"},
	KindReviewComplete: {"decision"},
	KindError:          {"error_type", "message"},
}

// NewMessage constructs a validated message. It fails with ErrUnknownKind for
// a kind outside the closed set and ErrMissingField when the payload does not
// match the kind's required shape.
func NewMessage(from, to string, kind Kind, content Content) (Message, error) {
	if !ValidKind(kind) {
		return Message{}, WrapEngineError(ErrUnknownKind.Code, fmt.Sprintf("kind %q", kind), nil)
	}
	if from == "" || to == "" {
		return Message{}, NewEngineError(ErrValidation.Code, "message requires from and to")
	}
	if content == nil {
		content = Content{}
	}
	for _, field := range requiredFields[kind] {
		if _, ok := content[field]; !ok {
			return Message{}, NewEngineError(
				ErrMissingField.Code,
				fmt.Sprintf("%s message must have %q in content", kind, field),
			)
		}
	}
	return Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Kind:      kind,
		Content:   content,
		Priority:  PriorityMedium,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewTaskMessage builds a task assignment for a worker.
func NewTaskMessage(from, to string, task Task) (Message, error) {
	return NewMessage(from, to, KindTask, Content{
		"description":  task.Description,
		"state":        string(task.State),
		"deliverables": task.Deliverables,
		"constraints":  task.Constraints,
		"attempt":      task.Attempt,
	})
}

// NewDeliverableMessage builds a deliverable submission naming stored artifacts.
func NewDeliverableMessage(from, to, summary string, artifacts []string) (Message, error) {
	return NewMessage(from, to, KindDeliverable, Content{
		"summary":   summary,
		"artifacts": artifacts,
	})
}

// NewClarificationMessage builds a clarification request. Clarifications
// default to blocking; callers clear the flag for informational questions.
func NewClarificationMessage(from, to, question, context string) (Message, error) {
	m, err := NewMessage(from, to, KindClarification, Content{
		"question": question,
		"context":  context,
	})
	if err != nil {
		return Message{}, err
	}
	m.Blocking = true
	return m, nil
}

// NewErrorMessage builds a typed error notification. Store-level errors cross
// the bus only in this form, never as raw Go errors.
func NewErrorMessage(from, to, errorType, detail string) (Message, error) {
	m, err := NewMessage(from, to, KindError, Content{
		"error_type": errorType,
		"message":    detail,
	})
	if err != nil {
		return Message{}, err
	}
	m.Priority = PriorityHigh
	return m, nil
}

// ArtifactNames extracts the artifact name list from a deliverable message
// content. It tolerates both []string and []any (the post-JSON shape).
func (c Content) ArtifactNames() []string {
	switch v := c["artifacts"].(type) {
	case []string:
		return v
	case []any:
		names := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// String returns the content field as a string, or "" when absent.
func (c Content) String(field string) string {
	s, _ := c[field].(string)
	return s
}

// MarshalWire renders the message in the external JSON wire shape.
func (m Message) MarshalWire() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalWire parses a wire message and re-validates it against the kind's
// required shape.
func UnmarshalWire(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, WrapEngineError(ErrValidation.Code, "parse wire message", err)
	}
	if !ValidKind(m.Kind) {
		return Message{}, WrapEngineError(ErrUnknownKind.Code, fmt.Sprintf("kind %q", m.Kind), nil)
	}
	for _, field := range requiredFields[m.Kind] {
		if _, ok := m.Content[field]; !ok {
			return Message{}, NewEngineError(
				ErrMissingField.Code,
				fmt.Sprintf("%s message must have %q in content", m.Kind, field),
			)
		}
	}
	return m, nil
}
