package domain

import (
	"errors"
	"testing"
)

func TestNewMessage_Validation(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		kind     Kind
		content  Content
		wantErr  *EngineError
	}{
		{"valid status", "orchestrator", "analyst", KindStatus, nil, nil},
		{"valid task", "orchestrator", "analyst", KindTask,
			Content{"description": "d", "state": "ANALYSIS"}, nil},
		{"unknown kind", "a", "b", Kind("gossip"), nil, ErrUnknownKind},
		{"empty from", "", "b", KindStatus, nil, ErrValidation},
		{"empty to", "a", "", KindStatus, nil, ErrValidation},
		{"task missing state", "a", "b", KindTask,
			Content{"description": "d"}, ErrMissingField},
		{"deliverable missing artifacts", "a", "b", KindDeliverable,
			Content{"summary": "s"}, ErrMissingField},
		{"bug report missing severity", "a", "b", KindBugReport,
			Content{"summary": "s"}, ErrMissingField},
		{"review missing decision", "a", "b", KindReviewComplete,
			Content{}, ErrMissingField},
		{"error missing type", "a", "b", KindError,
			Content{"message": "m"}, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.from, tt.to, tt.kind, tt.content)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewMessage: %v", err)
				}
				if msg.ID == "" {
					t.Error("message has no id")
				}
				if msg.Timestamp.IsZero() {
					t.Error("message has no timestamp")
				}
				if msg.Priority != PriorityMedium {
					t.Errorf("priority = %q, want medium", msg.Priority)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want code %d", err, tt.wantErr.Code)
			}
		})
	}
}

func TestConstructorDefaults(t *testing.T) {
	c, err := NewClarificationMessage("analyst", "orchestrator", "which auth scheme?", "intake was silent")
	if err != nil {
		t.Fatalf("NewClarificationMessage: %v", err)
	}
	if !c.Blocking {
		t.Error("clarification should default to blocking")
	}

	e, err := NewErrorMessage("analyst", "orchestrator", "generation_error", "provider exited 1")
	if err != nil {
		t.Fatalf("NewErrorMessage: %v", err)
	}
	if e.Priority != PriorityHigh {
		t.Errorf("error priority = %q, want high", e.Priority)
	}
}

func TestContentArtifactNames(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		want    int
	}{
		{"string slice", Content{"artifacts": []string{"a.md", "b.md"}}, 2},
		{"any slice after json", Content{"artifacts": []any{"a.md", "b.md", "c.md"}}, 3},
		{"absent", Content{}, 0},
		{"wrong type", Content{"artifacts": "a.md"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.content.ArtifactNames(); len(got) != tt.want {
				t.Errorf("ArtifactNames() = %v, want %d names", got, tt.want)
			}
		})
	}
}

func TestWireRoundTrip(t *testing.T) {
	msg, err := NewDeliverableMessage("analyst", "orchestrator", "analysis complete",
		[]string{"functional_spec.md", "user_stories.yaml"})
	if err != nil {
		t.Fatalf("NewDeliverableMessage: %v", err)
	}

	data, err := msg.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire: %v", err)
	}
	got, err := UnmarshalWire(data)
	if err != nil {
		t.Fatalf("UnmarshalWire: %v", err)
	}

	if got.ID != msg.ID || got.Kind != msg.Kind || got.From != msg.From {
		t.Errorf("round trip changed identity: got %+v", got)
	}
	names := got.Content.ArtifactNames()
	if len(names) != 2 || names[0] != "functional_spec.md" {
		t.Errorf("round trip artifacts = %v", names)
	}
}

func TestUnmarshalWire_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want *EngineError
	}{
		{"bad json", "{", ErrValidation},
		{"unknown kind", `{"id":"1","from":"a","to":"b","type":"gossip","content":{}}`, ErrUnknownKind},
		{"missing field", `{"id":"1","from":"a","to":"b","type":"task","content":{"description":"d"}}`, ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalWire([]byte(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want code %d", err, tt.want.Code)
			}
		})
	}
}
