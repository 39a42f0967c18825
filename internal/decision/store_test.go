package decision

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/crewforge/engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "orchestrator")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func propose(t *testing.T, s *Store, title string, constraints ...string) *domain.Decision {
	t.Helper()
	d, err := s.Propose(title, "use "+title, []string{"rationale"}, constraints, nil)
	if err != nil {
		t.Fatalf("Propose %q: %v", title, err)
	}
	return d
}

func TestPropose(t *testing.T) {
	s := newTestStore(t)

	d1 := propose(t, s, "PostgreSQL")
	d2 := propose(t, s, "REST over gRPC")

	if d1.ID != 1 || d2.ID != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", d1.ID, d2.ID)
	}
	if d1.Status != domain.DecisionProposed {
		t.Errorf("status = %s, want proposed", d1.Status)
	}
}

func TestPropose_RequiresTitleAndText(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Propose("", "text", nil, nil, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty title error = %v, want ErrValidation", err)
	}
	if _, err := s.Propose("title", "  ", nil, nil, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank text error = %v, want ErrValidation", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	d := propose(t, s, "PostgreSQL")

	if err := s.Accept(d.ID, "orchestrator"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	got, err := s.Get(d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.DecisionAccepted {
		t.Fatalf("status = %s, want accepted", got.Status)
	}

	// Accepting twice is an invalid status transition.
	if err := s.Accept(d.ID, "orchestrator"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("double accept error = %v, want ErrInvalidState", err)
	}

	if err := s.Deprecate(d.ID, "orchestrator"); err != nil {
		t.Fatalf("Deprecate: %v", err)
	}
	got, _ = s.Get(d.ID)
	if got.Status != domain.DecisionDeprecated {
		t.Fatalf("status = %s, want deprecated", got.Status)
	}

	// Deprecated is final.
	if err := s.Accept(d.ID, "orchestrator"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("accept deprecated error = %v, want ErrInvalidState", err)
	}
}

func TestDeprecate_RequiresAccepted(t *testing.T) {
	s := newTestStore(t)
	d := propose(t, s, "PostgreSQL")

	if err := s.Deprecate(d.ID, "orchestrator"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("deprecate proposed error = %v, want ErrInvalidState", err)
	}
}

func TestAuthorityCheck(t *testing.T) {
	s := newTestStore(t)
	d := propose(t, s, "PostgreSQL")

	if err := s.Accept(d.ID, "architect"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("accept by architect error = %v, want ErrUnauthorized", err)
	}
	got, _ := s.Get(d.ID)
	if got.Status != domain.DecisionProposed {
		t.Errorf("status after unauthorized accept = %s, want proposed", got.Status)
	}
}

func TestAmend(t *testing.T) {
	s := newTestStore(t)
	d := propose(t, s, "PostgreSQL", "no ORM")

	err := s.Amend(d.ID, "use PostgreSQL 16", []string{"newer"}, []string{"no ORM", "WAL backups"}, nil)
	if err != nil {
		t.Fatalf("Amend: %v", err)
	}
	got, _ := s.Get(d.ID)
	if got.Decision != "use PostgreSQL 16" || len(got.Constraints) != 2 {
		t.Errorf("amended record = %+v", got)
	}
}

func TestAmend_AcceptedIsImmutable(t *testing.T) {
	s := newTestStore(t)
	d := propose(t, s, "PostgreSQL", "no ORM")
	if err := s.Accept(d.ID, "orchestrator"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	err := s.Amend(d.ID, "use MongoDB", nil, []string{"schemaless"}, nil)
	if !errors.Is(err, domain.ErrImmutableRecord) {
		t.Fatalf("amend accepted error = %v, want ErrImmutableRecord", err)
	}

	// The stored record is unchanged by the failed amend.
	got, _ := s.Get(d.ID)
	if got.Decision != "use PostgreSQL" {
		t.Errorf("decision text = %q, changed by failed amend", got.Decision)
	}
	if len(got.Constraints) != 1 || got.Constraints[0] != "no ORM" {
		t.Errorf("constraints = %v, changed by failed amend", got.Constraints)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(99); !errors.Is(err, domain.ErrDecisionNotFound) {
		t.Errorf("error = %v, want ErrDecisionNotFound", err)
	}
	if err := s.Accept(99, "orchestrator"); !errors.Is(err, domain.ErrDecisionNotFound) {
		t.Errorf("accept missing error = %v, want ErrDecisionNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	d := propose(t, s, "PostgreSQL")

	got, _ := s.Get(d.ID)
	got.Title = "mutated"
	again, _ := s.Get(d.ID)
	if again.Title != "PostgreSQL" {
		t.Error("Get returned a shared record")
	}
}

func TestListByStatus(t *testing.T) {
	s := newTestStore(t)
	a := propose(t, s, "first")
	propose(t, s, "second")
	c := propose(t, s, "third")
	if err := s.Accept(a.ID, "orchestrator"); err != nil {
		t.Fatal(err)
	}
	if err := s.Accept(c.ID, "orchestrator"); err != nil {
		t.Fatal(err)
	}

	accepted := s.ListAccepted()
	if len(accepted) != 2 || accepted[0].ID != a.ID || accepted[1].ID != c.ID {
		t.Errorf("accepted = %+v, want ids %d then %d", accepted, a.ID, c.ID)
	}
	proposed := s.ListByStatus(domain.DecisionProposed)
	if len(proposed) != 1 || proposed[0].Title != "second" {
		t.Errorf("proposed = %+v, want only second", proposed)
	}
}

func TestConstraintsSummary(t *testing.T) {
	s := newTestStore(t)
	a := propose(t, s, "db", "use PostgreSQL")
	b := propose(t, s, "api", "REST only", "version under /api/v1")
	propose(t, s, "ignored", "still proposed")
	if err := s.Accept(a.ID, "orchestrator"); err != nil {
		t.Fatal(err)
	}
	if err := s.Accept(b.ID, "orchestrator"); err != nil {
		t.Fatal(err)
	}

	want := "- use PostgreSQL\n- REST only\n- version under /api/v1\n"
	if got := s.ConstraintsSummary(); got != want {
		t.Errorf("ConstraintsSummary() = %q, want %q", got, want)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := newTestStore(t)

	ids := make([]int, 0, 8)
	for i := 0; i < 8; i++ {
		d := propose(t, s, fmt.Sprintf("decision-%d", i), fmt.Sprintf("constraint-%d", i))
		ids = append(ids, d.ID)
	}

	// Status writers and readers run on separate goroutines, as they do when
	// the HTTP API lists decisions while the orchestrator accepts them.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			if err := s.Accept(id, "orchestrator"); err != nil {
				t.Errorf("Accept %d: %v", id, err)
			}
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for _, id := range ids {
					if _, err := s.Get(id); err != nil {
						t.Errorf("Get %d: %v", id, err)
					}
				}
				s.ListAccepted()
				s.ConstraintsSummary()
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get %d: %v", id, err)
		}
		if got.Status != domain.DecisionAccepted {
			t.Errorf("decision %d status = %s, want accepted", id, got.Status)
		}
	}
}

func TestReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, "orchestrator")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	d := propose(t, s, "PostgreSQL", "no ORM")
	if err := s.Accept(d.ID, "orchestrator"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// A fresh store over the same directory sees the persisted records.
	reloaded, err := NewStore(dir, "orchestrator")
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	got, err := reloaded.Get(d.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got.Status != domain.DecisionAccepted || got.Constraints[0] != "no ORM" {
		t.Errorf("reloaded record = %+v", got)
	}

	// New proposals continue the id sequence past reloaded records.
	next := propose(t, reloaded, "next")
	if next.ID != d.ID+1 {
		t.Errorf("next id = %d, want %d", next.ID, d.ID+1)
	}
}
