// Package decision implements the architecture decision record store.
// Records move monotonically through proposed -> accepted -> deprecated; once
// accepted, every field except status is frozen. Each record persists as one
// JSON file so the decision memory survives restarts.
package decision

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/crewforge/engine/internal/domain"
)

// Store holds decision records on disk with an in-memory index.
// Mutations to the same record id are serialized by a per-id lock so the
// discipline holds under a future parallel-worker mode.
type Store struct {
	dir       string
	authority string

	mu      sync.Mutex
	records map[int]*domain.Decision
	locks   map[int]*sync.Mutex
	nextID  int
}

// NewStore creates the store rooted at dir, reloading any persisted records.
// authority names the only role allowed to accept or deprecate records.
func NewStore(dir, authority string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "create decisions dir", err)
	}
	s := &Store{
		dir:       dir,
		authority: authority,
		records:   make(map[int]*domain.Decision),
		locks:     make(map[int]*sync.Mutex),
		nextID:    1,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load rebuilds the index from persisted record files.
func (s *Store) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreInit.Code, "read decisions dir", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return domain.WrapEngineError(domain.ErrStoreInit.Code, "read decision record", err)
		}
		var d domain.Decision
		if err := json.Unmarshal(data, &d); err != nil {
			return domain.WrapEngineError(domain.ErrStoreInit.Code, fmt.Sprintf("parse %s", e.Name()), err)
		}
		s.records[d.ID] = &d
		if d.ID >= s.nextID {
			s.nextID = d.ID + 1
		}
	}
	return nil
}

// lockFor returns the per-record mutex, creating it on first use.
func (s *Store) lockFor(id int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Propose creates a new record in proposed status and assigns it a fresh
// monotonic id. Title and decision text are mandatory.
func (s *Store) Propose(title, decisionText string, rationale, constraints, impact []string) (*domain.Decision, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(decisionText) == "" {
		return nil, domain.NewEngineError(domain.ErrValidation.Code, "decision requires a title and decision text")
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	d := &domain.Decision{
		ID:          id,
		Title:       title,
		Status:      domain.DecisionProposed,
		Decision:    decisionText,
		Rationale:   append([]string(nil), rationale...),
		Constraints: append([]string(nil), constraints...),
		Impact:      append([]string(nil), impact...),
	}
	s.records[id] = d
	s.mu.Unlock()

	if err := s.persist(d); err != nil {
		return nil, err
	}
	out := *d
	return &out, nil
}

// Accept transitions a proposed record to accepted. Only the designated
// authority role may accept.
func (s *Store) Accept(id int, actorRole string) error {
	return s.setStatus(id, actorRole, domain.DecisionProposed, domain.DecisionAccepted)
}

// Deprecate transitions an accepted record to deprecated under the same
// authority check.
func (s *Store) Deprecate(id int, actorRole string) error {
	return s.setStatus(id, actorRole, domain.DecisionAccepted, domain.DecisionDeprecated)
}

func (s *Store) setStatus(id int, actorRole string, from, to domain.DecisionStatus) error {
	if actorRole != s.authority {
		return domain.WrapEngineError(domain.ErrUnauthorized.Code,
			fmt.Sprintf("role %q cannot change decision status", actorRole), nil)
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	d, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return domain.WrapEngineError(domain.ErrDecisionNotFound.Code, fmt.Sprintf("id %d", id), nil)
	}
	if d.Status != from {
		return domain.WrapEngineError(domain.ErrInvalidState.Code,
			fmt.Sprintf("decision %d is %s, not %s", id, d.Status, from), nil)
	}

	// Indexed records are never mutated in place. Writers build a fresh copy
	// and swap the map entry under s.mu, so readers copying under s.mu never
	// observe a half-applied change. The per-id lock serializes writers.
	next := *d
	next.Status = to
	if err := s.persist(&next); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[id] = &next
	s.mu.Unlock()
	return nil
}

// Amend replaces the mutable fields of a proposed record. Amending a record
// that is accepted or deprecated fails with ErrImmutableRecord and leaves the
// stored value unchanged.
func (s *Store) Amend(id int, decisionText string, rationale, constraints, impact []string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	d, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return domain.WrapEngineError(domain.ErrDecisionNotFound.Code, fmt.Sprintf("id %d", id), nil)
	}
	if d.Status != domain.DecisionProposed {
		return domain.WrapEngineError(domain.ErrImmutableRecord.Code,
			fmt.Sprintf("decision %d is %s", id, d.Status), nil)
	}

	next := *d
	if strings.TrimSpace(decisionText) != "" {
		next.Decision = decisionText
	}
	if rationale != nil {
		next.Rationale = append([]string(nil), rationale...)
	}
	if constraints != nil {
		next.Constraints = append([]string(nil), constraints...)
	}
	if impact != nil {
		next.Impact = append([]string(nil), impact...)
	}
	if err := s.persist(&next); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[id] = &next
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the record.
func (s *Store) Get(id int) (*domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[id]
	if !ok {
		return nil, domain.WrapEngineError(domain.ErrDecisionNotFound.Code, fmt.Sprintf("id %d", id), nil)
	}
	out := *d
	return &out, nil
}

// ListByStatus returns copies of all records with the given status, in id order.
func (s *Store) ListByStatus(status domain.DecisionStatus) []domain.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Decision
	for _, d := range s.records {
		if d.Status == status {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAccepted returns all accepted records in id order. Accepted decisions
// are binding constraints for subsequent tasks.
func (s *Store) ListAccepted() []domain.Decision {
	return s.ListByStatus(domain.DecisionAccepted)
}

// ConstraintsSummary concatenates the constraints of all accepted records in
// id order, one per line.
func (s *Store) ConstraintsSummary() string {
	var b strings.Builder
	for _, d := range s.ListAccepted() {
		for _, c := range d.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}

// persist writes a record to its file via atomic replace.
func (s *Store) persist(d *domain.Decision) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "marshal decision", err)
	}
	final := filepath.Join(s.dir, fmt.Sprintf("adr-%03d.json", d.ID))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "write decision", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "replace decision", err)
	}
	return nil
}
