package artifact

import (
	"bytes"
	"errors"
	"testing"

	"github.com/crewforge/engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStoreRetrieve_ByteIdentical(t *testing.T) {
	s := newTestStore(t)

	contents := map[string][]byte{
		"empty":  {},
		"text":   []byte("# Functional Spec\n\nUsers can create todos.\n"),
		"binary": {0x00, 0xff, 0x1b, 0x00, 0x7f},
		"large":  bytes.Repeat([]byte("0123456789abcdef"), 1<<17), // 2 MiB
	}

	for name, content := range contents {
		if err := s.Store("analysis", name, content, "analyst"); err != nil {
			t.Fatalf("Store %s: %v", name, err)
		}
		got, err := s.Retrieve("analysis", name)
		if err != nil {
			t.Fatalf("Retrieve %s: %v", name, err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("%s: retrieved %d bytes differ from stored %d bytes", name, len(got), len(content))
		}
	}
}

func TestStore_OverwriteLastWriteWins(t *testing.T) {
	s := newTestStore(t)

	if err := s.Store("analysis", "spec.md", []byte("v1"), "analyst"); err != nil {
		t.Fatalf("Store v1: %v", err)
	}
	if err := s.Store("analysis", "spec.md", []byte("v2, longer content"), "analyst"); err != nil {
		t.Fatalf("Store v2: %v", err)
	}

	got, err := s.Retrieve("analysis", "spec.md")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(got) != "v2, longer content" {
		t.Errorf("content = %q, want the second write", got)
	}

	names, err := s.List("analysis")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 {
		t.Errorf("List = %v, overwrite must not create a second entry", names)
	}
}

func TestStore_InvalidNames(t *testing.T) {
	s := newTestStore(t)
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		label          string
		category, name string
	}{
		{"empty name", "analysis", ""},
		{"empty category", "", "spec.md"},
		{"dot", "analysis", "."},
		{"dotdot", "analysis", ".."},
		{"slash in name", "analysis", "../../etc/passwd"},
		{"backslash in name", "analysis", `..\secrets`},
		{"slash in category", "a/b", "spec.md"},
		{"overlong name", "analysis", string(long)},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			err := s.Store(tt.category, tt.name, []byte("x"), "analyst")
			if !errors.Is(err, domain.ErrInvalidName) {
				t.Errorf("Store(%q, %q) error = %v, want ErrInvalidName", tt.category, tt.name, err)
			}
			if _, err := s.Retrieve(tt.category, tt.name); !errors.Is(err, domain.ErrInvalidName) {
				t.Errorf("Retrieve(%q, %q) error = %v, want ErrInvalidName", tt.category, tt.name, err)
			}
			if s.Exists(tt.category, tt.name) {
				t.Errorf("Exists(%q, %q) = true", tt.category, tt.name)
			}
		})
	}
}

func TestRetrieve_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Retrieve("analysis", "missing.md")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)
	if s.Exists("analysis", "spec.md") {
		t.Error("Exists before store = true")
	}
	if err := s.Store("analysis", "spec.md", []byte("x"), "analyst"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !s.Exists("analysis", "spec.md") {
		t.Error("Exists after store = false")
	}
	if s.Exists("code", "spec.md") {
		t.Error("Exists in wrong category = true")
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	names, err := s.List("analysis")
	if err != nil {
		t.Fatalf("List empty: %v", err)
	}
	if names != nil {
		t.Errorf("List of absent category = %v, want nil", names)
	}

	for _, name := range []string{"functional_spec.md", "user_stories.yaml"} {
		if err := s.Store("analysis", name, []byte("x"), "analyst"); err != nil {
			t.Fatalf("Store %s: %v", name, err)
		}
	}
	names, err = s.List("analysis")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("List = %v, want 2 names", names)
	}
}

func TestInfo(t *testing.T) {
	s := newTestStore(t)
	content := []byte("hello artifact")
	if err := s.Store("analysis", "spec.md", content, "analyst"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	info, err := s.Info("analysis", "spec.md")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Producer != "analyst" || info.Size != int64(len(content)) {
		t.Errorf("Info = %+v", info)
	}
	if info.UpdatedAt.IsZero() {
		t.Error("Info has no timestamp")
	}

	if _, err := s.Info("analysis", "missing.md"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Info missing error = %v, want ErrNotFound", err)
	}
}

func TestRescanOnRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Store("analysis", "spec.md", []byte("persisted"), "analyst"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// A fresh store over the same root finds the artifact again.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore reopen: %v", err)
	}
	got, err := reopened.Retrieve("analysis", "spec.md")
	if err != nil {
		t.Fatalf("Retrieve after reopen: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("content = %q", got)
	}
	info, err := reopened.Info("analysis", "spec.md")
	if err != nil {
		t.Fatalf("Info after reopen: %v", err)
	}
	if info.Size != int64(len("persisted")) {
		t.Errorf("rescanned size = %d", info.Size)
	}
}
