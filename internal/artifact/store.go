// Package artifact implements the file-backed artifact store. Artifacts are
// organized by category directory with one file per name; overwrites are
// last-write-wins via atomic replace, so a reader never observes a partial
// write.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/crewforge/engine/internal/domain"
)

// Store persists artifacts under a root directory.
type Store struct {
	root string

	mu      sync.Mutex
	catalog map[string]domain.ArtifactInfo
	locks   map[string]*sync.Mutex
}

// NewStore creates the store rooted at dir, rebuilding its catalog from any
// files already on disk.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "create artifacts dir", err)
	}
	s := &Store{
		root:    dir,
		catalog: make(map[string]domain.ArtifactInfo),
		locks:   make(map[string]*sync.Mutex),
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// scan rebuilds the catalog from the directory layout. The producer of
// pre-existing artifacts is unknown after a restart.
func (s *Store) scan() error {
	categories, err := os.ReadDir(s.root)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreInit.Code, "read artifacts dir", err)
	}
	for _, c := range categories {
		if !c.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, c.Name()))
		if err != nil {
			return domain.WrapEngineError(domain.ErrStoreInit.Code, "read category dir", err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasSuffix(f.Name(), ".tmp") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			s.catalog[key(c.Name(), f.Name())] = domain.ArtifactInfo{
				Category:  c.Name(),
				Name:      f.Name(),
				UpdatedAt: info.ModTime(),
				Size:      info.Size(),
			}
		}
	}
	return nil
}

func key(category, name string) string { return category + "/" + name }

// validName rejects empty components, path separators, traversal, and
// oversized names.
func validName(component string) bool {
	if component == "" || len(component) > 255 {
		return false
	}
	if component == "." || component == ".." {
		return false
	}
	if strings.ContainsAny(component, "/\\") {
		return false
	}
	return true
}

// lockFor returns the per-key mutex, creating it on first use. Writers to the
// same (category, name) are serialized; writers to different keys proceed
// independently.
func (s *Store) lockFor(k string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// Store writes or overwrites an artifact. The prior content of an overwritten
// artifact is not retrievable.
func (s *Store) Store(category, name string, content []byte, producer string) error {
	if !validName(category) || !validName(name) {
		return domain.WrapEngineError(domain.ErrInvalidName.Code,
			fmt.Sprintf("%q/%q", category, name), nil)
	}

	k := key(category, name)
	l := s.lockFor(k)
	l.Lock()
	defer l.Unlock()

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "create category dir", err)
	}

	final := filepath.Join(dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "write artifact", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "replace artifact", err)
	}

	s.mu.Lock()
	s.catalog[k] = domain.ArtifactInfo{
		Category:  category,
		Name:      name,
		Producer:  producer,
		UpdatedAt: time.Now().UTC(),
		Size:      int64(len(content)),
	}
	s.mu.Unlock()
	return nil
}

// Retrieve returns the artifact content, byte-identical to what was stored.
func (s *Store) Retrieve(category, name string) ([]byte, error) {
	if !validName(category) || !validName(name) {
		return nil, domain.WrapEngineError(domain.ErrInvalidName.Code,
			fmt.Sprintf("%q/%q", category, name), nil)
	}
	data, err := os.ReadFile(filepath.Join(s.root, category, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapEngineError(domain.ErrNotFound.Code, key(category, name), nil)
		}
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "read artifact", err)
	}
	return data, nil
}

// Exists reports whether an artifact is present. Used by the orchestrator's
// deliverable check.
func (s *Store) Exists(category, name string) bool {
	if !validName(category) || !validName(name) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, category, name))
	return err == nil
}

// List returns all artifact names in a category.
func (s *Store) List(category string) ([]string, error) {
	if !validName(category) {
		return nil, domain.WrapEngineError(domain.ErrInvalidName.Code, fmt.Sprintf("%q", category), nil)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, category))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list category", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && !strings.HasSuffix(e.Name(), ".tmp") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Info returns catalog metadata for an artifact.
func (s *Store) Info(category, name string) (domain.ArtifactInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.catalog[key(category, name)]
	if !ok {
		return domain.ArtifactInfo{}, domain.WrapEngineError(domain.ErrNotFound.Code, key(category, name), nil)
	}
	return info, nil
}
