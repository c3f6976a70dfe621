// Package artifact owns the temporary files of a pipeline run.
//
// A Scope is a private temp directory. Every file handed out by the scope is
// tracked until it is released, and Close releases whatever is left, so a run
// cannot leave artifacts behind no matter how it exits.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spherical/offer-extractor/internal/domain"
)

// ErrClosed is returned when allocating from a closed scope.
var ErrClosed = errors.New("artifact scope closed")

// Scope tracks live temporary artifacts of a single run.
type Scope struct {
	mu       sync.Mutex
	dir      string
	live     map[string]struct{}
	released int
	closed   bool
}

// NewScope creates a fresh directory under baseDir (os.TempDir when empty).
func NewScope(baseDir, prefix string) (*Scope, error) {
	if prefix == "" {
		prefix = "run"
	}
	dir, err := os.MkdirTemp(baseDir, prefix+"-*")
	if err != nil {
		return nil, domain.IOError("Failed to create temp directory", err)
	}
	return &Scope{
		dir:  dir,
		live: make(map[string]struct{}),
	}, nil
}

// Dir returns the scope directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Allocate creates an empty file matching pattern and registers it.
func (s *Scope) Allocate(pattern string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return "", domain.IOError("Failed to allocate artifact", err)
	}
	path := f.Name()
	s.live[path] = struct{}{}

	if err := f.Close(); err != nil {
		return path, domain.IOError("Failed to allocate artifact", err)
	}
	return path, nil
}

// WriteFile allocates an artifact and fills it with data.
func (s *Scope) WriteFile(pattern string, data []byte) (string, error) {
	path, err := s.Allocate(pattern)
	if err != nil {
		return path, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return path, domain.IOError(fmt.Sprintf("Failed to write artifact %s", filepath.Base(path)), err)
	}
	return path, nil
}

// Release deletes a tracked artifact. Releasing an untracked or already
// released path is a no-op, so each artifact is removed at most once.
func (s *Scope) Release(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(path)
}

func (s *Scope) releaseLocked(path string) error {
	if _, ok := s.live[path]; !ok {
		return nil
	}
	delete(s.live, path)
	s.released++

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return domain.IOError(fmt.Sprintf("Failed to remove artifact %s", filepath.Base(path)), err)
	}
	return nil
}

// Live returns the tracked artifacts not yet released, sorted.
func (s *Scope) Live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.live))
	for p := range s.live {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Released returns how many artifacts have been released so far.
func (s *Scope) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Close releases all remaining artifacts and removes the scope directory.
// It is safe to call more than once.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for p := range s.live {
		if err := s.releaseLocked(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errs = append(errs, domain.IOError("Failed to remove temp directory", err))
	}
	return errors.Join(errs...)
}
