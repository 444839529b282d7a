// Package workspace owns the scratch directory every action runs in.
//
// The directory is shared by all requests. A read/write lock keeps reset from
// interleaving with anything else: compile, eval, write and read take the
// shared side and may overlap each other; reset takes the exclusive side.
//
// Two writers to the same file, or a compile racing a write of its own input,
// still have no defined order.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sakif/workbench/internal/apperror"
)

// Step identifies which half of a reset failed.
type Step string

const (
	StepRemove   Step = "removing"
	StepRecreate Step = "recreating"
)

// ResetError reports a failed reset and which step failed.
type ResetError struct {
	Step Step
	Err  error
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("%s workspace: %v", e.Step, e.Err)
}

func (e *ResetError) Unwrap() error {
	return e.Err
}

// ResetHook is told about every reset while the exclusive lock is held.
// AfterReset runs whether or not the reset succeeded.
type ResetHook interface {
	BeforeReset()
	AfterReset()
}

// Workspace is the scratch directory plus the lock guarding it.
type Workspace struct {
	root string

	mu    sync.RWMutex
	hooks []ResetHook
}

// New returns a Workspace rooted at dir. The directory is not created here:
// it appears on the first Reset (or Ensure).
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolving %s: %w", dir, err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute path of the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// OnReset registers h to bracket every reset. Hooks are entered in
// registration order and left in reverse.
func (w *Workspace) OnReset(h ResetHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, h)
}

// Shared runs fn while holding the shared lock.
// Subprocess actions use this so a reset cannot pull the directory out
// from under them.
func (w *Workspace) Shared(fn func() error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fn()
}

// Resolve maps a workspace-relative name to an absolute path inside the root.
//
// Absolute names and names that climb out with ".." are rejected with
// apperror.ErrForbidden; an empty name is a validation error.
func (w *Workspace) Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperror.ValidationFailed("filename", "filename is required")
	}
	if filepath.IsAbs(name) {
		return "", apperror.Forbidden(fmt.Sprintf("path %q escapes the workspace", name))
	}

	full := filepath.Join(w.root, name)
	rel, err := filepath.Rel(w.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperror.Forbidden(fmt.Sprintf("path %q escapes the workspace", name))
	}
	return full, nil
}

// WriteFile overwrites name with content.
// Parent directories are not created: writing "a/b.txt" fails unless "a"
// already exists inside the workspace.
func (w *Workspace) WriteFile(name string, content []byte) error {
	path, err := w.Resolve(name)
	if err != nil {
		return err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the contents of name.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	path, err := w.Resolve(name)
	if err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Reset deletes the workspace recursively and recreates it empty.
// A failure is returned as a *ResetError naming the failing step.
func (w *Workspace) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range w.hooks {
		h.BeforeReset()
	}
	defer func() {
		for i := len(w.hooks) - 1; i >= 0; i-- {
			w.hooks[i].AfterReset()
		}
	}()

	if err := os.RemoveAll(w.root); err != nil {
		return &ResetError{Step: StepRemove, Err: err}
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return &ResetError{Step: StepRecreate, Err: err}
	}
	return nil
}

// Ensure creates the workspace directory if it does not exist yet.
func (w *Workspace) Ensure() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.root, 0755); err != nil {
		return fmt.Errorf("workspace: creating %s: %w", w.root, err)
	}
	return nil
}

// Entries lists the names directly inside the workspace.
// A workspace that has not been created yet has no entries.
func (w *Workspace) Entries() ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	entries, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: listing %s: %w", w.root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
