// Package workspace keeps the wizard state of each browser session in
// memory and serializes access to it.
package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/dethi/internal/wizard"
)

var (
	// ErrNotFound is returned for unknown or expired workspace IDs.
	ErrNotFound = errors.New("workspace not found")
	// ErrInFlight is returned when an operation is triggered while the same
	// operation is still running.
	ErrInFlight = errors.New("operation already in progress")
)

// Workspace is the mutable holder of one session's wizard.State.
type Workspace struct {
	ID string

	mu      sync.Mutex
	state   wizard.State
	touched time.Time
}

func newWorkspace(id string, now time.Time) *Workspace {
	return &Workspace{ID: id, state: wizard.New(), touched: now}
}

// Snapshot returns a copy of the current state.
func (w *Workspace) Snapshot() wizard.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Dispatch applies actions atomically and returns the resulting state.
func (w *Workspace) Dispatch(actions ...wizard.Action) wizard.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = wizard.Reduce(w.state, actions...)
	return w.state
}

// Begin marks op as in flight and returns the state to build the request
// from. It fails with ErrInFlight if op is already running, or with the
// error returned by check, which sees the state before anything changes.
func (w *Workspace) Begin(op wizard.Op, check func(wizard.State) error) (wizard.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.InFlight.Has(op) {
		return w.state, ErrInFlight
	}
	if check != nil {
		if err := check(w.state); err != nil {
			return w.state, err
		}
	}
	w.state = wizard.Reduce(w.state, wizard.Started{Op: op})
	return w.state, nil
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.touched = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.touched, w.state.Busy()
}

// Manager owns every live workspace and expires idle ones.
type Manager struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]*Workspace
}

// NewManager creates a Manager that drops workspaces idle for longer than ttl.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{ttl: ttl, now: time.Now, items: make(map[string]*Workspace)}
}

// Create starts a fresh workspace.
func (m *Manager) Create() *Workspace {
	w := newWorkspace(uuid.NewString(), m.now())
	m.mu.Lock()
	m.items[w.ID] = w
	m.mu.Unlock()
	return w
}

// Get returns the workspace with the given ID and marks it as used.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.Lock()
	w, ok := m.items[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	w.touch(m.now())
	return w, nil
}

// Len returns the number of live workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Sweep removes expired workspaces and returns how many were dropped.
// Workspaces with an operation in flight are kept.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, w := range m.items {
		touched, busy := w.idleSince()
		if busy || touched.After(cutoff) {
			continue
		}
		delete(m.items, id)
		n++
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("expired workspaces", "count", n, "live", m.Len())
			}
		}
	}
}
