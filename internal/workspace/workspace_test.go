package workspace

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/dethi/internal/wizard"
)

func TestBeginSingleFlight(t *testing.T) {
	w := newWorkspace("w", time.Now())

	if _, err := w.Begin(wizard.OpGenerateMatrix, nil); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if _, err := w.Begin(wizard.OpGenerateMatrix, nil); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second Begin error = %v, want ErrInFlight", err)
	}
	if _, err := w.Begin(wizard.OpUploadMatrix, nil); err != nil {
		t.Fatalf("different op must not be blocked: %v", err)
	}

	w.Dispatch(wizard.Failed{Op: wizard.OpGenerateMatrix, Message: "x"})
	if _, err := w.Begin(wizard.OpGenerateMatrix, nil); err != nil {
		t.Fatalf("Begin after completion: %v", err)
	}
}

func TestBeginCheckLeavesStateUntouched(t *testing.T) {
	w := newWorkspace("w", time.Now())
	sentinel := errors.New("nope")

	_, err := w.Begin(wizard.OpGenerateMatrix, func(wizard.State) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("Begin error = %v, want sentinel", err)
	}
	if w.Snapshot().Busy() {
		t.Error("failed check must not mark the op in flight")
	}
}

func TestBeginConcurrent(t *testing.T) {
	w := newWorkspace("w", time.Now())
	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Begin(wizard.OpGenerateExam, nil); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if started != 1 {
		t.Errorf("started = %d, want exactly 1", started)
	}
}

func TestManagerGetAndSweep(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	m := NewManager(time.Hour)
	m.now = func() time.Time { return now }

	idle := m.Create()
	busy := m.Create()
	if _, err := busy.Begin(wizard.OpGenerateMatrix, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	now = now.Add(2 * time.Hour)
	fresh := m.Create()

	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, err := m.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Error("idle workspace should have expired")
	}
	if _, err := m.Get(busy.ID); err != nil {
		t.Error("busy workspace must survive the sweep")
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Error("fresh workspace must survive the sweep")
	}
}
