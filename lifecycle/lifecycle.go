// Package lifecycle tracks the phase of one inference pipeline and admits at
// most one run at a time.
//
//	Unloaded -> Loading -> Ready -> Running -> Idle -> Running -> Idle ...
//
// A failed load returns to Unloaded. Ready and Idle both mean "loaded, not
// inferring"; Idle additionally means at least one run has finished.
package lifecycle

import (
	"sync"

	"github.com/kbukum/scribe/errors"
)

// Phase is the lifecycle phase of a pipeline.
type Phase int

const (
	Unloaded Phase = iota
	Loading
	Ready
	Running
	Idle
)

var phaseNames = [...]string{"unloaded", "loading", "ready", "running", "idle"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Loaded reports whether the phase implies a loaded backend.
func (p Phase) Loaded() bool { return p >= Ready }

// Ticket identifies the holder of a run reservation.
type Ticket uint64

// Machine is safe for concurrent use.
type Machine struct {
	pipeline string

	mu       sync.Mutex
	phase    Phase
	reserved Ticket
	next     Ticket
}

// New creates a Machine in the Unloaded phase.
func New(pipeline string) *Machine {
	return &Machine{pipeline: pipeline}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Busy reports whether a run is reserved or running.
func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved != 0
}

// StartLoad moves Unloaded to Loading. It is a no-op in any other phase.
func (m *Machine) StartLoad() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == Unloaded {
		m.phase = Loading
	}
}

// LoadSucceeded moves a not-yet-loaded machine to Ready.
func (m *Machine) LoadSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.phase.Loaded() {
		m.phase = Ready
	}
}

// LoadFailed returns a loading machine to Unloaded so a later load may
// retry.
func (m *Machine) LoadFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == Loading {
		m.phase = Unloaded
	}
}

// Acquire reserves the machine for one run. It fails with RUN_IN_PROGRESS
// while another reservation is held and changes nothing in that case.
func (m *Machine) Acquire() (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved != 0 {
		return 0, errors.RunInProgress(m.pipeline)
	}
	m.next++
	m.reserved = m.next
	return m.reserved, nil
}

// BeginRun moves a loaded machine to Running for the reservation holder.
func (m *Machine) BeginRun(t Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved != t || m.phase == Running {
		return errors.RunInProgress(m.pipeline)
	}
	if !m.phase.Loaded() {
		return errors.NotLoaded(m.pipeline)
	}
	m.phase = Running
	return nil
}

// Release ends the reservation. A running machine becomes Idle.
func (m *Machine) Release(t Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved != t {
		return
	}
	m.reserved = 0
	if m.phase == Running {
		m.phase = Idle
	}
}
