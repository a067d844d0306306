// Package registry keeps the regressions started through the API in memory.
package registry

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NethermindEth/eternal-regression/core"
)

// RunStatus is the lifecycle of a registered run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one regression and everything it has produced so far.
type Run struct {
	ID        string
	Rounds    int
	CreatedAt time.Time

	mu      sync.RWMutex
	status  RunStatus
	events  []core.Event
	records []core.RoundRecord
	err     string
	cancel  context.CancelFunc
}

// RunInfo is a point-in-time view of a run.
type RunInfo struct {
	ID        string    `json:"id"`
	Rounds    int       `json:"rounds"`
	CreatedAt time.Time `json:"created_at"`
	Status    RunStatus `json:"status"`
	Events    int       `json:"events"`
	Completed int       `json:"completed_rounds"`
	Error     string    `json:"error,omitempty"`
}

// Append records an event.
func (r *Run) Append(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// SetRecords replaces the round log with the latest one from the driver.
func (r *Run) SetRecords(records []core.RoundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = slices.Clone(records)
}

// Finish marks the run as ended. A nil error completes it; a cancelled
// context marks it cancelled.
func (r *Run) Finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err == nil:
		r.status = RunCompleted
	case r.status == RunCancelled, errors.Is(err, context.Canceled):
		r.status = RunCancelled
	default:
		r.status = RunFailed
		r.err = err.Error()
	}
}

// Cancel stops a running regression.
func (r *Run) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == RunRunning {
		r.status = RunCancelled
	}
	if r.cancel != nil {
		r.cancel()
	}
}

// Events returns the events after the first after ones.
func (r *Run) Events(after int) []core.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if after < 0 {
		after = 0
	}
	if after >= len(r.events) {
		return []core.Event{}
	}
	return slices.Clone(r.events[after:])
}

// Records returns the finished rounds.
func (r *Run) Records() []core.RoundRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.records)
}

// Info returns a snapshot of the run.
func (r *Run) Info() RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunInfo{
		ID:        r.ID,
		Rounds:    r.Rounds,
		CreatedAt: r.CreatedAt,
		Status:    r.status,
		Events:    len(r.events),
		Completed: len(r.records),
		Error:     r.err,
	}
}

// Registry indexes runs by id.
type Registry struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// Register creates a running entry. cancel is called by Cancel and Remove.
func (reg *Registry) Register(rounds int, cancel context.CancelFunc) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Rounds:    rounds,
		CreatedAt: time.Now(),
		status:    RunRunning,
		cancel:    cancel,
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runs[run.ID] = run
	reg.order = append(reg.order, run.ID)
	return run
}

// Get looks a run up.
func (reg *Registry) Get(id string) (*Run, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	run, ok := reg.runs[id]
	return run, ok
}

// Records implements the record source used by the insights handler.
func (reg *Registry) Records(id string) ([]core.RoundRecord, bool) {
	run, ok := reg.Get(id)
	if !ok {
		return nil, false
	}
	return run.Records(), true
}

// List returns every run in registration order.
func (reg *Registry) List() []RunInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	infos := make([]RunInfo, 0, len(reg.order))
	for _, id := range reg.order {
		infos = append(infos, reg.runs[id].Info())
	}
	return infos
}

// Remove cancels a run and forgets it.
func (reg *Registry) Remove(id string) bool {
	reg.mu.Lock()
	run, ok := reg.runs[id]
	if ok {
		delete(reg.runs, id)
		reg.order = slices.DeleteFunc(reg.order, func(v string) bool { return v == id })
	}
	reg.mu.Unlock()

	if ok {
		run.Cancel()
	}
	return ok
}
