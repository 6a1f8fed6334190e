package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/montecarlo"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a submitted run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Registry errors.
var (
	ErrRunNotFound   = errors.New("run not found")
	ErrRunNotRunning = errors.New("run is not running")
)

// RunState tracks one submitted simulation run.
type RunState struct {
	ID          string
	Params      types.StrategyParams
	Simulations int
	Status      RunStatus
	Progress    types.Progress
	Result      *types.SimulationResult
	Error       string
	ErrorKind   string
	Started     time.Time
	Finished    time.Time

	cancel context.CancelFunc
}

// RunRegistry holds runs in memory until they age out.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*RunState
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*RunState)}
}

// Create registers a running run and returns its snapshot.
func (r *RunRegistry) Create(params types.StrategyParams, sims, totalBatches int, cancel context.CancelFunc) RunState {
	run := &RunState{
		ID:          uuid.New().String(),
		Params:      params,
		Simulations: sims,
		Status:      RunRunning,
		Progress:    types.Progress{TotalBatches: totalBatches},
		Started:     time.Now(),
		cancel:      cancel,
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()
	return *run
}

// Get returns a snapshot of a run.
func (r *RunRegistry) Get(id string) (RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return RunState{}, false
	}
	return *run, true
}

// UpdateProgress records the latest progress of a running run.
func (r *RunRegistry) UpdateProgress(id string, p types.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok && run.Status == RunRunning {
		run.Progress = p
	}
}

// Complete stores the result of a successful run.
func (r *RunRegistry) Complete(id string, result *types.SimulationResult) (RunState, bool) {
	return r.finish(id, func(run *RunState) {
		run.Status = RunCompleted
		run.Result = result
		run.Progress.CompletedBatches = run.Progress.TotalBatches
	})
}

// Fail stores the error of a failed or cancelled run.
func (r *RunRegistry) Fail(id string, err error) (RunState, bool) {
	return r.finish(id, func(run *RunState) {
		run.Status = RunFailed
		kind := montecarlo.KindOf(err)
		if kind == montecarlo.KindCancelled {
			run.Status = RunCancelled
		}
		if kind != "" {
			run.ErrorKind = string(kind)
		}
		run.Error = err.Error()
	})
}

func (r *RunRegistry) finish(id string, apply func(*RunState)) (RunState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return RunState{}, false
	}
	apply(run)
	run.Finished = time.Now()
	run.cancel = nil
	return *run, true
}

// Cancel requests cancellation of a running run.
func (r *RunRegistry) Cancel(id string) error {
	r.mu.RLock()
	run, ok := r.runs[id]
	var cancel context.CancelFunc
	running := false
	if ok {
		running = run.Status == RunRunning
		cancel = run.cancel
	}
	r.mu.RUnlock()

	if !ok {
		return ErrRunNotFound
	}
	if !running || cancel == nil {
		return ErrRunNotRunning
	}
	cancel()
	return nil
}

// CancelAll cancels every running run.
func (r *RunRegistry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
}

// Evict removes finished runs older than retention and returns how many.
func (r *RunRegistry) Evict(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, run := range r.runs {
		if run.Status != RunRunning && now.Sub(run.Finished) > retention {
			delete(r.runs, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked runs.
func (r *RunRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
