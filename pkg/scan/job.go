package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/defendx/defendx/pkg/config"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/scoring"
	"github.com/defendx/defendx/pkg/surface"
)

// State is a job's position in its lifecycle. Transitions only move
// forward: queued, running, then exactly one terminal state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether a state ends the job.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Request describes one scan to run.
type Request struct {
	// Target is the root URL to scan.
	Target string

	// Authorized asserts the caller may scan the target. Requests
	// without it are rejected before any packet is sent.
	Authorized bool

	Mode config.Mode
}

// Result is the full outcome of one scan.
type Result struct {
	ScanID   string            `json:"scan_id"`
	Target   string            `json:"target"`
	Mode     config.Mode       `json:"mode"`
	Snapshot *surface.Snapshot `json:"snapshot,omitempty"`
	Findings []finding.Finding `json:"findings"`
	Summary  scoring.Summary   `json:"summary"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// TimedOut marks a scan cut short by its deadline. Findings hold
	// whatever the detectors produced before the cut.
	TimedOut bool `json:"timed_out"`

	// Failed marks a scan that could not assess the target at all.
	Failed bool   `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// Job is a handle to a submitted scan.
type Job struct {
	id string

	mu     sync.Mutex
	state  State
	result *Result

	done chan struct{}
}

func newJob() *Job {
	return &Job{
		id:    uuid.NewString(),
		state: StateQueued,
		done:  make(chan struct{}),
	}
}

// ID returns the job's scan ID.
func (j *Job) ID() string { return j.id }

// State returns the job's current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateQueued {
		j.state = StateRunning
	}
}

// finish records the terminal state and result exactly once.
func (j *Job) finish(state State, result *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = state
	j.result = result
	close(j.done)
}

// Wait blocks until the job reaches a terminal state or ctx expires.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
