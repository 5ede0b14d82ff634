package models

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// JobSummary is the per-job outcome recorded on a finished run.
type JobSummary struct {
	ID    int64  `json:"id"`
	Key   string `json:"key"`
	State string `json:"state"`
	Info  string `json:"info,omitempty"`
}

// Run represents one trigger execution tracked by serve mode. Exported
// fields are guarded by mu; read them through the accessors or MarshalJSON.
type Run struct {
	ID         string
	Process    string
	Folder     string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
	Jobs       []JobSummary
	Output     []string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// runView mirrors Run's exported fields for serialization.
type runView struct {
	ID         string       `json:"id"`
	Process    string       `json:"process"`
	Folder     string       `json:"folder"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      string       `json:"error,omitempty"`
	Jobs       []JobSummary `json:"jobs,omitempty"`
	Output     []string     `json:"output"`
}

// MarshalJSON encodes a snapshot taken under the run lock, so a run can be
// serialized while its trigger goroutine is still writing to it.
func (r *Run) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal(runView{
		ID:         r.ID,
		Process:    r.Process,
		Folder:     r.Folder,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Error:      r.Error,
		Jobs:       r.Jobs,
		Output:     r.Output,
	})
}

// AppendLog adds a log line to the run output.
func (r *Run) AppendLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Output = append(r.Output, line)
}

// LogsSince returns log lines starting from the given index.
func (r *Run) LogsSince(offset int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.Output) {
		return nil
	}
	lines := make([]string, len(r.Output)-offset)
	copy(lines, r.Output[offset:])
	return lines
}

// CurrentStatus returns the run status under lock.
func (r *Run) CurrentStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status
}

// SetJobs records the per-job outcomes.
func (r *Run) SetJobs(jobs []JobSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Jobs = jobs
}

// Complete marks the run as completed.
func (r *Run) Complete() {
	r.finish(RunStatusCompleted, "")
}

// Fail marks the run as failed with an error message.
func (r *Run) Fail(err string) {
	r.finish(RunStatusFailed, err)
}

// Cancel stops a waiting run. Safe to call on finished runs.
func (r *Run) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	if r.Status == RunStatusRunning {
		r.Status = RunStatusCancelled
		now := time.Now()
		r.FinishedAt = &now
	}
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Run) finish(status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status != RunStatusRunning {
		return // cancelled wins over late completion
	}
	r.Status = status
	r.Error = errMsg
	now := time.Now()
	r.FinishedAt = &now
}

// RunStore is an in-memory thread-safe store for runs.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

// Create adds a new run, assigning it a UUID and a cancel func.
func (s *RunStore) Create(process, folder string, cancel context.CancelFunc) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Run{
		ID:        uuid.New().String(),
		Process:   process,
		Folder:    folder,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		Output:    []string{},
		cancel:    cancel,
	}
	s.runs[r.ID] = r
	return r
}

// Get returns a run by ID, or nil if not found.
func (s *RunStore) Get(id string) *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[id]
}

// List returns all runs, most recent first.
func (s *RunStore) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		result = append(result, r)
	}
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].StartedAt.After(result[i].StartedAt) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result
}
