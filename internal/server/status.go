package server

import (
	"sync"
	"time"

	"github.com/desertthunder/radiosync/internal/models"
)

// RunSummary is the JSON view of a finished [models.SyncRun].
type RunSummary struct {
	ID         string     `json:"id"`
	From       time.Time  `json:"from"`
	Until      time.Time  `json:"until,omitzero"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Duration   string     `json:"duration"`
	Crawled    int        `json:"crawled"`
	Resolved   int        `json:"resolved"`
	Dropped    int        `json:"dropped"`
	Removed    int        `json:"removed"`
	Inserted   int        `json:"inserted"`
	Committed  *time.Time `json:"committed,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// NewRunSummary converts run for display.
func NewRunSummary(run models.SyncRun) RunSummary {
	s := RunSummary{
		ID:         run.ID,
		From:       run.From,
		Until:      run.Until,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Duration:   run.Duration().String(),
		Crawled:    run.Crawled,
		Resolved:   run.Resolved,
		Dropped:    run.Dropped,
		Removed:    run.Removed,
		Inserted:   run.Inserted,
		Committed:  run.Committed,
	}
	if run.Err != nil {
		s.Error = run.Err.Error()
	}
	return s
}

// RunStatus remembers the last finished run. It is a tasks.RunObserver.
type RunStatus struct {
	mu    sync.RWMutex
	last  *models.SyncRun
	total int
}

// NewRunStatus creates an empty RunStatus.
func NewRunStatus() *RunStatus {
	return &RunStatus{}
}

// ObserveRun records run as the latest.
func (s *RunStatus) ObserveRun(run models.SyncRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &run
	s.total++
}

// Last returns the latest run and the number of runs seen.
func (s *RunStatus) Last() (models.SyncRun, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return models.SyncRun{}, s.total, false
	}
	return *s.last, s.total, true
}
