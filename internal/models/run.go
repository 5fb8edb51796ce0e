package models

import "time"

// RunStatus is the lifecycle state of an index run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// IndexRun records one full rebuild of the vector index.
type IndexRun struct {
	ID         string     `json:"id" db:"id"`
	Trigger    string     `json:"trigger" db:"trigger_source"`
	Status     RunStatus  `json:"status" db:"status"`
	Documents  int        `json:"documents" db:"documents"`
	Units      int        `json:"units" db:"units"`
	Indexed    int        `json:"indexed" db:"indexed_units"`
	Error      string     `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r *IndexRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
