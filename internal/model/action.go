package model

import "time"

// Action outcome constants.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Submission discipline constants.
const (
	DisciplineGlobal  = "global"
	DisciplineChained = "chained"
)

// ActionRecord is the journal entry written once an action reaches Completed.
type ActionRecord struct {
	Ref        string     `json:"ref"`
	ActionID   int64      `json:"action_id"`
	Name       string     `json:"name"`
	Discipline string     `json:"discipline"`
	Outcome    string     `json:"outcome"`
	Error      string     `json:"error,omitempty"`
	WorkerID   int        `json:"worker_id,omitempty"`
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
	DurationMS int        `json:"duration_ms"`
}

// Succeeded reports whether the record describes a clean run.
func (r *ActionRecord) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}
