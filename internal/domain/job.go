package domain

import (
	"encoding/json"
	"time"
)

// JobState is a position in the per-job lifecycle state machine. Terminal
// states (Completed, Failed, Canceled) are sticky: once reached they are
// never rewritten.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Terminal reports whether s is one of the three terminal states.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled:
		return true
	}
	return false
}

// JobOutput is the terminal-only structured payload recorded on success.
type JobOutput struct {
	PromptID string         `json:"prompt_id"`
	Status   string         `json:"status"`
	Result   map[string]any `json:"result"`
}

// JobRecord is the per-invocation lifecycle record. InputPayload is the
// verbatim request body; OutputPayload is populated only in the Completed
// state; Error carries one of the taxonomy-prefixed failure strings
// (VALIDATION_ERROR, QUEUE_ERROR, OUTPUT_TIMEOUT, and so on) when the job
// fails.
type JobRecord struct {
	JobID           string          `json:"job_id"`
	State           JobState        `json:"state"`
	InputPayload    json.RawMessage `json:"input_payload,omitempty"`
	OutputPayload   *JobOutput      `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	PromptID        string          `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CanTransitionTo reports whether moving from j.State to next is legal:
// terminal states reject every further transition.
func (j *JobRecord) CanTransitionTo(next JobState) bool {
	return !j.State.Terminal()
}
