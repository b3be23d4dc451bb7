package store

import (
	"agentq/internal/recurrence"
)

// Status is the task lifecycle state.
//
// Valid transitions:
//
//	pending    -> processing  (claimed by the scheduler)
//	processing -> completed   (agent succeeded)
//	processing -> failed      (agent failed or timed out)
//	processing -> pending     (operator cancel, or startup recovery)
//	pending | completed | failed -> pending (operator force/restart)
//
// A task left in processing with no live execution is repaired to pending
// at scheduler startup.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Task is one unit of work. The numeric ID orders and addresses rows; the
// UUID is the external identity and keys the workspace, memory and log for
// the whole lifetime of a recurring series.
type Task struct {
	ID          int64  `json:"id"`
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueTime     int64  `json:"due_time"`    // epoch ms
	CreatedAt   int64  `json:"created_at"`  // epoch ms
	UpdatedAt   int64  `json:"updated_at"`  // epoch ms
	Status      Status `json:"status"`

	RecurrenceType     recurrence.Type `json:"recurrence_type"`
	RecurrenceInterval int64           `json:"recurrence_interval"`
	RecurrenceEndTime  *int64          `json:"recurrence_end_time"` // epoch ms, nil = unbounded
}

// Recurring reports whether the task re-enqueues itself after completion.
func (t *Task) Recurring() bool {
	return t != nil && t.RecurrenceType != recurrence.TypeNone && t.RecurrenceType != ""
}

// Series extracts the recurrence state for the recurrence engine.
func (t *Task) Series() recurrence.Series {
	return recurrence.Series{
		Type:     t.RecurrenceType,
		Interval: t.RecurrenceInterval,
		EndTime:  t.RecurrenceEndTime,
		DueTime:  t.DueTime,
	}
}

// CreateTaskInput carries the caller-supplied fields of a new task.
type CreateTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueTime     int64  `json:"due_time"`

	RecurrenceType     recurrence.Type `json:"recurrence_type"`
	RecurrenceInterval int64           `json:"recurrence_interval"`
	RecurrenceEndTime  *int64          `json:"recurrence_end_time"`
}

// SearchFilters narrows Search results. Zero values mean "no filter".
type SearchFilters struct {
	Status        Status
	TitleContains string
	DueBefore     int64
	DueAfter      int64
}
