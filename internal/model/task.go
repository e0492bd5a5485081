package model

import (
	"time"
)

// TaskStatus represents the overall state of an item's background task.
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusRetrying   TaskStatus = "retrying"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Active reports whether a pipeline currently owns the task.
func (s TaskStatus) Active() bool {
	return s == TaskStatusProcessing || s == TaskStatusRetrying
}

// StepStatus represents the state of a single pipeline step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusProcessing StepStatus = "processing"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// Step names a sub-resource step of the mutation pipeline.
type Step string

const (
	StepImages         Step = "images"
	StepSpecifications Step = "specifications"
	StepPriceTiers     Step = "priceTiers"
)

// Steps lists the tracked steps in execution order.
var Steps = []Step{StepImages, StepSpecifications, StepPriceTiers}

// BackgroundTask tracks one item's in-progress or finished mutation. Exactly
// one of CompletedAt, FailedAt or CancelledAt is set once the task is done.
type BackgroundTask struct {
	ItemID          string              `json:"item_id"`
	Status          TaskStatus          `json:"status"`
	ProgressPercent int                 `json:"progress_percent"`
	Operations      map[Step]StepStatus `json:"operations"`
	StartTime       time.Time           `json:"start_time"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	FailedAt        *time.Time          `json:"failed_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	Error           string              `json:"error,omitempty"`
	Attempts        int                 `json:"attempts"`
}

// Clone returns a deep copy safe to hand to readers.
func (t *BackgroundTask) Clone() *BackgroundTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Operations = make(map[Step]StepStatus, len(t.Operations))
	for k, v := range t.Operations {
		c.Operations[k] = v
	}
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.FailedAt = cloneTime(t.FailedAt)
	c.CancelledAt = cloneTime(t.CancelledAt)
	return &c
}

// ApplicableSteps counts steps that were not skipped.
func (t *BackgroundTask) ApplicableSteps() int {
	n := 0
	for _, s := range t.Operations {
		if s != StepStatusSkipped {
			n++
		}
	}
	return n
}

// FinishedAt returns whichever terminal timestamp is set, or nil.
func (t *BackgroundTask) FinishedAt() *time.Time {
	switch {
	case t.CompletedAt != nil:
		return t.CompletedAt
	case t.FailedAt != nil:
		return t.FailedAt
	default:
		return t.CancelledAt
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
