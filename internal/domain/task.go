package domain

import "time"

// TaskStatus enumerates lifecycle states for tasks.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskPriority enumerates urgency levels.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task is the aggregate for work items. AssignedTo is required at creation
// but becomes nil when the assignee account is deleted. TeamID records the
// creating manager's id and is never caller-settable, same as CreatedBy.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
	AssignedTo  *string
	CreatedBy   string
	TeamID      *string
	Assignee    *UserRef
	Creator     *UserRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOverdue reports whether the task has a due date strictly before now and
// is not completed. Computed on read, never persisted.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	return t.DueDate.Before(now) && t.Status != TaskStatusCompleted
}
