package dto

import (
	"time"

	"github.com/spec-kit/task-service/internal/domain"
)

// CreateTaskRequest payload.
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Status      string     `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"dueDate"`
	AssignedTo  string     `json:"assignedTo" validate:"required"`
}

// UpdateTaskRequest payload; nil fields were not supplied.
type UpdateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"dueDate"`
	AssignedTo  *string    `json:"assignedTo"`
}

// UserRefResponse is an embedded name/email reference.
type UserRefResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TaskResponse is the full task representation.
type TaskResponse struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      domain.TaskStatus   `json:"status"`
	Priority    domain.TaskPriority `json:"priority"`
	DueDate     *time.Time          `json:"dueDate"`
	AssignedTo  *UserRefResponse    `json:"assignedTo"`
	CreatedBy   *UserRefResponse    `json:"createdBy"`
	TeamID      *string             `json:"team"`
	IsOverdue   bool                `json:"isOverdue"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// PaginationResponse carries page metadata.
type PaginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// CalendarEventResponse is a task shaped as a calendar entry. Start and end
// are both the due date.
type CalendarEventResponse struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	Start    time.Time           `json:"start"`
	End      time.Time           `json:"end"`
	Status   domain.TaskStatus   `json:"status"`
	Priority domain.TaskPriority `json:"priority"`
	Assignee *UserRefResponse    `json:"assignee"`
}

// TaskStatsResponse is the dashboard overview payload.
type TaskStatsResponse struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
	Total      int `json:"total"`
}
