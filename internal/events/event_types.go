package events

import (
	"time"

	"github.com/spec-kit/task-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTaskCreated       EventType = "task_created"
	EventTaskStatusChanged EventType = "task_status_changed"
	EventTaskAssigned      EventType = "task_assigned"
	EventTaskDeleted       EventType = "task_deleted"
	EventUserDeleted       EventType = "user_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	EntityID  string      `json:"entity_id"`
	ActorID   string      `json:"actor_id"`
	ActorRole domain.Role `json:"actor_role"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TaskCreatedPayload payload.
type TaskCreatedPayload struct {
	Title      string              `json:"title"`
	Priority   domain.TaskPriority `json:"priority"`
	AssignedTo *string             `json:"assigned_to,omitempty"`
	TeamID     *string             `json:"team_id,omitempty"`
}

// TaskStatusChangedPayload payload.
type TaskStatusChangedPayload struct {
	OldStatus domain.TaskStatus `json:"old_status"`
	NewStatus domain.TaskStatus `json:"new_status"`
}

// TaskAssignedPayload payload.
type TaskAssignedPayload struct {
	OldAssignee *string `json:"old_assignee,omitempty"`
	NewAssignee *string `json:"new_assignee,omitempty"`
}

// UserDeletedPayload payload.
type UserDeletedPayload struct {
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	WasManager bool        `json:"was_manager"`
}
