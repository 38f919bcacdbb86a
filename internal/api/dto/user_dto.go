package dto

import (
	"time"

	"github.com/spec-kit/task-service/internal/domain"
)

// CreateUserRequest payload for admin user creation.
type CreateUserRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6"`
	Role     string  `json:"role" validate:"omitempty,oneof=admin manager user"`
	Manager  *string `json:"manager"`
}

// UpdateUserRequest payload; nil fields were not supplied.
type UpdateUserRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Role    *string `json:"role" validate:"omitempty,oneof=admin manager user"`
	Manager *string `json:"manager"`
}

// UserResponse is the user representation; the password hash never leaves
// the service.
type UserResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Role      domain.Role      `json:"role"`
	Manager   *UserRefResponse `json:"manager"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// UserDetailResponse is a user with their task status breakdown.
type UserDetailResponse struct {
	UserResponse
	TaskStats TaskStatsBreakdown `json:"taskStats"`
}

// TaskStatsBreakdown counts a user's tasks by status.
type TaskStatsBreakdown struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
}
