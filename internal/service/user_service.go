package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/task-service/internal/auth"
	"github.com/spec-kit/task-service/internal/config"
	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/events"
	"github.com/spec-kit/task-service/internal/policy"
	"github.com/spec-kit/task-service/internal/repository"
	apperrors "github.com/spec-kit/task-service/pkg/util"
)

// UserService manages user accounts and the team views.
type UserService struct {
	users      repository.UserRepository
	tasks      repository.TaskRepository
	dispatcher events.Dispatcher
	bcryptCost int
}

// UserDependencies encapsulates repo requirements for the user service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	TaskRepo   repository.TaskRepository
	Dispatcher events.Dispatcher
}

// NewUserService constructs the service.
func NewUserService(cfg config.Config, deps UserDependencies) *UserService {
	return &UserService{
		users:      deps.UserRepo,
		tasks:      deps.TaskRepo,
		dispatcher: deps.Dispatcher,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// UserListInput describes admin listing filters.
type UserListInput struct {
	Role   *domain.Role
	Search *string
	Page   int
	Limit  int
}

// UserPage is a page of users with pagination metadata.
type UserPage struct {
	Items []domain.User
	Page  int
	Limit int
	Total int
	Pages int
}

// UserCreateInput describes the admin creation payload.
type UserCreateInput struct {
	Name      string
	Email     string
	Password  string
	Role      domain.Role
	ManagerID *string
}

// UserUpdateInput carries the fields present in an update payload; nil
// means the field was not supplied.
type UserUpdateInput struct {
	Name      *string
	Email     *string
	Role      *domain.Role
	ManagerID *string
}

// UserDetail is a user with its task status breakdown.
type UserDetail struct {
	User      *domain.User
	TaskStats map[domain.TaskStatus]int
}

func requireAdmin(actor *domain.User) error {
	if !policy.CanManageUsers(actor.Role) {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// ListUsers returns a page of users. Admin only.
func (s *UserService) ListUsers(ctx context.Context, actor *domain.User, input UserListInput) (*UserPage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	page := input.Page
	if page <= 0 {
		page = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	filter := repository.UserFilter{
		Role:   input.Role,
		Search: input.Search,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	items, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	return &UserPage{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// GetUser fetches a user with resolved manager reference and task status
// counts. Admin only.
func (s *UserService) GetUser(ctx context.Context, actor *domain.User, id string) (*UserDetail, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetResolved(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}

	stats, err := s.tasks.CountByStatus(ctx, policy.TaskScope{AssigneeIDs: []string{user.ID}})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &UserDetail{User: user, TaskStats: stats}, nil
}

// CreateUser creates an account. Admin only. A supplied manager reference
// must resolve to a user whose role is exactly manager.
func (s *UserService) CreateUser(ctx context.Context, actor *domain.User, input UserCreateInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperrors.NewConflict("user already exists", map[string]any{"email": email})
	} else if err != nil && err != pgx.ErrNoRows {
		return nil, apperrors.MapError(err)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	if err := s.validateManagerRef(ctx, input.ManagerID); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		ManagerID:    input.ManagerID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// UpdateUser applies a partial update to an account. Admin only. The
// manager reference is validated identically to creation.
func (s *UserService) UpdateUser(ctx context.Context, actor *domain.User, id string, input UserUpdateInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}

	if input.ManagerID != nil {
		if err := s.validateManagerRef(ctx, input.ManagerID); err != nil {
			return nil, err
		}
		user.ManagerID = input.ManagerID
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *input.Role})
		}
		user.Role = *input.Role
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}

	resolved, err := s.users.GetResolved(ctx, user.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return resolved, nil
}

// DeleteUser removes an account after detaching references to it. Admin
// only; self-deletion is refused for every role to avoid lockout. The
// detach steps and the delete run sequentially, not in one transaction: a
// crash in between leaves a dangling reference, which reads tolerate.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("user", nil)
		}
		return apperrors.MapError(err)
	}
	if user.ID == actor.ID {
		return apperrors.NewConflict("cannot delete your own account", nil)
	}

	if err := s.tasks.DetachAssignee(ctx, user.ID); err != nil {
		return apperrors.MapError(err)
	}
	if user.Role == domain.RoleManager {
		if err := s.users.DetachManager(ctx, user.ID); err != nil {
			return apperrors.MapError(err)
		}
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventUserDeleted,
		EntityID: user.ID,
		Payload: events.UserDeletedPayload{
			Email:      user.Email,
			Role:       user.Role,
			WasManager: user.Role == domain.RoleManager,
		},
	})
	return nil
}

// TeamMembers returns the actor's direct reports. Manager only.
func (s *UserService) TeamMembers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if !policy.CanListTeam(actor.Role) {
		return nil, apperrors.NewForbidden("manager role required")
	}
	members, err := s.users.ListByManager(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}

// AssignableUsers returns the pool the actor may assign tasks to: everyone
// for admins, direct reports plus self for managers.
func (s *UserService) AssignableUsers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if !policy.CanListAssignable(actor.Role) {
		return nil, apperrors.NewForbidden("admin or manager role required")
	}

	var managerID *string
	if actor.Role == domain.RoleManager {
		managerID = &actor.ID
	}
	users, err := s.users.ListAssignable(ctx, managerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// Managers returns all manager-role users, for assignment dropdowns.
// Admin only.
func (s *UserService) Managers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	managers, err := s.users.ListManagers(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return managers, nil
}

// validateManagerRef checks that a supplied manager id resolves to an
// existing manager-role user. A nil reference is always valid.
func (s *UserService) validateManagerRef(ctx context.Context, managerID *string) error {
	if managerID == nil {
		return nil
	}
	mgr, err := s.users.GetByID(ctx, *managerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewValidationError("invalid manager", map[string]any{"manager": *managerID})
		}
		return apperrors.MapError(err)
	}
	if mgr.Role != domain.RoleManager {
		return apperrors.NewValidationError("invalid manager", map[string]any{"manager": *managerID})
	}
	return nil
}

func (s *UserService) publishEvent(ctx context.Context, actor *domain.User, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.ActorID = actor.ID
	event.ActorRole = actor.Role
	_ = s.dispatcher.Publish(ctx, event)
}
