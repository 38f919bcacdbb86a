package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/events"
	"github.com/spec-kit/task-service/internal/policy"
	"github.com/spec-kit/task-service/internal/repository"
	apperrors "github.com/spec-kit/task-service/pkg/util"
)

// calendarMaxResults bounds the unpaginated calendar window query.
const calendarMaxResults = 500

// TaskService orchestrates task workflows: every operation resolves the
// actor's scope through the policy package and only then touches the store.
type TaskService struct {
	tasks      repository.TaskRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
}

// TaskDependencies bundles repositories for the task service.
type TaskDependencies struct {
	TaskRepo   repository.TaskRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
}

// NewTaskService constructs the service.
func NewTaskService(deps TaskDependencies) *TaskService {
	return &TaskService{
		tasks:      deps.TaskRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
	}
}

// TaskListInput describes listing filters and pagination.
type TaskListInput struct {
	Status   *domain.TaskStatus
	Priority *domain.TaskPriority
	Search   *string
	Page     int
	Limit    int
	SortBy   string
	Order    string
}

// TaskPage is a page of tasks with pagination metadata.
type TaskPage struct {
	Items []domain.Task
	Page  int
	Limit int
	Total int
	Pages int
}

// TaskCreateInput describes the creation payload. CreatedBy and team are
// never part of it; both derive from the acting user.
type TaskCreateInput struct {
	Title       string
	Description string
	Status      domain.TaskStatus
	Priority    domain.TaskPriority
	DueDate     *time.Time
	AssignedTo  string
}

// TaskUpdateInput carries the fields present in an update payload; nil
// means the field was not supplied.
type TaskUpdateInput struct {
	Title       *string
	Description *string
	Status      *domain.TaskStatus
	Priority    *domain.TaskPriority
	DueDate     *time.Time
	AssignedTo  *string
}

func (in TaskUpdateInput) providedFields() []policy.Field {
	var fields []policy.Field
	if in.Title != nil {
		fields = append(fields, policy.FieldTitle)
	}
	if in.Description != nil {
		fields = append(fields, policy.FieldDescription)
	}
	if in.Status != nil {
		fields = append(fields, policy.FieldStatus)
	}
	if in.Priority != nil {
		fields = append(fields, policy.FieldPriority)
	}
	if in.DueDate != nil {
		fields = append(fields, policy.FieldDueDate)
	}
	if in.AssignedTo != nil {
		fields = append(fields, policy.FieldAssignedTo)
	}
	return fields
}

// ListTasks returns the actor-visible page of tasks matching the filters.
func (s *TaskService) ListTasks(ctx context.Context, actor *domain.User, input TaskListInput) (*TaskPage, error) {
	scope, err := s.listScope(ctx, actor)
	if err != nil {
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

	filter := repository.TaskFilter{
		Scope:    scope,
		Status:   input.Status,
		Priority: input.Priority,
		Search:   input.Search,
		SortBy:   input.SortBy,
		Order:    input.Order,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}

	items, err := s.tasks.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	total, err := s.tasks.CountWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	return &TaskPage{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// GetTask fetches a single task, checking existence before visibility: a
// missing record is NotFound, a record outside the actor's scope is
// Forbidden.
func (s *TaskService) GetTask(ctx context.Context, actor *domain.User, id string) (*domain.Task, error) {
	task, err := s.tasks.GetResolved(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("task", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if !policy.CanViewTask(actor, task) {
		return nil, apperrors.NewForbidden("not authorized to view this task")
	}
	return task, nil
}

// CreateTask creates a task for an admin or manager actor. CreatedBy is
// always the actor; team is the actor's id when the actor is a manager.
func (s *TaskService) CreateTask(ctx context.Context, actor *domain.User, input TaskCreateInput) (*domain.Task, error) {
	if !policy.CanCreateTask(actor.Role) {
		return nil, apperrors.NewForbidden("only admins and managers can create tasks")
	}

	assignee, err := s.users.GetByID(ctx, input.AssignedTo)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewValidationError("assigned user not found", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if !policy.CanAssign(actor, assignee) {
		return nil, apperrors.NewForbidden("can only assign tasks to your team members")
	}

	assignedTo := assignee.ID
	task := &domain.Task{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
		AssignedTo:  &assignedTo,
		CreatedBy:   actor.ID,
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	if actor.Role == domain.RoleManager {
		teamID := actor.ID
		task.TeamID = &teamID
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTaskCreated,
		EntityID: task.ID,
		Payload: events.TaskCreatedPayload{
			Title:      task.Title,
			Priority:   task.Priority,
			AssignedTo: task.AssignedTo,
			TeamID:     task.TeamID,
		},
	})

	resolved, err := s.tasks.GetResolved(ctx, task.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return resolved, nil
}

// UpdateTask applies a partial update under the role field rules. The task
// is fetched fresh immediately before the authorization decision, and the
// assignee's manager is re-resolved rather than trusted from the stored
// team field.
func (s *TaskService) UpdateTask(ctx context.Context, actor *domain.User, id string, input TaskUpdateInput) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("task", nil)
		}
		return nil, apperrors.MapError(err)
	}

	var assigneeManagerID *string
	if actor.Role == domain.RoleManager && task.AssignedTo != nil {
		assignee, err := s.users.GetByID(ctx, *task.AssignedTo)
		if err != nil && err != pgx.ErrNoRows {
			return nil, apperrors.MapError(err)
		}
		if assignee != nil {
			assigneeManagerID = assignee.ManagerID
		}
	}

	decision := policy.UpdateRule(actor, task, assigneeManagerID)
	if !decision.Allowed {
		return nil, apperrors.NewForbidden("not authorized to update this task")
	}
	// All-or-nothing: a payload touching any disallowed field is rejected
	// before any change is applied.
	for _, field := range input.providedFields() {
		if !decision.Permits(field) {
			return nil, apperrors.NewForbidden("users can only update task status")
		}
	}

	oldStatus := task.Status
	oldAssignee := task.AssignedTo

	if input.Title != nil {
		task.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		task.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		task.Status = *input.Status
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if input.AssignedTo != nil {
		assignee, err := s.users.GetByID(ctx, *input.AssignedTo)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, apperrors.NewValidationError("assigned user not found", nil)
			}
			return nil, apperrors.MapError(err)
		}
		assignedTo := assignee.ID
		task.AssignedTo = &assignedTo
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, apperrors.MapError(err)
	}

	if task.Status != oldStatus {
		s.publishEvent(ctx, actor, events.Event{
			Type:     events.EventTaskStatusChanged,
			EntityID: task.ID,
			Payload: events.TaskStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: task.Status,
			},
		})
	}
	if input.AssignedTo != nil && !sameRef(oldAssignee, task.AssignedTo) {
		s.publishEvent(ctx, actor, events.Event{
			Type:     events.EventTaskAssigned,
			EntityID: task.ID,
			Payload: events.TaskAssignedPayload{
				OldAssignee: oldAssignee,
				NewAssignee: task.AssignedTo,
			},
		})
	}

	resolved, err := s.tasks.GetResolved(ctx, task.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return resolved, nil
}

// DeleteTask removes a task. Admin only; no ownership check beyond role.
func (s *TaskService) DeleteTask(ctx context.Context, actor *domain.User, id string) error {
	if !policy.CanDeleteTask(actor.Role) {
		return apperrors.NewForbidden("only admins can delete tasks")
	}
	if _, err := s.tasks.GetByID(ctx, id); err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("task", nil)
		}
		return apperrors.MapError(err)
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTaskDeleted,
		EntityID: id,
	})
	return nil
}

// CalendarTasks returns the actor-visible tasks with a due date inside the
// inclusive [start, end] window, ordered by due date ascending. Manager
// visibility here is assignee-only; the created-by branch from listings
// does not apply.
func (s *TaskService) CalendarTasks(ctx context.Context, actor *domain.User, start, end time.Time) ([]domain.Task, error) {
	var teamIDs []string
	if actor.Role == domain.RoleManager {
		ids, err := s.users.ListIDsByManager(ctx, actor.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		teamIDs = ids
	}

	filter := repository.TaskFilter{
		Scope:   policy.CalendarScope(actor, teamIDs),
		DueFrom: &start,
		DueTo:   &end,
		SortBy:  "dueDate",
		Order:   "asc",
		Limit:   calendarMaxResults,
	}
	items, err := s.tasks.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

func (s *TaskService) listScope(ctx context.Context, actor *domain.User) (policy.TaskScope, error) {
	var teamIDs []string
	if actor.Role == domain.RoleManager {
		ids, err := s.users.ListIDsByManager(ctx, actor.ID)
		if err != nil {
			return policy.TaskScope{}, apperrors.MapError(err)
		}
		teamIDs = ids
	}
	return policy.ListScope(actor, teamIDs), nil
}

func (s *TaskService) publishEvent(ctx context.Context, actor *domain.User, event events.Event) {
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

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
