package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-service/internal/api/dto"
	"github.com/spec-kit/task-service/internal/auth"
	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/service"
	apperrors "github.com/spec-kit/task-service/pkg/util"
)

// TasksHandler manages task endpoints.
type TasksHandler struct {
	tasks *service.TaskService
	stats *service.StatsService
}

// NewTasksHandler constructs handler.
func NewTasksHandler(taskService *service.TaskService, statsService *service.StatsService) *TasksHandler {
	return &TasksHandler{tasks: taskService, stats: statsService}
}

// List GET /tasks.
func (h *TasksHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	input := service.TaskListInput{
		Page:   parseInt(c.Query("page"), 1),
		Limit:  parseInt(c.Query("limit"), 10),
		SortBy: c.Query("sortBy"),
		Order:  c.Query("order"),
	}
	if v := c.Query("status"); v != "" {
		status := domain.TaskStatus(v)
		input.Status = &status
	}
	if v := c.Query("priority"); v != "" {
		priority := domain.TaskPriority(v)
		input.Priority = &priority
	}
	if v := c.Query("search"); v != "" {
		input.Search = &v
	}

	page, err := h.tasks.ListTasks(c.UserContext(), actor, input)
	if err != nil {
		return err
	}

	now := time.Now()
	items := make([]dto.TaskResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, taskResponse(&page.Items[i], now))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"pagination": dto.PaginationResponse{
			Page:  page.Page,
			Limit: page.Limit,
			Total: page.Total,
			Pages: page.Pages,
		},
	})
}

// Get GET /tasks/:id.
func (h *TasksHandler) Get(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	task, err := h.tasks.GetTask(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": taskResponse(task, time.Now())})
}

// Create POST /tasks.
func (h *TasksHandler) Create(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	input := service.TaskCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.TaskStatus(req.Status),
		Priority:    domain.TaskPriority(req.Priority),
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	}
	task, err := h.tasks.CreateTask(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": taskResponse(task, time.Now())})
}

// Update PATCH /tasks/:id.
func (h *TasksHandler) Update(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	input := service.TaskUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		input.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TaskPriority(*req.Priority)
		input.Priority = &priority
	}

	task, err := h.tasks.UpdateTask(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": taskResponse(task, time.Now())})
}

// Delete DELETE /tasks/:id.
func (h *TasksHandler) Delete(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.tasks.DeleteTask(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// Calendar GET /tasks/calendar?start=...&end=...
func (h *TasksHandler) Calendar(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	start, err := parseDateParam(c.Query("start"), false)
	if err != nil {
		return apperrors.NewValidationError("start and end dates are required", nil)
	}
	end, err := parseDateParam(c.Query("end"), true)
	if err != nil {
		return apperrors.NewValidationError("start and end dates are required", nil)
	}

	tasks, err := h.tasks.CalendarTasks(c.UserContext(), actor, start, end)
	if err != nil {
		return err
	}

	events := make([]dto.CalendarEventResponse, 0, len(tasks))
	for i := range tasks {
		events = append(events, calendarEvent(&tasks[i]))
	}
	return c.JSON(fiber.Map{"data": events})
}

// Stats GET /tasks/stats.
func (h *TasksHandler) Stats(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	overview, err := h.stats.Overview(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TaskStatsResponse{
		Pending:    overview.Pending,
		InProgress: overview.InProgress,
		Completed:  overview.Completed,
		Overdue:    overview.Overdue,
		Total:      overview.Total,
	}})
}

// parseDateParam accepts RFC3339 or plain dates; a plain end date covers the
// whole day so the window stays inclusive.
func parseDateParam(val string, endOfDay bool) (time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}, fiber.ErrBadRequest
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func taskResponse(task *domain.Task, now time.Time) dto.TaskResponse {
	return dto.TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
		DueDate:     task.DueDate,
		AssignedTo:  userRef(task.Assignee, task.AssignedTo),
		CreatedBy:   userRef(task.Creator, &task.CreatedBy),
		TeamID:      task.TeamID,
		IsOverdue:   task.IsOverdue(now),
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

func calendarEvent(task *domain.Task) dto.CalendarEventResponse {
	event := dto.CalendarEventResponse{
		ID:       task.ID,
		Title:    task.Title,
		Status:   task.Status,
		Priority: task.Priority,
		Assignee: userRef(task.Assignee, task.AssignedTo),
	}
	if task.DueDate != nil {
		event.Start = *task.DueDate
		event.End = *task.DueDate
	}
	return event
}

// userRef prefers the resolved reference; a bare id shows up when the join
// target is gone.
func userRef(ref *domain.UserRef, id *string) *dto.UserRefResponse {
	if ref != nil {
		return &dto.UserRefResponse{ID: ref.ID, Name: ref.Name, Email: ref.Email}
	}
	if id != nil && *id != "" {
		return &dto.UserRefResponse{ID: *id}
	}
	return nil
}
