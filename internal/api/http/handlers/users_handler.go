package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-service/internal/api/dto"
	"github.com/spec-kit/task-service/internal/auth"
	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/service"
	apperrors "github.com/spec-kit/task-service/pkg/util"
)

// UsersHandler manages user administration endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// List GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	input := service.UserListInput{
		Page:  parseInt(c.Query("page"), 1),
		Limit: parseInt(c.Query("limit"), 10),
	}
	if v := c.Query("role"); v != "" {
		role := domain.Role(v)
		input.Role = &role
	}
	if v := c.Query("search"); v != "" {
		input.Search = &v
	}

	page, err := h.users.ListUsers(c.UserContext(), actor, input)
	if err != nil {
		return err
	}

	items := make([]dto.UserResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, userResponse(&page.Items[i]))
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

// Get GET /users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	detail, err := h.users.GetUser(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	resp := dto.UserDetailResponse{
		UserResponse: userResponse(detail.User),
		TaskStats: dto.TaskStatsBreakdown{
			Pending:    detail.TaskStats[domain.TaskStatusPending],
			InProgress: detail.TaskStats[domain.TaskStatusInProgress],
			Completed:  detail.TaskStats[domain.TaskStatusCompleted],
		},
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Create POST /users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	input := service.UserCreateInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      domain.Role(req.Role),
		ManagerID: req.Manager,
	}
	user, err := h.users.CreateUser(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

// Update PATCH /users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	input := service.UserUpdateInput{
		Name:      req.Name,
		Email:     req.Email,
		ManagerID: req.Manager,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		input.Role = &role
	}

	user, err := h.users.UpdateUser(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// Delete DELETE /users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.users.DeleteUser(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// Team GET /users/team.
func (h *UsersHandler) Team(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	members, err := h.users.TeamMembers(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponses(members)})
}

// Assignable GET /users/assignable.
func (h *UsersHandler) Assignable(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	users, err := h.users.AssignableUsers(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponses(users)})
}

// Managers GET /users/managers.
func (h *UsersHandler) Managers(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	managers, err := h.users.Managers(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponses(managers)})
}

func userResponse(user *domain.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if user.Manager != nil {
		resp.Manager = &dto.UserRefResponse{ID: user.Manager.ID, Name: user.Manager.Name, Email: user.Manager.Email}
	} else if user.ManagerID != nil {
		resp.Manager = &dto.UserRefResponse{ID: *user.ManagerID}
	}
	return resp
}

func userResponses(users []domain.User) []dto.UserResponse {
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return items
}
