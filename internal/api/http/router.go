package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-service/internal/api/http/handlers"
	"github.com/spec-kit/task-service/internal/auth"
	"github.com/spec-kit/task-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tasks          *handlers.TasksHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	api := app.Group("/api")

	api.Get("/health/live", cfg.Health.Live)
	api.Get("/health/ready", cfg.Health.Ready)

	authGroup := api.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)
	authGroup.Post("/password", cfg.AuthMiddleware.Handle, cfg.Auth.ChangePassword)

	tasks := api.Group("/tasks", cfg.AuthMiddleware.Handle)
	// Static segments before the :id wildcard.
	tasks.Get("/calendar", cfg.Tasks.Calendar)
	tasks.Get("/stats", cfg.Tasks.Stats)
	tasks.Get("/", cfg.Tasks.List)
	tasks.Post("/", auth.RequireRole(domain.RoleAdmin, domain.RoleManager), cfg.Tasks.Create)
	tasks.Get("/:id", cfg.Tasks.Get)
	tasks.Patch("/:id", cfg.Tasks.Update)
	tasks.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Tasks.Delete)

	users := api.Group("/users", cfg.AuthMiddleware.Handle)
	users.Get("/team", auth.RequireRole(domain.RoleManager), cfg.Users.Team)
	users.Get("/assignable", auth.RequireRole(domain.RoleAdmin, domain.RoleManager), cfg.Users.Assignable)
	users.Get("/managers", auth.RequireRole(domain.RoleAdmin), cfg.Users.Managers)
	users.Get("/", auth.RequireRole(domain.RoleAdmin), cfg.Users.List)
	users.Post("/", auth.RequireRole(domain.RoleAdmin), cfg.Users.Create)
	users.Get("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.Get)
	users.Patch("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.Update)
	users.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.Delete)
}
