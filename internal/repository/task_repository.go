package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/policy"
)

// TaskFilter captures listing parameters. Scope is the role constraint the
// policy produced; the remaining fields are caller filters ANDed onto it.
type TaskFilter struct {
	Scope    policy.TaskScope
	Status   *domain.TaskStatus
	Priority *domain.TaskPriority
	Search   *string
	DueFrom  *time.Time
	DueTo    *time.Time
	SortBy   string
	Order    string
	Limit    int
	Offset   int
}

// TaskRepository encapsulates task persistence.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	GetResolved(ctx context.Context, id string) (*domain.Task, error)
	ListWithFilter(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
	CountWithFilter(ctx context.Context, filter TaskFilter) (int, error)
	CountByStatus(ctx context.Context, scope policy.TaskScope) (map[domain.TaskStatus]int, error)
	CountOverdue(ctx context.Context, scope policy.TaskScope, now time.Time) (int, error)
	DetachAssignee(ctx context.Context, userID string) error
}

// sortColumns whitelists caller-supplied sort keys; ORDER BY is
// interpolated, so anything outside this map falls back to creation time.
var sortColumns = map[string]string{
	"createdAt": "t.created_at",
	"updatedAt": "t.updated_at",
	"dueDate":   "t.due_date",
	"status":    "t.status",
	"priority":  "t.priority",
	"title":     "t.title",
}

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository instantiates the repository.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO tasks (id, title, description, status, priority, due_date, assigned_to, created_by, team_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.AssignedTo,
		task.CreatedBy,
		task.TeamID,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	const query = `
        UPDATE tasks SET title=$1, description=$2, status=$3, priority=$4, due_date=$5,
            assigned_to=$6, team_id=$7, updated_at=NOW()
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.AssignedTo,
		task.TeamID,
		task.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	const query = `
        SELECT id, title, description, status, priority, due_date, assigned_to, created_by, team_id, created_at, updated_at
        FROM tasks WHERE id=$1`
	var task domain.Task
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Priority,
		&task.DueDate,
		&task.AssignedTo,
		&task.CreatedBy,
		&task.TeamID,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &task, nil
}

const resolvedSelect = `
        SELECT t.id, t.title, t.description, t.status, t.priority, t.due_date,
               t.assigned_to, t.created_by, t.team_id, t.created_at, t.updated_at,
               a.name, a.email, c.name, c.email
        FROM tasks t
        LEFT JOIN users a ON a.id = t.assigned_to
        LEFT JOIN users c ON c.id = t.created_by`

func (r *taskRepository) GetResolved(ctx context.Context, id string) (*domain.Task, error) {
	rows, err := r.pool.Query(ctx, resolvedSelect+` WHERE t.id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks, err := scanResolvedTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tasks[0], nil
}

func (r *taskRepository) ListWithFilter(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	clauses, args := buildTaskClauses(filter)

	sortCol, ok := sortColumns[filter.SortBy]
	if !ok {
		sortCol = "t.created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		direction = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		resolvedSelect, strings.Join(clauses, " AND "), sortCol, direction, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResolvedTasks(rows)
}

func (r *taskRepository) CountWithFilter(ctx context.Context, filter TaskFilter) (int, error) {
	clauses, args := buildTaskClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tasks t WHERE %s`, strings.Join(clauses, " AND "))

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *taskRepository) CountByStatus(ctx context.Context, scope policy.TaskScope) (map[domain.TaskStatus]int, error) {
	clauses, args := buildTaskClauses(TaskFilter{Scope: scope})
	query := fmt.Sprintf(`SELECT t.status, COUNT(*) FROM tasks t WHERE %s GROUP BY t.status`,
		strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *taskRepository) CountOverdue(ctx context.Context, scope policy.TaskScope, now time.Time) (int, error) {
	clauses, args := buildTaskClauses(TaskFilter{Scope: scope})
	args = append(args, now)
	clauses = append(clauses,
		fmt.Sprintf("t.due_date IS NOT NULL AND t.due_date < $%d", len(args)),
		fmt.Sprintf("t.status <> '%s'", domain.TaskStatusCompleted))

	query := fmt.Sprintf(`SELECT COUNT(*) FROM tasks t WHERE %s`, strings.Join(clauses, " AND "))
	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// DetachAssignee clears the assignee reference on every task assigned to the
// given user. Run before deleting the user; see the user service for the
// cascade ordering.
func (r *taskRepository) DetachAssignee(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tasks SET assigned_to=NULL, updated_at=NOW() WHERE assigned_to=$1`, userID)
	return err
}

func buildTaskClauses(filter TaskFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.Scope.All {
		scopeParts := []string{}
		if len(filter.Scope.AssigneeIDs) > 0 {
			args = append(args, filter.Scope.AssigneeIDs)
			scopeParts = append(scopeParts, fmt.Sprintf("t.assigned_to = ANY($%d)", len(args)))
		}
		if filter.Scope.CreatedBy != nil {
			args = append(args, *filter.Scope.CreatedBy)
			scopeParts = append(scopeParts, fmt.Sprintf("t.created_by = $%d", len(args)))
		}
		if len(scopeParts) == 0 {
			clauses = append(clauses, "1=0")
		} else {
			clauses = append(clauses, "("+strings.Join(scopeParts, " OR ")+")")
		}
	}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("t.priority = $%d", len(args)))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.Search)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(t.title) LIKE %s OR LOWER(t.description) LIKE %s)", placeholder, placeholder))
	}
	if filter.DueFrom != nil {
		args = append(args, *filter.DueFrom)
		clauses = append(clauses, fmt.Sprintf("t.due_date >= $%d", len(args)))
	}
	if filter.DueTo != nil {
		args = append(args, *filter.DueTo)
		clauses = append(clauses, fmt.Sprintf("t.due_date <= $%d", len(args)))
	}

	return clauses, args
}

func scanResolvedTasks(rows pgx.Rows) ([]domain.Task, error) {
	var result []domain.Task
	for rows.Next() {
		var task domain.Task
		var assigneeName, assigneeEmail, creatorName, creatorEmail *string
		if err := rows.Scan(
			&task.ID,
			&task.Title,
			&task.Description,
			&task.Status,
			&task.Priority,
			&task.DueDate,
			&task.AssignedTo,
			&task.CreatedBy,
			&task.TeamID,
			&task.CreatedAt,
			&task.UpdatedAt,
			&assigneeName,
			&assigneeEmail,
			&creatorName,
			&creatorEmail,
		); err != nil {
			return nil, err
		}
		if task.AssignedTo != nil && assigneeName != nil {
			task.Assignee = &domain.UserRef{ID: *task.AssignedTo, Name: *assigneeName, Email: *assigneeEmail}
		}
		if creatorName != nil {
			task.Creator = &domain.UserRef{ID: task.CreatedBy, Name: *creatorName, Email: *creatorEmail}
		}
		result = append(result, task)
	}
	return result, rows.Err()
}
