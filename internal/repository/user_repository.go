package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/task-service/internal/domain"
)

// UserFilter defines query params for the admin user listing.
type UserFilter struct {
	Role   *domain.Role
	Search *string
	Limit  int
	Offset int
}

// UserRepository defines persistence access for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetResolved(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	Count(ctx context.Context, filter UserFilter) (int, error)
	ListByManager(ctx context.Context, managerID string) ([]domain.User, error)
	ListIDsByManager(ctx context.Context, managerID string) ([]string, error)
	ListManagers(ctx context.Context) ([]domain.User, error)
	ListAssignable(ctx context.Context, managerID *string) ([]domain.User, error)
	DetachManager(ctx context.Context, managerID string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO users (id, name, email, password_hash, role, manager_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.ManagerID,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, email=$2, password_hash=$3, role=$4, manager_id=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.ManagerID,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const userSelect = `
        SELECT id, name, email, password_hash, role, manager_id, created_at, updated_at
        FROM users`

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, userSelect+` WHERE id=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, userSelect+` WHERE email=$1`, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.ManagerID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetResolved fetches a user with its manager reference populated.
func (r *userRepository) GetResolved(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT u.id, u.name, u.email, u.password_hash, u.role, u.manager_id, u.created_at, u.updated_at,
               m.name, m.email
        FROM users u
        LEFT JOIN users m ON m.id = u.manager_id
        WHERE u.id=$1`
	var user domain.User
	var managerName, managerEmail *string
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.ManagerID,
		&user.CreatedAt,
		&user.UpdatedAt,
		&managerName,
		&managerEmail,
	); err != nil {
		return nil, err
	}
	if user.ManagerID != nil && managerName != nil {
		user.Manager = &domain.UserRef{ID: *user.ManagerID, Name: *managerName, Email: *managerEmail}
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	clauses, args := buildUserClauses(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		userSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *userRepository) Count(ctx context.Context, filter UserFilter) (int, error) {
	clauses, args := buildUserClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE %s`, strings.Join(clauses, " AND "))

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *userRepository) ListByManager(ctx context.Context, managerID string) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, userSelect+` WHERE manager_id=$1 ORDER BY created_at DESC`, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *userRepository) ListIDsByManager(ctx context.Context, managerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE manager_id=$1`, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *userRepository) ListManagers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, userSelect+` WHERE role=$1 ORDER BY name ASC`, domain.RoleManager)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListAssignable returns the pool of users tasks may be assigned to. With a
// managerID it is the manager's direct reports plus the manager itself;
// without one (admin) every user qualifies.
func (r *userRepository) ListAssignable(ctx context.Context, managerID *string) ([]domain.User, error) {
	query := userSelect + ` ORDER BY name ASC`
	args := []any{}
	if managerID != nil {
		query = userSelect + ` WHERE manager_id=$1 OR id=$1 ORDER BY name ASC`
		args = append(args, *managerID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// DetachManager clears the manager reference on every user reporting to the
// given manager. Run before deleting a manager account.
func (r *userRepository) DetachManager(ctx context.Context, managerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET manager_id=NULL, updated_at=NOW() WHERE manager_id=$1`, managerID)
	return err
}

func buildUserClauses(filter UserFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.Search)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) LIKE %s OR LOWER(email) LIKE %s)", placeholder, placeholder))
	}

	return clauses, args
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.PasswordHash,
			&user.Role,
			&user.ManagerID,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
