package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/events"
	"github.com/spec-kit/task-service/internal/policy"
	"github.com/spec-kit/task-service/internal/repository"
)

// stubUserRepo is an in-memory UserRepository for service tests.
type stubUserRepo struct {
	users []*domain.User
	seq   int
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	return &stubUserRepo{users: users}
}

func (r *stubUserRepo) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		r.seq++
		user.ID = fmt.Sprintf("user-%d", r.seq)
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.users = append(r.users, &clone)
	return nil
}

func (r *stubUserRepo) Update(ctx context.Context, user *domain.User) error {
	for i, existing := range r.users {
		if existing.ID == user.ID {
			clone := *user
			clone.UpdatedAt = time.Now()
			r.users[i] = &clone
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *stubUserRepo) Delete(ctx context.Context, id string) error {
	for i, existing := range r.users {
		if existing.ID == id {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *stubUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	for _, existing := range r.users {
		if existing.ID == id {
			clone := *existing
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, existing := range r.users {
		if existing.Email == email {
			clone := *existing
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubUserRepo) GetResolved(ctx context.Context, id string) (*domain.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.ManagerID != nil {
		if mgr, err := r.GetByID(ctx, *user.ManagerID); err == nil {
			ref := mgr.Ref()
			user.Manager = &ref
		}
	}
	return user, nil
}

func (r *stubUserRepo) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	matched := r.match(filter)
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if filter.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (r *stubUserRepo) Count(ctx context.Context, filter repository.UserFilter) (int, error) {
	return len(r.match(filter)), nil
}

func (r *stubUserRepo) match(filter repository.UserFilter) []domain.User {
	var matched []domain.User
	for _, u := range r.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Search != nil {
			needle := strings.ToLower(strings.TrimSpace(*filter.Search))
			if needle != "" &&
				!strings.Contains(strings.ToLower(u.Name), needle) &&
				!strings.Contains(strings.ToLower(u.Email), needle) {
				continue
			}
		}
		matched = append(matched, *u)
	}
	return matched
}

func (r *stubUserRepo) ListByManager(ctx context.Context, managerID string) ([]domain.User, error) {
	var out []domain.User
	for _, u := range r.users {
		if u.ManagerID != nil && *u.ManagerID == managerID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *stubUserRepo) ListIDsByManager(ctx context.Context, managerID string) ([]string, error) {
	members, _ := r.ListByManager(ctx, managerID)
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *stubUserRepo) ListManagers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range r.users {
		if u.Role == domain.RoleManager {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *stubUserRepo) ListAssignable(ctx context.Context, managerID *string) ([]domain.User, error) {
	if managerID == nil {
		out := make([]domain.User, 0, len(r.users))
		for _, u := range r.users {
			out = append(out, *u)
		}
		return out, nil
	}
	var out []domain.User
	for _, u := range r.users {
		if u.ID == *managerID || (u.ManagerID != nil && *u.ManagerID == *managerID) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *stubUserRepo) DetachManager(ctx context.Context, managerID string) error {
	for _, u := range r.users {
		if u.ManagerID != nil && *u.ManagerID == managerID {
			u.ManagerID = nil
		}
	}
	return nil
}

// stubTaskRepo is an in-memory TaskRepository for service tests. It resolves
// user references through an optional stubUserRepo.
type stubTaskRepo struct {
	tasks []*domain.Task
	users *stubUserRepo
	seq   int
}

func newStubTaskRepo(users *stubUserRepo, tasks ...*domain.Task) *stubTaskRepo {
	return &stubTaskRepo{tasks: tasks, users: users}
}

func (r *stubTaskRepo) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		r.seq++
		task.ID = fmt.Sprintf("task-%d", r.seq)
	}
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	clone := *task
	r.tasks = append(r.tasks, &clone)
	return nil
}

func (r *stubTaskRepo) Update(ctx context.Context, task *domain.Task) error {
	for i, existing := range r.tasks {
		if existing.ID == task.ID {
			clone := *task
			clone.UpdatedAt = time.Now()
			r.tasks[i] = &clone
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *stubTaskRepo) Delete(ctx context.Context, id string) error {
	for i, existing := range r.tasks {
		if existing.ID == id {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *stubTaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	for _, existing := range r.tasks {
		if existing.ID == id {
			clone := *existing
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubTaskRepo) GetResolved(ctx context.Context, id string) (*domain.Task, error) {
	task, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.resolve(task)
	return task, nil
}

func (r *stubTaskRepo) resolve(task *domain.Task) {
	if r.users == nil {
		return
	}
	if task.AssignedTo != nil {
		if u, err := r.users.GetByID(context.Background(), *task.AssignedTo); err == nil {
			ref := u.Ref()
			task.Assignee = &ref
		}
	}
	if u, err := r.users.GetByID(context.Background(), task.CreatedBy); err == nil {
		ref := u.Ref()
		task.Creator = &ref
	}
}

func (r *stubTaskRepo) ListWithFilter(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	matched := r.match(filter)

	if filter.SortBy == "dueDate" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i].DueDate, matched[j].DueDate
			if a == nil || b == nil {
				return b == nil && a != nil
			}
			if strings.EqualFold(filter.Order, "asc") {
				return a.Before(*b)
			}
			return b.Before(*a)
		})
	}

	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[start:end]
	for i := range page {
		r.resolve(&page[i])
	}
	return page, nil
}

func (r *stubTaskRepo) CountWithFilter(ctx context.Context, filter repository.TaskFilter) (int, error) {
	return len(r.match(filter)), nil
}

func (r *stubTaskRepo) CountByStatus(ctx context.Context, scope policy.TaskScope) (map[domain.TaskStatus]int, error) {
	counts := make(map[domain.TaskStatus]int)
	for _, t := range r.tasks {
		if inScope(t, scope) {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (r *stubTaskRepo) CountOverdue(ctx context.Context, scope policy.TaskScope, now time.Time) (int, error) {
	total := 0
	for _, t := range r.tasks {
		if inScope(t, scope) && t.IsOverdue(now) {
			total++
		}
	}
	return total, nil
}

func (r *stubTaskRepo) DetachAssignee(ctx context.Context, userID string) error {
	for _, t := range r.tasks {
		if t.AssignedTo != nil && *t.AssignedTo == userID {
			t.AssignedTo = nil
		}
	}
	return nil
}

func (r *stubTaskRepo) match(filter repository.TaskFilter) []domain.Task {
	var matched []domain.Task
	for _, t := range r.tasks {
		if !inScope(t, filter.Scope) {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		if filter.Search != nil {
			needle := strings.ToLower(strings.TrimSpace(*filter.Search))
			if needle != "" &&
				!strings.Contains(strings.ToLower(t.Title), needle) &&
				!strings.Contains(strings.ToLower(t.Description), needle) {
				continue
			}
		}
		if filter.DueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*filter.DueFrom)) {
			continue
		}
		if filter.DueTo != nil && (t.DueDate == nil || t.DueDate.After(*filter.DueTo)) {
			continue
		}
		matched = append(matched, *t)
	}
	return matched
}

func inScope(task *domain.Task, scope policy.TaskScope) bool {
	if scope.All {
		return true
	}
	if task.AssignedTo != nil {
		for _, id := range scope.AssigneeIDs {
			if id == *task.AssignedTo {
				return true
			}
		}
	}
	return scope.CreatedBy != nil && task.CreatedBy == *scope.CreatedBy
}

// recordingDispatcher collects published events.
type recordingDispatcher struct {
	published []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) typesSeen() []events.EventType {
	out := make([]events.EventType, 0, len(d.published))
	for _, e := range d.published {
		out = append(out, e.Type)
	}
	return out
}
