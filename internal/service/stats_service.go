package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/repository"
	apperrors "github.com/spec-kit/task-service/pkg/util"
)

// StatsCache is the small cache surface the stats service needs; the Redis
// wrapper satisfies it, and tests substitute a map.
type StatsCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// StatsOverview is the dashboard payload: task counts by status plus the
// overdue count, all under the actor's listing scope.
type StatsOverview struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
	Total      int `json:"total"`
}

// StatsService computes dashboard numbers with a short-TTL cache per actor.
// Counts may lag writes by up to the TTL; the dashboard tolerates that.
type StatsService struct {
	tasks    repository.TaskRepository
	taskSvc  *TaskService
	cache    StatsCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewStatsService constructs the service. cache may be nil, in which case
// every call recomputes.
func NewStatsService(tasks repository.TaskRepository, taskSvc *TaskService, cache StatsCache, ttl time.Duration, logger *zap.Logger) *StatsService {
	return &StatsService{
		tasks:    tasks,
		taskSvc:  taskSvc,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger,
	}
}

// Overview returns the actor's task statistics.
func (s *StatsService) Overview(ctx context.Context, actor *domain.User) (*StatsOverview, error) {
	key := "stats:overview:" + actor.ID

	if s.cache != nil {
		if raw, ok := s.cache.GetBytes(ctx, key); ok {
			var cached StatsOverview
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
			s.logger.Warn("discarding malformed stats cache entry", zap.String("key", key))
		}
	}

	scope, err := s.taskSvc.listScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	counts, err := s.tasks.CountByStatus(ctx, scope)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	overdue, err := s.tasks.CountOverdue(ctx, scope, time.Now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	overview := &StatsOverview{
		Pending:    counts[domain.TaskStatusPending],
		InProgress: counts[domain.TaskStatusInProgress],
		Completed:  counts[domain.TaskStatusCompleted],
		Overdue:    overdue,
	}
	overview.Total = overview.Pending + overview.InProgress + overview.Completed

	if s.cache != nil && s.cacheTTL > 0 {
		if raw, err := json.Marshal(overview); err == nil {
			s.cache.SetBytes(ctx, key, raw, s.cacheTTL)
		}
	}
	return overview, nil
}
