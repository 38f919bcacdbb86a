package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/domain"
)

type mapCache struct {
	entries map[string][]byte
	sets    int
}

func (c *mapCache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	raw, ok := c.entries[key]
	return raw, ok
}

func (c *mapCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = value
	c.sets++
}

func TestStatsOverview(t *testing.T) {
	users, tasks, taskSvc, _ := taskFixture()
	ctx := context.Background()

	due := time.Now().Add(-time.Hour)
	tasks.tasks = append(tasks.tasks,
		&domain.Task{ID: "t1", AssignedTo: strPtr("u1"), CreatedBy: "m1", Status: domain.TaskStatusPending, DueDate: &due},
		&domain.Task{ID: "t2", AssignedTo: strPtr("u1"), CreatedBy: "m1", Status: domain.TaskStatusInProgress},
		&domain.Task{ID: "t3", AssignedTo: strPtr("u1"), CreatedBy: "m1", Status: domain.TaskStatusCompleted, DueDate: &due},
		&domain.Task{ID: "t4", AssignedTo: strPtr("u3"), CreatedBy: "m2", Status: domain.TaskStatusPending},
	)

	cache := &mapCache{}
	svc := NewStatsService(tasks, taskSvc, cache, time.Minute, zap.NewNop())

	overview, err := svc.Overview(ctx, getUser(t, users, "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if overview.Pending != 1 || overview.InProgress != 1 || overview.Completed != 1 {
		t.Fatalf("counts = %+v", overview)
	}
	if overview.Total != 3 {
		t.Fatalf("total = %d, want 3", overview.Total)
	}
	// t1 is past due and not completed; t3 is completed and never overdue.
	if overview.Overdue != 1 {
		t.Fatalf("overdue = %d, want 1", overview.Overdue)
	}
	if cache.sets != 1 {
		t.Fatalf("cache writes = %d, want 1", cache.sets)
	}

	// Second call is served from cache even after the store changes.
	tasks.tasks = append(tasks.tasks,
		&domain.Task{ID: "t5", AssignedTo: strPtr("u1"), CreatedBy: "m1", Status: domain.TaskStatusPending})
	cached, err := svc.Overview(ctx, getUser(t, users, "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if cached.Total != 3 {
		t.Fatalf("cached total = %d, want 3", cached.Total)
	}

	// A different actor gets their own entry.
	admin, err := svc.Overview(ctx, getUser(t, users, "a1"))
	if err != nil {
		t.Fatal(err)
	}
	if admin.Total != 5 {
		t.Fatalf("admin total = %d, want 5", admin.Total)
	}
}

func TestStatsOverviewWithoutCache(t *testing.T) {
	users, tasks, taskSvc, _ := taskFixture()
	ctx := context.Background()

	tasks.tasks = append(tasks.tasks,
		&domain.Task{ID: "t1", AssignedTo: strPtr("u1"), CreatedBy: "m1", Status: domain.TaskStatusPending})

	svc := NewStatsService(tasks, taskSvc, nil, 0, zap.NewNop())
	overview, err := svc.Overview(ctx, getUser(t, users, "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if overview.Total != 1 {
		t.Fatalf("total = %d, want 1", overview.Total)
	}
}
