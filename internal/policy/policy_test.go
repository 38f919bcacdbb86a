package policy

import (
	"testing"

	"github.com/spec-kit/task-service/internal/domain"
)

func strPtr(s string) *string { return &s }

func userWithRole(id string, role domain.Role) *domain.User {
	return &domain.User{ID: id, Role: role}
}

func TestListScope(t *testing.T) {
	admin := userWithRole("a1", domain.RoleAdmin)
	manager := userWithRole("m1", domain.RoleManager)
	regular := userWithRole("u1", domain.RoleUser)

	if scope := ListScope(admin, nil); !scope.All {
		t.Fatal("admin scope should be unconstrained")
	}

	scope := ListScope(manager, []string{"u1", "u2"})
	if scope.All {
		t.Fatal("manager scope must be constrained")
	}
	if len(scope.AssigneeIDs) != 3 {
		t.Fatalf("manager assignee branch = %v, want team plus self", scope.AssigneeIDs)
	}
	if scope.AssigneeIDs[2] != "m1" {
		t.Fatalf("manager must be in own assignee branch, got %v", scope.AssigneeIDs)
	}
	if scope.CreatedBy == nil || *scope.CreatedBy != "m1" {
		t.Fatal("manager scope must carry the created-by branch")
	}

	scope = ListScope(regular, nil)
	if scope.All || scope.CreatedBy != nil {
		t.Fatal("user scope must be assignee-only")
	}
	if len(scope.AssigneeIDs) != 1 || scope.AssigneeIDs[0] != "u1" {
		t.Fatalf("user scope = %v, want [u1]", scope.AssigneeIDs)
	}

	// A manager with an empty team still sees self-assigned and self-created.
	scope = ListScope(manager, nil)
	if len(scope.AssigneeIDs) != 1 || scope.AssigneeIDs[0] != "m1" {
		t.Fatalf("empty-team manager scope = %v, want [m1]", scope.AssigneeIDs)
	}
}

func TestCalendarScopeDropsCreatedByBranch(t *testing.T) {
	manager := userWithRole("m1", domain.RoleManager)

	scope := CalendarScope(manager, []string{"u1"})
	if scope.CreatedBy != nil {
		t.Fatal("calendar scope must not carry the created-by branch")
	}
	if len(scope.AssigneeIDs) != 2 {
		t.Fatalf("calendar assignees = %v, want team plus self", scope.AssigneeIDs)
	}

	if !CalendarScope(userWithRole("a1", domain.RoleAdmin), nil).All {
		t.Fatal("admin calendar scope should be unconstrained")
	}
}

func TestCanViewTask(t *testing.T) {
	task := &domain.Task{
		ID:         "t1",
		AssignedTo: strPtr("u1"),
		CreatedBy:  "m1",
		TeamID:     strPtr("m1"),
	}

	cases := []struct {
		name  string
		actor *domain.User
		task  *domain.Task
		want  bool
	}{
		{"admin sees all", userWithRole("a1", domain.RoleAdmin), task, true},
		{"creator manager", userWithRole("m1", domain.RoleManager), task, true},
		{"team manager", userWithRole("m1", domain.RoleManager), &domain.Task{TeamID: strPtr("m1")}, true},
		{"unrelated manager", userWithRole("m2", domain.RoleManager), task, false},
		{"manager assigned to own task", userWithRole("m2", domain.RoleManager), &domain.Task{CreatedBy: "m1", AssignedTo: strPtr("m2")}, true},
		{"assignee", userWithRole("u1", domain.RoleUser), task, true},
		{"non-assignee", userWithRole("u2", domain.RoleUser), task, false},
		{"user never sees unassigned", userWithRole("u1", domain.RoleUser), &domain.Task{CreatedBy: "u1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanViewTask(tc.actor, tc.task); got != tc.want {
				t.Fatalf("CanViewTask = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanCreateAndDelete(t *testing.T) {
	if !CanCreateTask(domain.RoleAdmin) || !CanCreateTask(domain.RoleManager) {
		t.Fatal("admins and managers create tasks")
	}
	if CanCreateTask(domain.RoleUser) {
		t.Fatal("users must not create tasks")
	}
	if !CanDeleteTask(domain.RoleAdmin) {
		t.Fatal("admins delete tasks")
	}
	if CanDeleteTask(domain.RoleManager) || CanDeleteTask(domain.RoleUser) {
		t.Fatal("only admins delete tasks")
	}
}

func TestCanAssign(t *testing.T) {
	admin := userWithRole("a1", domain.RoleAdmin)
	manager := userWithRole("m1", domain.RoleManager)

	report := &domain.User{ID: "u1", Role: domain.RoleUser, ManagerID: strPtr("m1")}
	outsider := &domain.User{ID: "u2", Role: domain.RoleUser, ManagerID: strPtr("m2")}
	unmanaged := &domain.User{ID: "u3", Role: domain.RoleUser}

	if !CanAssign(admin, outsider) {
		t.Fatal("admin assigns freely")
	}
	if !CanAssign(manager, report) {
		t.Fatal("manager assigns to direct report")
	}
	if !CanAssign(manager, manager) {
		t.Fatal("manager assigns to self")
	}
	if CanAssign(manager, outsider) {
		t.Fatal("manager must not assign outside the team")
	}
	if CanAssign(manager, unmanaged) {
		t.Fatal("manager must not assign to unmanaged users")
	}
	if CanAssign(userWithRole("u1", domain.RoleUser), report) {
		t.Fatal("users never assign")
	}
}

func TestManagerOwnsTask(t *testing.T) {
	created := &domain.Task{CreatedBy: "m1"}
	other := &domain.Task{CreatedBy: "m2", AssignedTo: strPtr("u1")}

	if !ManagerOwnsTask("m1", created, nil) {
		t.Fatal("creator owns the task")
	}
	if !ManagerOwnsTask("m1", other, strPtr("m1")) {
		t.Fatal("current manager of the assignee owns the task")
	}
	if ManagerOwnsTask("m1", other, strPtr("m2")) {
		t.Fatal("ownership must follow the assignee's current manager")
	}
	if ManagerOwnsTask("m1", other, nil) {
		t.Fatal("no ownership without creation or management link")
	}
}

func TestUpdateRule(t *testing.T) {
	task := &domain.Task{ID: "t1", CreatedBy: "m1", AssignedTo: strPtr("u1")}

	t.Run("admin updates all fields", func(t *testing.T) {
		d := UpdateRule(userWithRole("a1", domain.RoleAdmin), task, nil)
		if !d.Allowed {
			t.Fatal("admin update must be allowed")
		}
		for _, f := range []Field{FieldTitle, FieldDescription, FieldStatus, FieldPriority, FieldDueDate, FieldAssignedTo} {
			if !d.Permits(f) {
				t.Fatalf("admin should update %s", f)
			}
		}
	})

	t.Run("owning manager updates all fields", func(t *testing.T) {
		d := UpdateRule(userWithRole("m1", domain.RoleManager), task, nil)
		if !d.Allowed || !d.Permits(FieldAssignedTo) {
			t.Fatal("owning manager update should cover business fields")
		}
	})

	t.Run("non-owning manager denied", func(t *testing.T) {
		d := UpdateRule(userWithRole("m2", domain.RoleManager), task, strPtr("m1"))
		if d.Allowed {
			t.Fatal("manager without ownership must be denied")
		}
	})

	t.Run("assignee limited to status", func(t *testing.T) {
		d := UpdateRule(userWithRole("u1", domain.RoleUser), task, nil)
		if !d.Allowed {
			t.Fatal("assignee may update")
		}
		if !d.Permits(FieldStatus) {
			t.Fatal("assignee must be able to change status")
		}
		if d.Permits(FieldTitle) || d.Permits(FieldAssignedTo) || d.Permits(FieldPriority) {
			t.Fatal("assignee must not touch other fields")
		}
	})

	t.Run("non-assignee user denied", func(t *testing.T) {
		if d := UpdateRule(userWithRole("u2", domain.RoleUser), task, nil); d.Allowed {
			t.Fatal("non-assignee user must be denied")
		}
	})
}

func TestUserManagementChecks(t *testing.T) {
	if !CanManageUsers(domain.RoleAdmin) {
		t.Fatal("admins manage users")
	}
	if CanManageUsers(domain.RoleManager) || CanManageUsers(domain.RoleUser) {
		t.Fatal("only admins manage users")
	}
	if !CanListTeam(domain.RoleManager) || CanListTeam(domain.RoleAdmin) {
		t.Fatal("team view is a manager view")
	}
	if !CanListAssignable(domain.RoleAdmin) || !CanListAssignable(domain.RoleManager) {
		t.Fatal("admins and managers list assignable users")
	}
	if CanListAssignable(domain.RoleUser) {
		t.Fatal("users must not list assignable users")
	}
}
