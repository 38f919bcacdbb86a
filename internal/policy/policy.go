// Package policy holds the access-control decisions for task and user
// records. Every function is a pure judgment over already-resolved data so
// the rules can be tested without a store. Role switches are exhaustive with
// a deny default: adding a role forces every decision point to be revisited.
package policy

import "github.com/spec-kit/task-service/internal/domain"

// TaskScope is the constraint a listing query must intersect with caller
// filters. When All is set no constraint applies. Otherwise a task matches
// when its assignee is in AssigneeIDs, or CreatedBy is set and matches the
// task's creator; the two branches are an OR.
type TaskScope struct {
	All         bool
	AssigneeIDs []string
	CreatedBy   *string
}

// ListScope returns the visibility constraint for task listings.
// teamIDs must be the ids of users whose manager is the actor; it is only
// consulted for manager actors.
func ListScope(actor *domain.User, teamIDs []string) TaskScope {
	switch actor.Role {
	case domain.RoleAdmin:
		return TaskScope{All: true}
	case domain.RoleManager:
		createdBy := actor.ID
		return TaskScope{
			AssigneeIDs: append(append([]string{}, teamIDs...), actor.ID),
			CreatedBy:   &createdBy,
		}
	case domain.RoleUser:
		return TaskScope{AssigneeIDs: []string{actor.ID}}
	default:
		return TaskScope{}
	}
}

// CalendarScope returns the visibility constraint for the calendar view.
// Unlike ListScope, managers see only tasks assigned to their team or
// themselves; the created-by branch does not apply here.
func CalendarScope(actor *domain.User, teamIDs []string) TaskScope {
	switch actor.Role {
	case domain.RoleAdmin:
		return TaskScope{All: true}
	case domain.RoleManager:
		return TaskScope{AssigneeIDs: append(append([]string{}, teamIDs...), actor.ID)}
	case domain.RoleUser:
		return TaskScope{AssigneeIDs: []string{actor.ID}}
	default:
		return TaskScope{}
	}
}

// CanViewTask decides a single-record read against the task's stored
// references.
func CanViewTask(actor *domain.User, task *domain.Task) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleManager:
		if task.CreatedBy == actor.ID {
			return true
		}
		if task.TeamID != nil && *task.TeamID == actor.ID {
			return true
		}
		return task.AssignedTo != nil && *task.AssignedTo == actor.ID
	case domain.RoleUser:
		return task.AssignedTo != nil && *task.AssignedTo == actor.ID
	default:
		return false
	}
}

// CanCreateTask reports whether the role may create tasks at all.
func CanCreateTask(role domain.Role) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleManager:
		return true
	default:
		return false
	}
}

// CanAssign decides whether the actor may assign a task to the given user.
// Managers may only assign to their direct reports or themselves; admins
// assign freely.
func CanAssign(actor *domain.User, assignee *domain.User) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleManager:
		if assignee.ID == actor.ID {
			return true
		}
		return assignee.ManagerID != nil && *assignee.ManagerID == actor.ID
	default:
		return false
	}
}

// ManagerOwnsTask is the single ownership predicate for manager mutations:
// the manager created the task, or currently manages its assignee.
// assigneeManagerID must be re-resolved from the assignee record at decision
// time, not read from the task's stored team field, which may be stale.
func ManagerOwnsTask(actorID string, task *domain.Task, assigneeManagerID *string) bool {
	if task.CreatedBy == actorID {
		return true
	}
	return assigneeManagerID != nil && *assigneeManagerID == actorID
}

// Field names the mutable task attributes an update payload may carry.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldStatus      Field = "status"
	FieldPriority    Field = "priority"
	FieldDueDate     Field = "dueDate"
	FieldAssignedTo  Field = "assignedTo"
)

// businessFields is the full mutable set; createdBy and team are derived at
// creation and never updatable through this policy.
var businessFields = []Field{
	FieldTitle, FieldDescription, FieldStatus,
	FieldPriority, FieldDueDate, FieldAssignedTo,
}

// UpdateDecision is the outcome of an update authorization check. When
// Allowed, only the named Fields may change; a payload touching anything
// else must be rejected in its entirety.
type UpdateDecision struct {
	Allowed bool
	Fields  []Field
}

// Permits reports whether the decision allows the given field to change.
func (d UpdateDecision) Permits(f Field) bool {
	for _, allowed := range d.Fields {
		if allowed == f {
			return true
		}
	}
	return false
}

// UpdateRule evaluates an update request against the existing task.
// assigneeManagerID is the freshly resolved manager of the task's current
// assignee (nil when unassigned or unmanaged); it is only consulted for
// manager actors.
func UpdateRule(actor *domain.User, task *domain.Task, assigneeManagerID *string) UpdateDecision {
	switch actor.Role {
	case domain.RoleAdmin:
		return UpdateDecision{Allowed: true, Fields: businessFields}
	case domain.RoleManager:
		return UpdateDecision{
			Allowed: ManagerOwnsTask(actor.ID, task, assigneeManagerID),
			Fields:  businessFields,
		}
	case domain.RoleUser:
		return UpdateDecision{
			Allowed: task.AssignedTo != nil && *task.AssignedTo == actor.ID,
			Fields:  []Field{FieldStatus},
		}
	default:
		return UpdateDecision{}
	}
}

// CanDeleteTask reports whether the role may delete tasks. No ownership
// check applies beyond the role.
func CanDeleteTask(role domain.Role) bool {
	return role == domain.RoleAdmin
}

// CanManageUsers reports whether the role may list, read, create, update or
// delete arbitrary user records.
func CanManageUsers(role domain.Role) bool {
	return role == domain.RoleAdmin
}

// CanListTeam reports whether the role may use the team-members view.
func CanListTeam(role domain.Role) bool {
	return role == domain.RoleManager
}

// CanListAssignable reports whether the role may use the assignable-users
// view.
func CanListAssignable(role domain.Role) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleManager:
		return true
	default:
		return false
	}
}
