package domain

import "time"

// Role enumerates the access tiers for accounts.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User is the domain model for accounts. ManagerID, when set, must reference
// a user whose role is exactly manager.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	ManagerID    *string
	Manager      *UserRef
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRef carries the identity fields exposed when a user reference is
// resolved on a related record.
type UserRef struct {
	ID    string
	Name  string
	Email string
}

// Ref returns the resolvable identity of the user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
