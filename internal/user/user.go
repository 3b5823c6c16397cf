package user

import (
	"time"
)

// Role is a user's coarse authorization level. Roles expand to permission
// sets; request handlers check permissions, never roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Permission names an operation class a role may perform.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionManage Permission = "manage"
)

// rolePermissions maps each role to its granted permission set.
var rolePermissions = map[Role]map[Permission]bool{
	RoleUser: {
		PermissionRead:  true,
		PermissionWrite: true,
	},
	RoleAdmin: {
		PermissionRead:   true,
		PermissionWrite:  true,
		PermissionManage: true,
	},
}

// Permissions returns the permission set granted to a role. Unknown roles
// get nothing.
func Permissions(role Role) map[Permission]bool {
	perms := make(map[Permission]bool, len(rolePermissions[role]))
	for p := range rolePermissions[role] {
		perms[p] = true
	}
	return perms
}

// User is an application user, created lazily on first authenticated
// request.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPermission reports whether the user's role grants the permission.
func (u *User) HasPermission(perm Permission) bool {
	return rolePermissions[u.Role][perm]
}
