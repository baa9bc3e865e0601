// Package rbac defines workspace roles and what each may do.
package rbac

type Role string
type Action string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead          Action = "read"
	ActionWrite         Action = "write"
	ActionInvite        Action = "invite"
	ActionManageMembers Action = "manage_members"
	ActionDeleteProject Action = "delete_project"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionWrite || action == ActionInvite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
