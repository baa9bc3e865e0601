package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member read", role: RoleMember, action: ActionRead, allow: true},
		{name: "member write", role: RoleMember, action: ActionWrite, allow: true},
		{name: "member invite", role: RoleMember, action: ActionInvite, allow: true},
		{name: "member manage members", role: RoleMember, action: ActionManageMembers, allow: false},
		{name: "member delete project", role: RoleMember, action: ActionDeleteProject, allow: false},
		{name: "admin manage members", role: RoleAdmin, action: ActionManageMembers, allow: true},
		{name: "admin delete project", role: RoleAdmin, action: ActionDeleteProject, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Error("expected admin to normalize to RoleAdmin")
	}
	if Normalize("member") != RoleMember {
		t.Error("expected member to normalize to RoleMember")
	}
	if Normalize("owner") != RoleMember {
		t.Error("expected unknown role to normalize to RoleMember")
	}
}
