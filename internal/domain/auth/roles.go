package auth

// Permission names checked by the HTTP layer.
const (
	PermSummaryRead    = "production_summary:read"
	PermSummaryWrite   = "production_summary:write"
	PermSummaryApprove = "production_summary:approve"
	PermGroupRead      = "production_group:read"
	PermGroupWrite     = "production_group:write"
	PermOrderRead      = "order:read"
	PermOrderWrite     = "order:write"
)

// Role is a user's job function.
type Role string

const (
	RoleSuperAdmin      Role = "super_admin"
	RoleUnitHead        Role = "unit_head"
	RoleUnitManager     Role = "unit_manager"
	RoleSales           Role = "sales"
	RoleProduction      Role = "production"
	RolePackingDispatch Role = "packing_dispatch"
	RoleAccounts        Role = "accounts"
)

var allPermissions = []string{
	PermSummaryRead, PermSummaryWrite, PermSummaryApprove,
	PermGroupRead, PermGroupWrite,
	PermOrderRead, PermOrderWrite,
}

var rolePermissions = map[Role][]string{
	RoleSuperAdmin:  allPermissions,
	RoleUnitHead:    allPermissions,
	RoleUnitManager: allPermissions,
	RoleSales: {
		PermOrderRead, PermOrderWrite,
		PermSummaryRead,
	},
	RoleProduction: {
		PermSummaryRead, PermSummaryWrite,
		PermGroupRead,
	},
	RolePackingDispatch: {
		PermSummaryRead,
		PermGroupRead,
	},
	RoleAccounts: {
		PermOrderRead,
	},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permissions returns a copy of the role's permissions.
func (r Role) Permissions() []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
