package rbac

// Role constants
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Permission constants
const (
	PermScheduleAction  = "schedule_action"
	PermUpdateAction    = "update_action"
	PermCancelAction    = "cancel_action"
	PermApproveAction   = "approve_action"
	PermManageUsers     = "manage_users"
	PermManageTemplates = "manage_templates"
	PermManageAPIKeys   = "manage_api_keys"
	PermViewActions     = "view_actions"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleOwner: {
		PermScheduleAction, PermUpdateAction, PermCancelAction, PermApproveAction,
		PermManageUsers, PermManageTemplates, PermManageAPIKeys, PermViewActions,
	},
	RoleAdmin: {
		PermScheduleAction, PermUpdateAction, PermCancelAction,
		PermManageUsers, PermManageTemplates, PermViewActions,
		// Admin CANNOT: PermApproveAction, PermManageAPIKeys
	},
	RoleViewer: {
		PermViewActions,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
