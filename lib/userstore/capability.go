package userstore

// Capabilities gate the directory's HTTP surface. Every authorization
// decision goes through Can so the matrix lives in one place.
const (
	CapManageUsers     = "manage_users"
	CapRevealPassword  = "reveal_password"
	CapTriggerSync     = "trigger_sync"
	CapViewStock       = "view_stock"
	CapViewAppointment = "view_appointments"
)

var capabilities = map[string]map[string]bool{
	RoleSuperAdmin: {
		CapManageUsers:     true,
		CapRevealPassword:  true,
		CapTriggerSync:     true,
		CapViewStock:       true,
		CapViewAppointment: true,
	},
	RoleAdmin: {
		CapManageUsers:     true,
		CapTriggerSync:     true,
		CapViewStock:       true,
		CapViewAppointment: true,
	},
	RoleUser: {
		CapViewStock:       true,
		CapViewAppointment: true,
	},
}

func Can(role, capability string) bool {
	return capabilities[role][capability]
}
