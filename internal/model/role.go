package model

// Role is the closed set of account roles on the platform.
type Role string

const (
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
	RoleAdmin     Role = "admin"
	RoleSeller    Role = "seller"
	RoleHeadAdmin Role = "head_admin"
)

// Capability names an operation that is gated by role.
type Capability string

const (
	CapTakeTests      Capability = "tests:take"
	CapMonitorTests   Capability = "tests:monitor"
	CapSweepSessions  Capability = "sessions:sweep"
	CapManageEconomy  Capability = "economy:manage"
	CapManageAccounts Capability = "accounts:manage"
)

var roleCapabilities = map[Role][]Capability{
	RoleStudent:   {CapTakeTests},
	RoleTeacher:   {CapMonitorTests},
	RoleSeller:    {CapManageEconomy},
	RoleAdmin:     {CapMonitorTests, CapSweepSessions, CapManageEconomy, CapManageAccounts},
	RoleHeadAdmin: {CapMonitorTests, CapSweepSessions, CapManageEconomy, CapManageAccounts},
}

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, bool) {
	r := Role(raw)
	_, ok := roleCapabilities[r]
	return r, ok
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}
