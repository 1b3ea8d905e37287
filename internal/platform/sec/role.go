// Copyright (c) 2026 FieldServe. All rights reserved.

package sec

// # User Roles

// Role represents the authorization level granted to a principal.
//
// The set is fixed and read-only to the auth subsystem; role assignment is
// handled by the user-management flow.
type Role string

const (
	// Unrestricted system access
	RoleAdmin Role = "ADMIN"

	// Manages tickets, offers, and staff within an assigned zone
	RoleZoneManager Role = "ZONE_MANAGER"

	// Second-level support with cross-zone read access
	RoleExpertHelpdesk Role = "EXPERT_HELPDESK"

	// Standard back-office user scoped to a zone
	RoleZoneUser Role = "ZONE_USER"

	// Field technician executing scheduled activities
	RoleServicePerson Role = "SERVICE_PERSON"

	// Customer-side account, always bound to a customer record
	RoleExternalUser Role = "EXTERNAL_USER"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r Role) AtLeast(target Role) bool {
	return r.level() >= target.level()
}

// IsValid reports whether the role is part of the fixed enumeration.
func (r Role) IsValid() bool {
	return r.level() > 0
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r Role) level() int {

	// Linear scale (10-60) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 60
	case RoleZoneManager:
		return 50
	case RoleExpertHelpdesk:
		return 40
	case RoleZoneUser:
		return 30
	case RoleServicePerson:
		return 20
	case RoleExternalUser:
		return 10
	default:
		return 0
	}
}
