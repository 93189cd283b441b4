package models

import "time"

// Role is tenant-scoped; system roles are seeded at bootstrap and cannot be
// deleted by tenant admins.
type Role struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenantId"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description,omitempty"`
	IsSystemRole bool      `db:"is_system_role" json:"isSystemRole"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Permission is global (not tenant-scoped); its name follows the
// "<resource>:<action>" convention.
type Permission struct {
	ID                 string `db:"id" json:"id"`
	Name               string `db:"name" json:"name"`
	Resource           string `db:"resource" json:"resource"`
	Action             string `db:"action" json:"action"`
	IsSystemPermission bool   `db:"is_system_permission" json:"isSystemPermission"`
}

// UserRole assigns a role to a user within a tenant, optionally bounded by a
// validity window and a department.
type UserRole struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"userId"`
	RoleID     string     `db:"role_id" json:"roleId"`
	TenantID   string     `db:"tenant_id" json:"tenantId"`
	Department *string    `db:"department" json:"department,omitempty"`
	AssignedBy string     `db:"assigned_by" json:"assignedBy"`
	ValidFrom  *time.Time `db:"valid_from" json:"validFrom,omitempty"`
	ValidUntil *time.Time `db:"valid_until" json:"validUntil,omitempty"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// IsValid reports whether the assignment is in force at the given instant.
func (ur *UserRole) IsValid(now time.Time) bool {
	if !ur.Active {
		return false
	}
	if ur.ValidFrom != nil && now.Before(*ur.ValidFrom) {
		return false
	}
	if ur.ValidUntil != nil && !now.Before(*ur.ValidUntil) {
		return false
	}
	return true
}

// UserResourcePermission grants a user an action on one specific resource
// instance, supplementing role-based permissions.
type UserResourcePermission struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"userId"`
	TenantID   string    `db:"tenant_id" json:"tenantId"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID string    `db:"resource_id" json:"resourceId"`
	Action     string    `db:"action" json:"action"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Well-known role names seeded for every tenant.
const (
	RoleAdmin   = "ADMIN"
	RoleDoctor  = "DOCTOR"
	RoleNurse   = "NURSE"
	RolePatient = "PATIENT"
)

// AccessibleResources is the result of a bulk resource enumeration. AllowAll
// means the user holds a type-wide permission and the id list is
// intentionally empty.
type AccessibleResources struct {
	AllowAll    bool     `json:"allowAll"`
	ResourceIDs []string `json:"resourceIds"`
}
