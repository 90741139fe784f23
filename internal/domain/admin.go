package domain

import "time"

// AdminRole enumerates staff privilege tiers.
type AdminRole string

const (
	AdminRoleStaff AdminRole = "STAFF"
	AdminRoleOwner AdminRole = "OWNER"
)

// Valid reports whether r is a known role.
func (r AdminRole) Valid() bool {
	return r == AdminRoleStaff || r == AdminRoleOwner
}

// Admin models a support agent or an owner.
type Admin struct {
	AdminID     int64
	DisplayName string
	Role        AdminRole
	CreatedAt   time.Time
}

// IsOwner reports whether the admin holds the OWNER tier.
func (a *Admin) IsOwner() bool {
	return a != nil && a.Role == AdminRoleOwner
}
