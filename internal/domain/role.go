package domain

// Role is the resolved privilege of an external identity.
type Role int

const (
	RoleGuest Role = iota
	RoleUser
	RoleStaff
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleStaff:
		return "STAFF"
	case RoleOwner:
		return "OWNER"
	default:
		return "GUEST"
	}
}

// IsStaff reports whether the role carries staff capabilities. OWNER implies STAFF.
func (r Role) IsStaff() bool {
	return r >= RoleStaff
}

// IsOwner reports whether the role is the top tier.
func (r Role) IsOwner() bool {
	return r == RoleOwner
}
