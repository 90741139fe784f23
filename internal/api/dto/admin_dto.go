package dto

import (
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
)

// CreateAdminRequest payload for POST /admins.
type CreateAdminRequest struct {
	AdminID     int64  `json:"admin_id" validate:"required,gt=0"`
	DisplayName string `json:"display_name" validate:"max=128"`
}

// AdminResponse represents an admin.
type AdminResponse struct {
	AdminID     int64            `json:"admin_id"`
	DisplayName string           `json:"display_name"`
	Role        domain.AdminRole `json:"role"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewAdminResponse converts a domain admin.
func NewAdminResponse(a *domain.Admin) AdminResponse {
	return AdminResponse{
		AdminID:     a.AdminID,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		CreatedAt:   a.CreatedAt,
	}
}
