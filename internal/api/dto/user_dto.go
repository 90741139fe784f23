package dto

import (
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
)

// UserResponse represents a requester.
type UserResponse struct {
	UserID       int64     `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	ContactPhone string    `json:"contact_phone"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUserResponse converts a domain user.
func NewUserResponse(u *domain.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		UserID:       u.UserID,
		DisplayName:  u.DisplayName,
		ContactPhone: u.ContactPhone,
		CreatedAt:    u.CreatedAt,
	}
}
