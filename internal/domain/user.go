package domain

import "time"

// User is an end-user who opens tickets. UserID is the chat platform identity.
type User struct {
	UserID       int64
	DisplayName  string
	ContactPhone string
	CreatedAt    time.Time
}
