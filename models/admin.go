package models

import (
	"time"
)

// Admin is a console operator known to the demo backend
type Admin struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Email             string     `gorm:"unique;not null" json:"email"`
	Password          string     `gorm:"not null" json:"-"` // Stored hashed
	Role              string     `gorm:"default:'admin'" json:"role"`
	CreatedAt         time.Time  `json:"created_at"`
	FailedAttempts    int        `gorm:"default:0" json:"-"`
	LastFailedAttempt *time.Time `json:"-"`
	LockedUntil       *time.Time `json:"-"`
}

// Identity strips the admin down to what auth responses expose
func (a Admin) Identity() *Identity {
	return &Identity{ID: a.ID, Email: a.Email, Role: a.Role}
}
