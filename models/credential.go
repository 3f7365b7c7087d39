package models

import "time"

// Identity is the authenticated admin as returned by the backend
type Identity struct {
	ID       any    `json:"id,omitempty"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Credential pairs the bearer token with the identity it belongs to.
// User is non-nil iff Token is non-empty.
type Credential struct {
	Token string    `json:"-"`
	User  *Identity `json:"user,omitempty"`
}

// Present reports whether the credential holds a token
func (c Credential) Present() bool {
	return c.Token != ""
}

// TokenSlot is the single durable row holding the bearer token
type TokenSlot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"unique;not null" json:"name"`
	Token     string    `gorm:"not null" json:"-"`
	UserEmail string    `json:"user_email"`
	UserJSON  string    `json:"-"` // mirrored identity, optional
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginRequest is the POST /api/auth/login body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse covers both login and verify responses
type AuthResponse struct {
	Success bool      `json:"success"`
	Token   string    `json:"token,omitempty"`
	Admin   *Identity `json:"admin,omitempty"`
	Message string    `json:"message,omitempty"`
}
