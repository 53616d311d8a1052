package users

import (
	"strings"
	"time"

	"github.com/helios-iam/helios-iam/internal/assignments"
)

// Statuses a user account moves through.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// User represents a managed account. Authentication happens upstream; this
// service only stores the identity and its role links.
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Status        string    `json:"status"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FullName joins first and last name for display.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Detail expands a user with the roles currently held.
type Detail struct {
	User
	Roles []assignments.HeldRole `json:"roles"`
}

// CreateRequest carries input for creating a user.
type CreateRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
}

// UpdateRequest carries a partial user update.
type UpdateRequest struct {
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,min=1,max=100"`
	Status    *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive suspended"`
}
