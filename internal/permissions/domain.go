package permissions

import "time"

// Permission represents an atomic capability named resource.action.
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary annotates a permission with the number of roles granting it.
// The count is derived at read time, never stored.
type Summary struct {
	Permission
	RoleCount int `json:"roleCount"`
}

// GrantingRole identifies a role that currently grants a permission.
type GrantingRole struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Detail expands a permission with its full list of granting roles.
type Detail struct {
	Permission
	Roles []GrantingRole `json:"roles"`
}

// CreateRequest carries input for creating a permission. Name defaults to
// "resource.action" when omitted.
type CreateRequest struct {
	Name        string `json:"name" validate:"omitempty,max=100"`
	Resource    string `json:"resource" validate:"required,max=50"`
	Action      string `json:"action" validate:"required,max=50"`
	Description string `json:"description" validate:"omitempty,max=255"`
}
