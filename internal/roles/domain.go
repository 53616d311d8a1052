package roles

import (
	"fmt"
	"time"

	"github.com/helios-iam/helios-iam/internal/permissions"
	"github.com/helios-iam/helios-iam/internal/shared"
)

// Role represents a named, reusable bundle of permissions.
type Role struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"isSystemRole"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary annotates a role with derived link counts for listings.
type Summary struct {
	Role
	UserCount       int `json:"userCount"`
	PermissionCount int `json:"permissionCount"`
}

// AssignedUser is the projection of a user holding a role.
type AssignedUser struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Detail expands a role with its granted permissions and assigned users.
type Detail struct {
	Role
	Permissions []permissions.Permission `json:"permissions"`
	Users       []AssignedUser           `json:"users"`
}

// CreateRequest carries input for creating a role.
type CreateRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=255"`
}

// UpdateRequest carries a partial role update. Nil fields keep their
// current value.
type UpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=255"`
}

// AssignPermissionsRequest carries the complete desired permission set.
// An empty list clears all grants.
type AssignPermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"dive,gt=0"`
}

// AssignedUsersError blocks role deletion while user-role links exist.
// The count is preserved for caller display.
type AssignedUsersError struct {
	Count int
}

func (e *AssignedUsersError) Error() string {
	return fmt.Sprintf("cannot delete role: %d user(s) assigned", e.Count)
}

// Unwrap makes the error match shared.ErrConflict.
func (e *AssignedUsersError) Unwrap() error {
	return shared.ErrConflict
}
