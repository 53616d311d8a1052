package assignments

// HeldRole is the projection of a role a user currently holds.
type HeldRole struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsSystemRole bool   `json:"isSystemRole"`
}

// AssignRolesRequest carries the complete desired role set for a user.
// An empty list removes every role.
type AssignRolesRequest struct {
	RoleIDs []int64 `json:"roleIds" validate:"dive,gt=0"`
}
