package bootstrap

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RoleDefinition describes one system role provisioned at startup.
type RoleDefinition struct {
	Name        string
	Description string
}

// PermissionDefinition describes one catalog permission provisioned at
// startup. An empty Description falls back to a humanized default.
type PermissionDefinition struct {
	Name        string
	Resource    string
	Action      string
	Description string
}

// Role names referenced elsewhere in the service.
const (
	RoleSuperAdmin = "Super Admin"
	RoleAdmin      = "Admin"
	RoleManager    = "Manager"
	RoleUser       = "User"
	RoleGuest      = "Guest"
)

// SystemRoles returns the five roles that must exist before the service
// accepts traffic.
func SystemRoles() []RoleDefinition {
	return []RoleDefinition{
		{Name: RoleSuperAdmin, Description: "Full system access"},
		{Name: RoleAdmin, Description: "Manage users and settings"},
		{Name: RoleManager, Description: "View and limited edit permissions"},
		{Name: RoleUser, Description: "Standard user access"},
		{Name: RoleGuest, Description: "Read-only access"},
	}
}

// CatalogPermissions returns the fourteen permissions provisioned at
// startup.
func CatalogPermissions() []PermissionDefinition {
	return []PermissionDefinition{
		{Name: "users.create", Resource: "users", Action: "create", Description: "Create users"},
		{Name: "users.read", Resource: "users", Action: "read", Description: "View users"},
		{Name: "users.update", Resource: "users", Action: "update", Description: "Update users"},
		{Name: "users.delete", Resource: "users", Action: "delete", Description: "Delete users"},
		{Name: "roles.create", Resource: "roles", Action: "create", Description: "Create roles"},
		{Name: "roles.read", Resource: "roles", Action: "read", Description: "View roles"},
		{Name: "roles.update", Resource: "roles", Action: "update", Description: "Update roles"},
		{Name: "roles.delete", Resource: "roles", Action: "delete", Description: "Delete roles"},
		{Name: "roles.manage", Resource: "roles", Action: "manage", Description: "Manage roles"},
		{Name: "permissions.read", Resource: "permissions", Action: "read", Description: "View permissions"},
		{Name: "permissions.manage", Resource: "permissions", Action: "manage", Description: "Manage permissions"},
		{Name: "settings.read", Resource: "settings", Action: "read", Description: "View settings"},
		{Name: "settings.update", Resource: "settings", Action: "update", Description: "Update settings"},
		{Name: "audit.read", Resource: "audit", Action: "read", Description: "View audit logs"},
	}
}

// SystemRoleNames returns just the names, in definition order.
func SystemRoleNames() []string {
	defs := SystemRoles()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

var titleCaser = cases.Title(language.English)

// DefaultDescription humanizes a resource/action pair for definitions
// that omit an explicit description.
func DefaultDescription(def PermissionDefinition) string {
	if def.Description != "" {
		return def.Description
	}
	return titleCaser.String(def.Action) + " " + strings.ToLower(def.Resource)
}

// GrantsFor returns the permission names a system role receives at
// bootstrap. Unknown roles get nothing.
func GrantsFor(role string, perms []PermissionDefinition) []string {
	var names []string
	for _, p := range perms {
		switch role {
		case RoleSuperAdmin:
			names = append(names, p.Name)
		case RoleAdmin:
			if strings.HasPrefix(p.Name, "users.") || p.Name == "roles.read" || p.Name == "audit.read" {
				names = append(names, p.Name)
			}
		case RoleManager:
			if p.Action == "read" {
				names = append(names, p.Name)
			}
		}
	}
	return names
}
