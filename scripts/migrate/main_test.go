package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every column the repositories read must exist in the schema the migrator
// applies, or the service fails at runtime with "column does not exist".
func TestSchemaCoversRepositoryColumns(t *testing.T) {
	columns := map[string][]string{
		"users":            {"id", "email", "password_hash", "first_name", "last_name", "status", "email_verified", "created_at", "updated_at"},
		"roles":            {"id", "name", "description", "is_system_role", "created_at", "updated_at"},
		"permissions":      {"id", "name", "resource", "action", "description", "created_at", "updated_at"},
		"role_permissions": {"role_id", "permission_id", "created_at"},
		"user_roles":       {"user_id", "role_id", "created_at"},
		"audit_logs":       {"id", "actor_id", "action", "resource", "details", "ip", "user_agent", "created_at"},
	}

	for table, cols := range columns {
		ddl := tableDDL(t, table)
		for _, col := range cols {
			assert.Contains(t, ddl, col+" ", "%s table is missing column %q", table, col)
		}
	}
}

func tableDDL(t *testing.T, table string) string {
	t.Helper()
	for _, stmt := range statements {
		if strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			return stmt
		}
	}
	require.Failf(t, "missing table", "no CREATE TABLE statement for %q", table)
	return ""
}
