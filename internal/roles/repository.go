package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/permissions"
	"github.com/helios-iam/helios-iam/internal/platform/db"
	"github.com/helios-iam/helios-iam/internal/shared"
)

const uniqueViolation = "23505"

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool  *pgxpool.Pool
	audit *audit.Writer
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, auditWriter *audit.Writer) *PGRepository {
	return &PGRepository{pool: pool, audit: auditWriter}
}

// WithTx runs fn inside a single transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, audit: r.audit})
	})
}

// ListRoles returns all roles newest first with derived link counts.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Summary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.description, r.is_system_role, r.created_at, r.updated_at,
		        COUNT(DISTINCT ur.user_id), COUNT(DISTINCT rp.permission_id)
		 FROM roles r
		 LEFT JOIN user_roles ur ON ur.role_id = r.id
		 LEFT JOIN role_permissions rp ON rp.role_id = r.id
		 GROUP BY r.id
		 ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.IsSystemRole,
			&s.CreatedAt, &s.UpdatedAt, &s.UserCount, &s.PermissionCount); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetRole fetches a role with its granted permissions and assigned users.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (*Detail, error) {
	var d Detail
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, is_system_role, created_at, updated_at
		 FROM roles WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Description, &d.IsSystemRole, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}

	permRows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.resource, p.action, p.description, p.created_at, p.updated_at
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1
		 ORDER BY p.resource, p.action`, id)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var p permissions.Permission
		if err := permRows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		d.Permissions = append(d.Permissions, p)
	}
	if err := permRows.Err(); err != nil {
		return nil, err
	}

	userRows, err := r.pool.Query(ctx,
		`SELECT u.id, u.email, TRIM(u.first_name || ' ' || u.last_name), u.status
		 FROM user_roles ur
		 JOIN users u ON u.id = ur.user_id
		 WHERE ur.role_id = $1
		 ORDER BY u.email`, id)
	if err != nil {
		return nil, err
	}
	defer userRows.Close()
	for userRows.Next() {
		var u AssignedUser
		if err := userRows.Scan(&u.ID, &u.Email, &u.Name, &u.Status); err != nil {
			return nil, err
		}
		d.Users = append(d.Users, u)
	}
	return &d, userRows.Err()
}

type txRepository struct {
	tx    pgx.Tx
	audit *audit.Writer
}

func (t *txRepository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx,
		`INSERT INTO roles (name, description, is_system_role)
		 VALUES ($1, $2, FALSE)
		 RETURNING id, name, description, is_system_role, created_at, updated_at`,
		name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, fmt.Errorf("role %q: %w", name, shared.ErrDuplicateName)
		}
		return Role{}, err
	}
	return role, nil
}

func (t *txRepository) GetRoleForUpdate(ctx context.Context, id int64) (*Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, description, is_system_role, created_at, updated_at
		 FROM roles WHERE id = $1 FOR UPDATE`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &role, nil
}

func (t *txRepository) RoleNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1 AND id <> $2)`,
		name, excludeID).Scan(&exists)
	return exists, err
}

func (t *txRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, name, description, is_system_role, created_at, updated_at`,
		id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, fmt.Errorf("role %q: %w", name, shared.ErrDuplicateName)
		}
		return Role{}, err
	}
	return role, nil
}

func (t *txRepository) CountAssignedUsers(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

func (t *txRepository) DeletePermissionLinks(ctx context.Context, roleID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) DeleteUserLinks(ctx context.Context, roleID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) DeleteRole(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	return err
}

func (t *txRepository) MissingPermissionIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT wanted.id
		 FROM UNNEST($1::bigint[]) AS wanted(id)
		 LEFT JOIN permissions p ON p.id = wanted.id
		 WHERE p.id IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (t *txRepository) InsertPermissionLinks(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id)
		 SELECT $1, UNNEST($2::bigint[])`, roleID, permissionIDs)
	return err
}

func (t *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return t.audit.Append(ctx, t.tx, entry)
}

var _ RepositoryPort = (*PGRepository)(nil)
