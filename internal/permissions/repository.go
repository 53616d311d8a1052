package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-iam/helios-iam/internal/audit"
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

// ListPermissions returns the catalog ordered by (resource, action) with
// derived role counts.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Summary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.resource, p.action, p.description, p.created_at, p.updated_at,
		        COUNT(rp.role_id)
		 FROM permissions p
		 LEFT JOIN role_permissions rp ON rp.permission_id = p.id
		 GROUP BY p.id
		 ORDER BY p.resource ASC, p.action ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Resource, &s.Action, &s.Description,
			&s.CreatedAt, &s.UpdatedAt, &s.RoleCount); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetPermission fetches a permission with its granting roles.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (*Detail, error) {
	var d Detail
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, resource, action, description, created_at, updated_at
		 FROM permissions WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Resource, &d.Action, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("permission %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name
		 FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id
		 WHERE rp.permission_id = $1
		 ORDER BY r.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var role GrantingRole
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		d.Roles = append(d.Roles, role)
	}
	return &d, rows.Err()
}

type txRepository struct {
	tx    pgx.Tx
	audit *audit.Writer
}

func (t *txRepository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO permissions (name, resource, action, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		p.Name, p.Resource, p.Action, p.Description).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Permission{}, fmt.Errorf("permission %q: %w", p.Name, shared.ErrDuplicateName)
		}
		return Permission{}, err
	}
	return p, nil
}

func (t *txRepository) GetPermissionForUpdate(ctx context.Context, id int64) (*Permission, error) {
	var p Permission
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, resource, action, description, created_at, updated_at
		 FROM permissions WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("permission %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (t *txRepository) DeleteRoleLinks(ctx context.Context, permissionID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, permissionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) DeletePermission(ctx context.Context, id int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return t.audit.Append(ctx, t.tx, entry)
}

var _ RepositoryPort = (*PGRepository)(nil)
