package assignments

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/platform/db"
)

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

// ListRolesForUser returns the roles a user currently holds, ordered by name.
func (r *PGRepository) ListRolesForUser(ctx context.Context, userID int64) ([]HeldRole, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ro.id, ro.name, ro.description, ro.is_system_role
		 FROM user_roles ur
		 JOIN roles ro ON ro.id = ur.role_id
		 WHERE ur.user_id = $1
		 ORDER BY ro.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var held []HeldRole
	for rows.Next() {
		var role HeldRole
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole); err != nil {
			return nil, err
		}
		held = append(held, role)
	}
	return held, rows.Err()
}

type txRepository struct {
	tx    pgx.Tx
	audit *audit.Writer
}

func (t *txRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

func (t *txRepository) MissingRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT wanted.id
		 FROM UNNEST($1::bigint[]) AS wanted(id)
		 LEFT JOIN roles r ON r.id = wanted.id
		 WHERE r.id IS NULL`, ids)
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

func (t *txRepository) DeleteLinksForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) InsertLinks(ctx context.Context, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, UNNEST($2::bigint[])`, userID, roleIDs)
	return err
}

func (t *txRepository) DeleteLinksForRole(ctx context.Context, roleID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return t.audit.Append(ctx, t.tx, entry)
}

var _ RepositoryPort = (*PGRepository)(nil)
