package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-iam/helios-iam/internal/assignments"
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

// ListUsers returns all users ordered by id.
func (r *PGRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, first_name, last_name, status, email_verified, created_at, updated_at
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Status,
			&u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// GetUser fetches a user with their held roles.
func (r *PGRepository) GetUser(ctx context.Context, id int64) (*Detail, error) {
	var d Detail
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, status, email_verified, created_at, updated_at
		 FROM users WHERE id = $1`, id).
		Scan(&d.ID, &d.Email, &d.FirstName, &d.LastName, &d.Status,
			&d.EmailVerified, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT ro.id, ro.name, ro.description, ro.is_system_role
		 FROM user_roles ur
		 JOIN roles ro ON ro.id = ur.role_id
		 WHERE ur.user_id = $1
		 ORDER BY ro.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var role assignments.HeldRole
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole); err != nil {
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

func (t *txRepository) CreateUser(ctx context.Context, user User, passwordHash string) (User, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, status, email_verified)
		 VALUES ($1, $2, $3, $4, $5, FALSE)
		 RETURNING id, email_verified, created_at, updated_at`,
		user.Email, passwordHash, user.FirstName, user.LastName, user.Status).
		Scan(&user.ID, &user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, fmt.Errorf("user %q: %w", user.Email, shared.ErrDuplicateName)
		}
		return User{}, err
	}
	return user, nil
}

func (t *txRepository) GetUserForUpdate(ctx context.Context, id int64) (*User, error) {
	var u User
	err := t.tx.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, status, email_verified, created_at, updated_at
		 FROM users WHERE id = $1 FOR UPDATE`, id).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Status,
			&u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (t *txRepository) UpdateUser(ctx context.Context, user User) (User, error) {
	err := t.tx.QueryRow(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, status = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		user.ID, user.FirstName, user.LastName, user.Status).
		Scan(&user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (t *txRepository) DeleteRoleLinks(ctx context.Context, userID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) DeleteUser(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (t *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return t.audit.Append(ctx, t.tx, entry)
}

var _ RepositoryPort = (*PGRepository)(nil)
