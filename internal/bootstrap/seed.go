package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/helios-iam/helios-iam/internal/platform/db"
)

// AdminAccount optionally provisions an initial account holding the
// Super Admin role. Zero value means no account is created.
type AdminAccount struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Seeder provisions the system roles, the permission catalog, and the
// default grants. Every statement is idempotent, so running it on each
// startup is safe.
type Seeder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSeeder builds Seeder instance.
func NewSeeder(pool *pgxpool.Pool, logger *slog.Logger) *Seeder {
	return &Seeder{pool: pool, logger: logger}
}

// Run applies the full bootstrap in one transaction.
func (s *Seeder) Run(ctx context.Context, admin AdminAccount) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.seedRoles(ctx, tx); err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}
		if err := s.seedPermissions(ctx, tx); err != nil {
			return fmt.Errorf("seed permissions: %w", err)
		}
		if err := s.seedGrants(ctx, tx); err != nil {
			return fmt.Errorf("seed grants: %w", err)
		}
		if admin.Email != "" {
			if err := s.seedAdmin(ctx, tx, admin); err != nil {
				return fmt.Errorf("seed admin account: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap complete",
		slog.Int("roles", len(SystemRoles())),
		slog.Int("permissions", len(CatalogPermissions())))
	return nil
}

func (s *Seeder) seedRoles(ctx context.Context, tx pgx.Tx) error {
	for _, role := range SystemRoles() {
		_, err := tx.Exec(ctx,
			`INSERT INTO roles (name, description, is_system_role)
			 VALUES ($1, $2, TRUE)
			 ON CONFLICT (name) DO NOTHING`,
			role.Name, role.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedPermissions(ctx context.Context, tx pgx.Tx) error {
	for _, perm := range CatalogPermissions() {
		_, err := tx.Exec(ctx,
			`INSERT INTO permissions (name, resource, action, description)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (name) DO NOTHING`,
			perm.Name, perm.Resource, perm.Action, DefaultDescription(perm))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedGrants(ctx context.Context, tx pgx.Tx) error {
	perms := CatalogPermissions()
	for _, role := range SystemRoleNames() {
		granted := GrantsFor(role, perms)
		if len(granted) == 0 {
			continue
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id)
			 SELECT r.id, p.id
			 FROM roles r
			 JOIN permissions p ON p.name = ANY($2)
			 WHERE r.name = $1
			 ON CONFLICT (role_id, permission_id) DO NOTHING`,
			role, granted)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedAdmin(ctx context.Context, tx pgx.Tx, admin AdminAccount) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	_, err = tx.Exec(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, status, email_verified)
		 VALUES ($1, $2, $3, $4, 'active', TRUE)
		 ON CONFLICT (email) DO NOTHING`,
		email, string(hash), admin.FirstName, admin.LastName)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT u.id, r.id
		 FROM users u, roles r
		 WHERE u.email = $1 AND r.name = $2
		 ON CONFLICT (user_id, role_id) DO NOTHING`,
		email, RoleSuperAdmin)
	return err
}
