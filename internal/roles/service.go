package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListRoles(ctx context.Context) ([]Summary, error)
	GetRole(ctx context.Context, id int64) (*Detail, error)
}

// TxRepository exposes the mutations that must share one transaction.
// GetRoleForUpdate locks the row so the existence, system-flag and
// user-count checks are evaluated against the snapshot being mutated.
type TxRepository interface {
	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRoleForUpdate(ctx context.Context, id int64) (*Role, error)
	RoleNameExists(ctx context.Context, name string, excludeID int64) (bool, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	CountAssignedUsers(ctx context.Context, roleID int64) (int, error)
	DeletePermissionLinks(ctx context.Context, roleID int64) (int64, error)
	DeleteUserLinks(ctx context.Context, roleID int64) (int64, error)
	DeleteRole(ctx context.Context, id int64) error
	MissingPermissionIDs(ctx context.Context, ids []int64) ([]int64, error)
	InsertPermissionLinks(ctx context.Context, roleID int64, permissionIDs []int64) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// CacheInvalidator drops cached authorization decisions after a mutation
// that changes some user's effective permission set.
type CacheInvalidator interface {
	Bump(ctx context.Context)
}

// Service handles role business logic.
type Service struct {
	repo  RepositoryPort
	cache CacheInvalidator
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache CacheInvalidator) *Service {
	return &Service{repo: repo, cache: cache}
}

// Create inserts a new non-system role with an empty permission set.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}

	var created Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.CreateRole(ctx, name, strings.TrimSpace(req.Description))
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "role.created", map[string]any{
			"roleId": created.ID,
			"name":   created.Name,
		}))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// List returns all roles newest first with derived link counts.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.ListRoles(ctx)
}

// Get fetches a role with its granted permissions and assigned users.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	return s.repo.GetRole(ctx, id)
}

// Update renames or re-describes a role. System roles never change, and a
// rename collides only when a different role already owns the name.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Role, error) {
	var updated Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetRoleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.IsSystemRole {
			return fmt.Errorf("%w: cannot modify system roles", shared.ErrForbidden)
		}

		name := existing.Name
		if req.Name != nil {
			name = strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: role name required", shared.ErrValidation)
			}
		}
		description := existing.Description
		if req.Description != nil {
			description = strings.TrimSpace(*req.Description)
		}

		if name != existing.Name {
			taken, err := tx.RoleNameExists(ctx, name, id)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("role %q: %w", name, shared.ErrDuplicateName)
			}
		}

		updated, err = tx.UpdateRole(ctx, id, name, description)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "role.updated", map[string]any{
			"roleId": id,
			"name":   name,
		}))
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a role and cascades its permission links. System roles
// and roles still held by users are never deleted.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetRoleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.IsSystemRole {
			return fmt.Errorf("%w: cannot delete system roles", shared.ErrForbidden)
		}
		assigned, err := tx.CountAssignedUsers(ctx, id)
		if err != nil {
			return err
		}
		if assigned > 0 {
			return &AssignedUsersError{Count: assigned}
		}
		if _, err := tx.DeletePermissionLinks(ctx, id); err != nil {
			return err
		}
		// Defensive: the count above is zero, but the links must be gone
		// before the row so nothing ever points at a deleted role.
		if _, err := tx.DeleteUserLinks(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteRole(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "role.deleted", map[string]any{
			"roleId": id,
			"name":   existing.Name,
		}))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// AssignPermissions replaces the role's permission set with exactly the
// given ids. The whole replacement is atomic, and every id must resolve to
// a catalog row or the call fails without touching the original set.
func (s *Service) AssignPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (*Detail, error) {
	ids := dedupe(permissionIDs)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRoleForUpdate(ctx, roleID); err != nil {
			return err
		}
		missing, err := tx.MissingPermissionIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("permissions %v: %w", missing, shared.ErrNotFound)
		}
		if _, err := tx.DeletePermissionLinks(ctx, roleID); err != nil {
			return err
		}
		if err := tx.InsertPermissionLinks(ctx, roleID, ids); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "role.permissions_assigned", map[string]any{
			"roleId":        roleID,
			"permissionIds": ids,
		}))
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.GetRole(ctx, roleID)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Bump(ctx)
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func auditEntry(ctx context.Context, action string, details map[string]any) audit.Entry {
	entry := audit.Entry{Action: action, Resource: "roles", Details: details}
	if actor, ok := shared.ActorFromContext(ctx); ok && actor.UserID != 0 {
		id := actor.UserID
		entry.ActorID = &id
		entry.IP = actor.IP
		entry.UserAgent = actor.UserAgent
	}
	return entry
}
