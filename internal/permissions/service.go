package permissions

import (
	"context"
	"fmt"
	"strings"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListPermissions(ctx context.Context) ([]Summary, error)
	GetPermission(ctx context.Context, id int64) (*Detail, error)
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	GetPermissionForUpdate(ctx context.Context, id int64) (*Permission, error)
	DeleteRoleLinks(ctx context.Context, permissionID int64) (int64, error)
	DeletePermission(ctx context.Context, id int64) (int64, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// Service owns the permission catalog.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a new permission. The name must be unique across the
// catalog; collisions surface as shared.ErrDuplicateName.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Permission, error) {
	resource := strings.TrimSpace(req.Resource)
	action := strings.TrimSpace(req.Action)
	if resource == "" || action == "" {
		return nil, fmt.Errorf("%w: resource and action required", shared.ErrValidation)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = resource + "." + action
	}

	var created Permission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.CreatePermission(ctx, Permission{
			Name:        name,
			Resource:    resource,
			Action:      action,
			Description: strings.TrimSpace(req.Description),
		})
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "permission.created", map[string]any{
			"permissionId": created.ID,
			"name":         created.Name,
		}))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// List returns the catalog ordered by (resource, action) ascending, each
// entry carrying the count of roles currently granting it.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.ListPermissions(ctx)
}

// Get fetches one permission with its granting roles.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	return s.repo.GetPermission(ctx, id)
}

// Delete removes a permission. Role-permission links referencing it are
// cascade-deleted in the same transaction so no link ever dangles.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPermissionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		unlinked, err := tx.DeleteRoleLinks(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.DeletePermission(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "permission.deleted", map[string]any{
			"permissionId":  id,
			"name":          existing.Name,
			"unlinkedRoles": unlinked,
		}))
	})
}

func auditEntry(ctx context.Context, action string, details map[string]any) audit.Entry {
	entry := audit.Entry{Action: action, Resource: "permissions", Details: details}
	if actor, ok := shared.ActorFromContext(ctx); ok && actor.UserID != 0 {
		id := actor.UserID
		entry.ActorID = &id
		entry.IP = actor.IP
		entry.UserAgent = actor.UserAgent
	}
	return entry
}
