package assignments

import (
	"context"
	"fmt"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/shared"
)

// RepositoryPort defines data access methods for user-role links.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListRolesForUser(ctx context.Context, userID int64) ([]HeldRole, error)
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	MissingRoleIDs(ctx context.Context, ids []int64) ([]int64, error)
	DeleteLinksForUser(ctx context.Context, userID int64) (int64, error)
	InsertLinks(ctx context.Context, userID int64, roleIDs []int64) error
	DeleteLinksForRole(ctx context.Context, roleID int64) (int64, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// CacheInvalidator drops cached authorization decisions after a mutation.
type CacheInvalidator interface {
	Bump(ctx context.Context)
}

// Service owns the user-role ledger.
type Service struct {
	repo  RepositoryPort
	cache CacheInvalidator
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache CacheInvalidator) *Service {
	return &Service{repo: repo, cache: cache}
}

// AssignRoles replaces the user's role set with exactly the given ids.
// The user and every role must resolve, and the replacement is atomic: a
// failure leaves the original set intact.
func (s *Service) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	ids := dedupe(roleIDs)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
		}
		missing, err := tx.MissingRoleIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("roles %v: %w", missing, shared.ErrNotFound)
		}
		if _, err := tx.DeleteLinksForUser(ctx, userID); err != nil {
			return err
		}
		if err := tx.InsertLinks(ctx, userID, ids); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "user.roles_assigned", map[string]any{
			"userId":  userID,
			"roleIds": ids,
		}))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListRolesForUser returns the roles currently held, ordered by name.
// No roles is an empty list, not an error.
func (s *Service) ListRolesForUser(ctx context.Context, userID int64) ([]HeldRole, error) {
	return s.repo.ListRolesForUser(ctx, userID)
}

// RemoveAllForUser clears every role link for a user. This is the cascade
// hook the user-management collaborator calls when a user is deleted.
func (s *Service) RemoveAllForUser(ctx context.Context, userID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.DeleteLinksForUser(ctx, userID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return nil
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "user.roles_cleared", map[string]any{
			"userId":  userID,
			"removed": removed,
		}))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RemoveAllForRole clears every user link for a role. Role Store deletion
// blocks while links exist, so this is only reachable through external
// cleanup paths.
func (s *Service) RemoveAllForRole(ctx context.Context, roleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.DeleteLinksForRole(ctx, roleID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return nil
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "role.assignments_cleared", map[string]any{
			"roleId":  roleID,
			"removed": removed,
		}))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
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
	entry := audit.Entry{Action: action, Resource: "users", Details: details}
	if actor, ok := shared.ActorFromContext(ctx); ok && actor.UserID != 0 {
		id := actor.UserID
		entry.ActorID = &id
		entry.IP = actor.IP
		entry.UserAgent = actor.UserAgent
	}
	return entry
}
