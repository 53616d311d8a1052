package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (*Detail, error)
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	GetUserForUpdate(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	DeleteRoleLinks(ctx context.Context, userID int64) (int64, error)
	DeleteUser(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// CacheInvalidator drops cached authorization decisions after a mutation.
type CacheInvalidator interface {
	Bump(ctx context.Context)
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	cache CacheInvalidator
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache CacheInvalidator) *Service {
	return &Service{repo: repo, cache: cache}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// Get fetches a user with the roles currently held.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	return s.repo.GetUser(ctx, id)
}

// Create registers a new active user with a bcrypt credential.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email required", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var created User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err = tx.CreateUser(ctx, User{
			Email:     email,
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			Status:    StatusActive,
		}, string(hash))
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "user.created", map[string]any{
			"userId": created.ID,
			"email":  created.Email,
		}))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update applies a partial update to the user's profile fields.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*User, error) {
	var updated User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.FirstName != nil {
			existing.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			existing.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.Status != nil {
			existing.Status = *req.Status
		}
		updated, err = tx.UpdateUser(ctx, *existing)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "user.updated", map[string]any{
			"userId": id,
		}))
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a user and clears their role links in the same
// transaction so no user-role link survives the row.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return err
		}
		removed, err := tx.DeleteRoleLinks(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(ctx, "user.deleted", map[string]any{
			"userId":       id,
			"email":        existing.Email,
			"removedRoles": removed,
		}))
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Bump(ctx)
	}
	return nil
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
