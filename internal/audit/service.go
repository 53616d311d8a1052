package audit

import (
	"context"
	"fmt"

	"github.com/helios-iam/helios-iam/internal/shared"
)

// Repository provides read access to the stored log.
type Repository interface {
	CountEntries(ctx context.Context, actorID *int64) (int, error)
	ListEntries(ctx context.Context, actorID *int64, limit, offset int) ([]EntryWithActor, error)
}

// Result wraps one page of entries with paging metadata.
type Result struct {
	Entries []EntryWithActor  `json:"data"`
	Meta    shared.Pagination `json:"meta"`
}

// Service coordinates reads over the audit log.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Query returns one newest-first page of entries, optionally filtered by
// actor. Page and page size are normalized before use.
func (s *Service) Query(ctx context.Context, filter QueryFilter) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	total, err := s.repo.CountEntries(ctx, filter.ActorID)
	if err != nil {
		return Result{}, err
	}
	meta := shared.NewPagination(filter.Page, filter.PageSize, total)
	entries, err := s.repo.ListEntries(ctx, filter.ActorID, meta.PerPage, meta.Offset())
	if err != nil {
		return Result{}, err
	}
	return Result{Entries: entries, Meta: meta}, nil
}
