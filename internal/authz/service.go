package authz

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Repository provides the read-only queries behind authorization checks.
type Repository interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	MissingRoles(ctx context.Context, names []string) ([]string, error)
}

// Observer receives authorization outcomes and cache results, typically
// backed by Prometheus counters. Implementations must be nil-safe no-ops
// when unset.
type Observer interface {
	ObserveDecision(outcome string)
	ObserveCacheLookup(result string)
}

// Service resolves effective permission sets. It performs no writes and is
// safe to call on every authorization check.
type Service struct {
	repo     Repository
	cache    *Cache
	observer Observer
	group    singleflight.Group
}

// NewService constructs a Service. cache and observer may be nil.
func NewService(repo Repository, cache *Cache, observer Observer) *Service {
	return &Service{repo: repo, cache: cache, observer: observer}
}

// EffectivePermissions returns the sorted, deduplicated permission names a
// user holds through roles. A user with no roles gets an empty set, not an
// error. Concurrent cache misses for the same user are collapsed.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if s.cache != nil {
		if perms, ok := s.cache.Get(ctx, userID); ok {
			s.observeCache("hit")
			return perms, nil
		}
		s.observeCache("miss")
	}
	result, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		perms, err := s.repo.EffectivePermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		perms = dedupeSorted(perms)
		if s.cache != nil {
			s.cache.Set(ctx, userID, perms)
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// HasPermission reports whether the user's effective set contains name.
func (s *Service) HasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}

// RequireSystemRoles verifies the given roles exist with the system flag
// set. Absence is a fatal startup precondition, so the caller should exit.
func (s *Service) RequireSystemRoles(ctx context.Context, names []string) error {
	missing, err := s.repo.MissingRoles(ctx, names)
	if err != nil {
		return fmt.Errorf("authz: verify system roles: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("authz: system roles missing: %v", missing)
	}
	return nil
}

func (s *Service) observeCache(result string) {
	if s.observer != nil {
		s.observer.ObserveCacheLookup(result)
	}
}

func dedupeSorted(perms []string) []string {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	result := make([]string, 0, len(set))
	for p := range set {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}
