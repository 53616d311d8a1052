package assignments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/shared"
)

type mockRepository struct {
	users      map[int64]bool
	validRoles map[int64]string
	links      map[int64][]int64 // userID -> roleIDs

	audits []audit.Entry
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:      make(map[int64]bool),
		validRoles: make(map[int64]string),
		links:      make(map[int64][]int64),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64][]int64, len(m.links))
	for k, v := range m.links {
		snapshot[k] = append([]int64(nil), v...)
	}
	audits := len(m.audits)
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.links = snapshot
		m.audits = m.audits[:audits]
		return err
	}
	return nil
}

func (m *mockRepository) ListRolesForUser(ctx context.Context, userID int64) ([]HeldRole, error) {
	var held []HeldRole
	for _, roleID := range m.links[userID] {
		held = append(held, HeldRole{ID: roleID, Name: m.validRoles[roleID]})
	}
	return held, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (tx *mockTxRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	return tx.mock.users[userID], nil
}

func (tx *mockTxRepo) MissingRoleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if _, ok := tx.mock.validRoles[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (tx *mockTxRepo) DeleteLinksForUser(ctx context.Context, userID int64) (int64, error) {
	n := int64(len(tx.mock.links[userID]))
	delete(tx.mock.links, userID)
	return n, nil
}

func (tx *mockTxRepo) InsertLinks(ctx context.Context, userID int64, roleIDs []int64) error {
	tx.mock.links[userID] = append([]int64(nil), roleIDs...)
	return nil
}

func (tx *mockTxRepo) DeleteLinksForRole(ctx context.Context, roleID int64) (int64, error) {
	var removed int64
	for userID, roleIDs := range tx.mock.links {
		kept := roleIDs[:0]
		for _, id := range roleIDs {
			if id == roleID {
				removed++
				continue
			}
			kept = append(kept, id)
		}
		tx.mock.links[userID] = kept
	}
	return removed, nil
}

func (tx *mockTxRepo) AppendAudit(ctx context.Context, entry audit.Entry) error {
	tx.mock.audits = append(tx.mock.audits, entry)
	return nil
}

type mockCache struct {
	bumps int
}

func (c *mockCache) Bump(ctx context.Context) {
	c.bumps++
}

func TestAssignRolesReplacesSet(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = true
	repo.validRoles[10] = "Admin"
	repo.validRoles[20] = "Manager"
	repo.validRoles[30] = "User"
	repo.links[1] = []int64{10}
	cache := &mockCache{}
	svc := NewService(repo, cache)

	err := svc.AssignRoles(context.Background(), 1, []int64{20, 30})
	require.NoError(t, err)

	assert.Equal(t, []int64{20, 30}, repo.links[1])
	assert.Equal(t, 1, cache.bumps)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "user.roles_assigned", repo.audits[0].Action)
}

func TestAssignRolesIdempotent(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = true
	repo.validRoles[10] = "Admin"
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.AssignRoles(ctx, 1, []int64{10}))
	require.NoError(t, svc.AssignRoles(ctx, 1, []int64{10}))

	assert.Equal(t, []int64{10}, repo.links[1])
}

func TestAssignRolesDedupesInput(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = true
	repo.validRoles[10] = "Admin"
	svc := NewService(repo, nil)

	require.NoError(t, svc.AssignRoles(context.Background(), 1, []int64{10, 10}))
	assert.Equal(t, []int64{10}, repo.links[1])
}

func TestAssignRolesEmptyClears(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = true
	repo.validRoles[10] = "Admin"
	repo.links[1] = []int64{10}
	svc := NewService(repo, nil)

	require.NoError(t, svc.AssignRoles(context.Background(), 1, nil))
	assert.Empty(t, repo.links[1])
}

func TestAssignRolesUserNotFound(t *testing.T) {
	repo := newMockRepository()
	repo.validRoles[10] = "Admin"
	svc := NewService(repo, nil)

	err := svc.AssignRoles(context.Background(), 99, []int64{10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestAssignRolesUnknownRoleKeepsSet(t *testing.T) {
	repo := newMockRepository()
	repo.users[1] = true
	repo.validRoles[10] = "Admin"
	repo.links[1] = []int64{10}
	cache := &mockCache{}
	svc := NewService(repo, cache)

	err := svc.AssignRoles(context.Background(), 1, []int64{10, 999})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	assert.Equal(t, []int64{10}, repo.links[1])
	assert.Zero(t, cache.bumps)
	assert.Empty(t, repo.audits)
}

func TestListRolesForUser(t *testing.T) {
	repo := newMockRepository()
	repo.validRoles[10] = "Admin"
	repo.links[1] = []int64{10}
	svc := NewService(repo, nil)

	held, err := svc.ListRolesForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "Admin", held[0].Name)
}

func TestRemoveAllForUser(t *testing.T) {
	repo := newMockRepository()
	repo.links[1] = []int64{10, 20}
	cache := &mockCache{}
	svc := NewService(repo, cache)

	require.NoError(t, svc.RemoveAllForUser(context.Background(), 1))
	assert.Empty(t, repo.links[1])
	assert.Equal(t, 1, cache.bumps)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "user.roles_cleared", repo.audits[0].Action)
}

func TestRemoveAllForUserNoLinksNoAudit(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	require.NoError(t, svc.RemoveAllForUser(context.Background(), 1))
	assert.Empty(t, repo.audits)
}

func TestRemoveAllForRole(t *testing.T) {
	repo := newMockRepository()
	repo.links[1] = []int64{10, 20}
	repo.links[2] = []int64{10}
	svc := NewService(repo, nil)

	require.NoError(t, svc.RemoveAllForRole(context.Background(), 10))
	assert.Equal(t, []int64{20}, repo.links[1])
	assert.Empty(t, repo.links[2])
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "role.assignments_cleared", repo.audits[0].Action)
}
