package roles

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/permissions"
	"github.com/helios-iam/helios-iam/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	roles         map[int64]*Role
	links         map[int64][]int64 // roleID -> permissionIDs
	assignedUsers map[int64]int     // roleID -> user count
	validPerms    map[int64]bool
	nextRoleID    int64

	audits []audit.Entry

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:         make(map[int64]*Role),
		links:         make(map[int64][]int64),
		assignedUsers: make(map[int64]int),
		validPerms:    make(map[int64]bool),
		nextRoleID:    1,
	}
}

func (m *mockRepository) addRole(name string, system bool) *Role {
	id := m.nextRoleID
	m.nextRoleID++
	role := &Role{
		ID:           id,
		Name:         name,
		IsSystemRole: system,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.roles[id] = role
	return role
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	// Snapshot mutable state so a failed callback rolls back.
	snapshot := m.clone()
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *mockRepository) clone() *mockRepository {
	c := newMockRepository()
	c.nextRoleID = m.nextRoleID
	for id, r := range m.roles {
		cp := *r
		c.roles[id] = &cp
	}
	for id, perms := range m.links {
		c.links[id] = append([]int64(nil), perms...)
	}
	for id, n := range m.assignedUsers {
		c.assignedUsers[id] = n
	}
	c.audits = append([]audit.Entry(nil), m.audits...)
	return c
}

func (m *mockRepository) restore(s *mockRepository) {
	m.roles = s.roles
	m.links = s.links
	m.assignedUsers = s.assignedUsers
	m.audits = s.audits
	m.nextRoleID = s.nextRoleID
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Summary, error) {
	result := []Summary{}
	for _, r := range m.roles {
		result = append(result, Summary{
			Role:            *r,
			UserCount:       m.assignedUsers[r.ID],
			PermissionCount: len(m.links[r.ID]),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (*Detail, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	detail := &Detail{Role: *r}
	for _, permID := range m.links[id] {
		detail.Permissions = append(detail.Permissions, permissions.Permission{ID: permID})
	}
	return detail, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (tx *mockTxRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	for _, r := range tx.mock.roles {
		if r.Name == name {
			return Role{}, shared.ErrDuplicateName
		}
	}
	role := tx.mock.addRole(name, false)
	role.Description = description
	return *role, nil
}

func (tx *mockTxRepo) GetRoleForUpdate(ctx context.Context, id int64) (*Role, error) {
	r, ok := tx.mock.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (tx *mockTxRepo) RoleNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	for _, r := range tx.mock.roles {
		if r.Name == name && r.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *mockTxRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	r, ok := tx.mock.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	r.Name = name
	r.Description = description
	r.UpdatedAt = time.Now()
	return *r, nil
}

func (tx *mockTxRepo) CountAssignedUsers(ctx context.Context, roleID int64) (int, error) {
	return tx.mock.assignedUsers[roleID], nil
}

func (tx *mockTxRepo) DeletePermissionLinks(ctx context.Context, roleID int64) (int64, error) {
	n := int64(len(tx.mock.links[roleID]))
	delete(tx.mock.links, roleID)
	return n, nil
}

func (tx *mockTxRepo) DeleteUserLinks(ctx context.Context, roleID int64) (int64, error) {
	n := int64(tx.mock.assignedUsers[roleID])
	delete(tx.mock.assignedUsers, roleID)
	return n, nil
}

func (tx *mockTxRepo) DeleteRole(ctx context.Context, id int64) error {
	delete(tx.mock.roles, id)
	return nil
}

func (tx *mockTxRepo) MissingPermissionIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if !tx.mock.validPerms[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (tx *mockTxRepo) InsertPermissionLinks(ctx context.Context, roleID int64, permissionIDs []int64) error {
	tx.mock.links[roleID] = append([]int64(nil), permissionIDs...)
	return nil
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

func ptr[T any](v T) *T {
	return &v
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRole(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{Name: "Auditor", Description: "Read-only reviewer"})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "Auditor", created.Name)
	assert.False(t, created.IsSystemRole)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "role.created", repo.audits[0].Action)
}

func TestCreateRoleEmptyName(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.Create(context.Background(), CreateRequest{Name: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestCreateRoleDuplicateName(t *testing.T) {
	repo := newMockRepository()
	repo.addRole("Auditor", false)
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateRequest{Name: "Auditor"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateName))
}

func TestUpdateRole(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	svc := NewService(repo, nil)

	updated, err := svc.Update(context.Background(), role.ID, UpdateRequest{
		Name:        ptr("Reviewer"),
		Description: ptr("Renamed"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Reviewer", updated.Name)
	assert.Equal(t, "Renamed", updated.Description)
}

func TestUpdateRoleKeepsUnsetFields(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	role.Description = "Original"
	svc := NewService(repo, nil)

	updated, err := svc.Update(context.Background(), role.ID, UpdateRequest{Name: ptr("Reviewer")})
	require.NoError(t, err)
	assert.Equal(t, "Reviewer", updated.Name)
	assert.Equal(t, "Original", updated.Description)
}

func TestUpdateSystemRoleForbidden(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Super Admin", true)
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), role.ID, UpdateRequest{Name: ptr("Root")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	assert.Equal(t, "Super Admin", repo.roles[role.ID].Name)
}

func TestUpdateRoleDuplicateName(t *testing.T) {
	repo := newMockRepository()
	repo.addRole("Auditor", false)
	role := repo.addRole("Reviewer", false)
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), role.ID, UpdateRequest{Name: ptr("Auditor")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateName))
}

func TestUpdateRoleSameNameNoConflict(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	svc := NewService(repo, nil)

	updated, err := svc.Update(context.Background(), role.ID, UpdateRequest{
		Name:        ptr("Auditor"),
		Description: ptr("Same name, new description"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Auditor", updated.Name)
}

func TestUpdateRoleNotFound(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.Update(context.Background(), 999, UpdateRequest{Name: ptr("Ghost")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestDeleteRole(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	repo.links[role.ID] = []int64{1, 2}
	cache := &mockCache{}
	svc := NewService(repo, cache)

	err := svc.Delete(context.Background(), role.ID)
	require.NoError(t, err)

	_, exists := repo.roles[role.ID]
	assert.False(t, exists)
	assert.Empty(t, repo.links[role.ID])
	assert.Equal(t, 1, cache.bumps)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "role.deleted", repo.audits[0].Action)
}

func TestDeleteSystemRoleForbidden(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Guest", true)
	svc := NewService(repo, nil)

	err := svc.Delete(context.Background(), role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	_, exists := repo.roles[role.ID]
	assert.True(t, exists)
}

func TestDeleteRoleWithAssignedUsers(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	repo.links[role.ID] = []int64{1}
	repo.assignedUsers[role.ID] = 3
	cache := &mockCache{}
	svc := NewService(repo, cache)

	err := svc.Delete(context.Background(), role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	var assignedErr *AssignedUsersError
	require.True(t, errors.As(err, &assignedErr))
	assert.Equal(t, 3, assignedErr.Count)

	// Nothing changed: role, links and assignments survive the attempt.
	_, exists := repo.roles[role.ID]
	assert.True(t, exists)
	assert.Len(t, repo.links[role.ID], 1)
	assert.Equal(t, 3, repo.assignedUsers[role.ID])
	assert.Zero(t, cache.bumps)
	assert.Empty(t, repo.audits)
}

func TestDeleteRoleNotFound(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	err := svc.Delete(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestAssignPermissionsReplacesSet(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	repo.links[role.ID] = []int64{1, 2, 3}
	for _, id := range []int64{1, 2, 3, 4, 5} {
		repo.validPerms[id] = true
	}
	cache := &mockCache{}
	svc := NewService(repo, cache)

	detail, err := svc.AssignPermissions(context.Background(), role.ID, []int64{4, 5})
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, []int64{4, 5}, repo.links[role.ID])
	assert.Equal(t, 1, cache.bumps)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "role.permissions_assigned", repo.audits[0].Action)
}

func TestAssignPermissionsIdempotent(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	for _, id := range []int64{1, 2} {
		repo.validPerms[id] = true
	}
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.AssignPermissions(ctx, role.ID, []int64{1, 2})
	require.NoError(t, err)
	_, err = svc.AssignPermissions(ctx, role.ID, []int64{1, 2})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, repo.links[role.ID])
}

func TestAssignPermissionsDedupesInput(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	repo.validPerms[7] = true
	svc := NewService(repo, nil)

	_, err := svc.AssignPermissions(context.Background(), role.ID, []int64{7, 7, 7})
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, repo.links[role.ID])
}

func TestAssignPermissionsEmptyClears(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	repo.links[role.ID] = []int64{1, 2}
	svc := NewService(repo, nil)

	detail, err := svc.AssignPermissions(context.Background(), role.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, detail.Permissions)
	assert.Empty(t, repo.links[role.ID])
}

func TestAssignPermissionsUnknownID(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("Auditor", false)
	repo.links[role.ID] = []int64{1}
	repo.validPerms[1] = true
	svc := NewService(repo, nil)

	_, err := svc.AssignPermissions(context.Background(), role.ID, []int64{1, 999})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	// The original set survives the failed replacement.
	assert.Equal(t, []int64{1}, repo.links[role.ID])
	assert.Empty(t, repo.audits)
}

func TestAssignPermissionsRoleNotFound(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.AssignPermissions(context.Background(), 999, []int64{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestAuditEntryCarriesActor(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{
		UserID:    42,
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	})

	_, err := svc.Create(ctx, CreateRequest{Name: "Auditor"})
	require.NoError(t, err)

	require.Len(t, repo.audits, 1)
	entry := repo.audits[0]
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, int64(42), *entry.ActorID)
	assert.Equal(t, "10.0.0.1", entry.IP)
	assert.Equal(t, "roles", entry.Resource)
}
