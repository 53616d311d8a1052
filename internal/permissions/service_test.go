package permissions

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/shared"
)

type mockRepository struct {
	perms     map[int64]*Permission
	roleLinks map[int64]int // permissionID -> linked role count
	nextID    int64

	audits []audit.Entry
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		perms:     make(map[int64]*Permission),
		roleLinks: make(map[int64]int),
		nextID:    1,
	}
}

func (m *mockRepository) addPermission(resource, action string) *Permission {
	id := m.nextID
	m.nextID++
	p := &Permission{
		ID:        id,
		Name:      resource + "." + action,
		Resource:  resource,
		Action:    action,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.perms[id] = p
	return p
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) ListPermissions(ctx context.Context) ([]Summary, error) {
	result := []Summary{}
	for _, p := range m.perms {
		result = append(result, Summary{Permission: *p, RoleCount: m.roleLinks[p.ID]})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Resource != result[j].Resource {
			return result[i].Resource < result[j].Resource
		}
		return result[i].Action < result[j].Action
	})
	return result, nil
}

func (m *mockRepository) GetPermission(ctx context.Context, id int64) (*Detail, error) {
	p, ok := m.perms[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &Detail{Permission: *p}, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (tx *mockTxRepo) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	for _, existing := range tx.mock.perms {
		if existing.Name == p.Name {
			return Permission{}, shared.ErrDuplicateName
		}
	}
	p.ID = tx.mock.nextID
	tx.mock.nextID++
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := p
	tx.mock.perms[p.ID] = &cp
	return p, nil
}

func (tx *mockTxRepo) GetPermissionForUpdate(ctx context.Context, id int64) (*Permission, error) {
	p, ok := tx.mock.perms[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (tx *mockTxRepo) DeleteRoleLinks(ctx context.Context, permissionID int64) (int64, error) {
	n := int64(tx.mock.roleLinks[permissionID])
	delete(tx.mock.roleLinks, permissionID)
	return n, nil
}

func (tx *mockTxRepo) DeletePermission(ctx context.Context, id int64) (int64, error) {
	if _, ok := tx.mock.perms[id]; !ok {
		return 0, nil
	}
	delete(tx.mock.perms, id)
	return 1, nil
}

func (tx *mockTxRepo) AppendAudit(ctx context.Context, entry audit.Entry) error {
	tx.mock.audits = append(tx.mock.audits, entry)
	return nil
}

func TestCreatePermission(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), CreateRequest{
		Resource:    "reports",
		Action:      "export",
		Description: "Export reports",
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, "reports.export", created.Name)
	assert.Equal(t, "reports", created.Resource)
	assert.Equal(t, "export", created.Action)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, "permission.created", repo.audits[0].Action)
}

func TestCreatePermissionExplicitName(t *testing.T) {
	svc := NewService(newMockRepository())

	created, err := svc.Create(context.Background(), CreateRequest{
		Name:     "custom-name",
		Resource: "reports",
		Action:   "export",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-name", created.Name)
}

func TestCreatePermissionMissingResource(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Create(context.Background(), CreateRequest{Action: "export"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestCreatePermissionDuplicateName(t *testing.T) {
	repo := newMockRepository()
	repo.addPermission("reports", "export")
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateRequest{Resource: "reports", Action: "export"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateName))
}

func TestListPermissionsOrderedWithRoleCounts(t *testing.T) {
	repo := newMockRepository()
	b := repo.addPermission("users", "read")
	a := repo.addPermission("audit", "read")
	repo.roleLinks[a.ID] = 2
	svc := NewService(repo)

	result, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, "audit.read", result[0].Name)
	assert.Equal(t, 2, result[0].RoleCount)
	assert.Equal(t, b.Name, result[1].Name)
	assert.Zero(t, result[1].RoleCount)
}

func TestGetPermissionNotFound(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Get(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestDeletePermissionCascadesLinks(t *testing.T) {
	repo := newMockRepository()
	p := repo.addPermission("reports", "export")
	repo.roleLinks[p.ID] = 4
	svc := NewService(repo)

	err := svc.Delete(context.Background(), p.ID)
	require.NoError(t, err)

	_, exists := repo.perms[p.ID]
	assert.False(t, exists)
	assert.Zero(t, repo.roleLinks[p.ID])

	require.Len(t, repo.audits, 1)
	assert.Equal(t, "permission.deleted", repo.audits[0].Action)
	assert.Equal(t, int64(4), repo.audits[0].Details["unlinkedRoles"])
}

func TestDeletePermissionNotFound(t *testing.T) {
	svc := NewService(newMockRepository())

	err := svc.Delete(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
