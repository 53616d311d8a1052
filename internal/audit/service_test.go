package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	entries []EntryWithActor
}

func newMockRepository(n int) *mockRepository {
	m := &mockRepository{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		actorID := int64(i%3 + 1)
		m.entries = append(m.entries, EntryWithActor{
			Entry: Entry{
				ID:        uuid.New(),
				ActorID:   &actorID,
				Action:    "role.updated",
				Resource:  "roles",
				CreatedAt: base.Add(time.Duration(n-i) * time.Minute),
			},
		})
	}
	return m
}

func (m *mockRepository) filtered(actorID *int64) []EntryWithActor {
	if actorID == nil {
		return m.entries
	}
	var result []EntryWithActor
	for _, e := range m.entries {
		if e.ActorID != nil && *e.ActorID == *actorID {
			result = append(result, e)
		}
	}
	return result
}

func (m *mockRepository) CountEntries(ctx context.Context, actorID *int64) (int, error) {
	return len(m.filtered(actorID)), nil
}

func (m *mockRepository) ListEntries(ctx context.Context, actorID *int64, limit, offset int) ([]EntryWithActor, error) {
	entries := m.filtered(actorID)
	if offset >= len(entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end], nil
}

func TestQueryPaginatesNewestFirst(t *testing.T) {
	svc := NewService(newMockRepository(120))

	result, err := svc.Query(context.Background(), QueryFilter{Page: 3, PageSize: 50})
	require.NoError(t, err)

	assert.Len(t, result.Entries, 20)
	assert.Equal(t, 3, result.Meta.Page)
	assert.Equal(t, 50, result.Meta.PerPage)
	assert.Equal(t, 120, result.Meta.Total)
	assert.Equal(t, 3, result.Meta.TotalPages)
}

func TestQueryDefaultsPageAndLimit(t *testing.T) {
	svc := NewService(newMockRepository(10))

	result, err := svc.Query(context.Background(), QueryFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Meta.Page)
	assert.Equal(t, 50, result.Meta.PerPage)
	assert.Len(t, result.Entries, 10)
	assert.Equal(t, 1, result.Meta.TotalPages)
}

func TestQueryPageBeyondEnd(t *testing.T) {
	svc := NewService(newMockRepository(10))

	result, err := svc.Query(context.Background(), QueryFilter{Page: 5, PageSize: 10})
	require.NoError(t, err)

	assert.Empty(t, result.Entries)
	assert.Equal(t, 10, result.Meta.Total)
}

func TestQueryFiltersByActor(t *testing.T) {
	repo := newMockRepository(9)
	svc := NewService(repo)
	actorID := int64(1)

	result, err := svc.Query(context.Background(), QueryFilter{ActorID: &actorID})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Meta.Total)
	for _, e := range result.Entries {
		require.NotNil(t, e.ActorID)
		assert.Equal(t, actorID, *e.ActorID)
	}
}

func TestWriterValidatesEntry(t *testing.T) {
	w := NewWriter(nil, nil)

	err := w.Append(context.Background(), &execRecorder{}, Entry{Resource: "roles"})
	require.Error(t, err)

	err = w.Append(context.Background(), &execRecorder{}, Entry{Action: "role.created"})
	require.Error(t, err)
}

func TestWriterDefaultsIDAndTimestamp(t *testing.T) {
	rec := &execRecorder{}
	w := NewWriter(nil, nil)

	err := w.Append(context.Background(), rec, Entry{Action: "role.created", Resource: "roles"})
	require.NoError(t, err)
	require.Len(t, rec.args, 1)

	id, ok := rec.args[0][0].(uuid.UUID)
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, id)
}

type execRecorder struct {
	args [][]any
	err  error
}

func (r *execRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	r.args = append(r.args, args)
	return pgconn.CommandTag{}, nil
}
