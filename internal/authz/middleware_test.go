package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helios-iam/helios-iam/internal/shared"
)

func requestAs(userID int64) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if userID > 0 {
		ctx := shared.ContextWithActor(r.Context(), shared.Actor{UserID: userID})
		r = r.WithContext(ctx)
	}
	return r
}

func protectedStatus(t *testing.T, mw func(http.Handler) http.Handler, r *http.Request) int {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, r)
	return rec.Code
}

func TestRequireAnyAllows(t *testing.T) {
	repo := &stubRepo{perms: map[int64][]string{1: {"users.read"}}}
	m := Middleware{Service: NewService(repo, nil, nil)}

	code := protectedStatus(t, m.RequireAny("users.read", "users.update"), requestAs(1))
	assert.Equal(t, http.StatusNoContent, code)
}

func TestRequireAnyDenies(t *testing.T) {
	repo := &stubRepo{perms: map[int64][]string{1: {"audit.read"}}}
	m := Middleware{Service: NewService(repo, nil, nil)}

	code := protectedStatus(t, m.RequireAny("users.read"), requestAs(1))
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRequireAllNeedsEvery(t *testing.T) {
	repo := &stubRepo{perms: map[int64][]string{1: {"users.read", "users.update"}}}
	m := Middleware{Service: NewService(repo, nil, nil)}

	code := protectedStatus(t, m.RequireAll("users.read", "users.update"), requestAs(1))
	assert.Equal(t, http.StatusNoContent, code)

	code = protectedStatus(t, m.RequireAll("users.read", "users.delete"), requestAs(1))
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAnonymousRequestForbidden(t *testing.T) {
	repo := &stubRepo{perms: map[int64][]string{}}
	m := Middleware{Service: NewService(repo, nil, nil)}

	code := protectedStatus(t, m.RequireAny("users.read"), requestAs(0))
	assert.Equal(t, http.StatusForbidden, code)
}

func TestEmptyRequirementPassesThrough(t *testing.T) {
	m := Middleware{Service: NewService(&stubRepo{}, nil, nil)}

	code := protectedStatus(t, m.RequireAny(), requestAs(0))
	assert.Equal(t, http.StatusNoContent, code)
}

func TestRequirementNormalization(t *testing.T) {
	repo := &stubRepo{perms: map[int64][]string{1: {"users.read"}}}
	m := Middleware{Service: NewService(repo, nil, nil)}

	code := protectedStatus(t, m.RequireAny("  USERS.READ  "), requestAs(1))
	assert.Equal(t, http.StatusNoContent, code)
}
