package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-iam/helios-iam/internal/shared"
)

func newTestRouter(t *testing.T, capture *shared.Actor, found *bool) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: NewLogger(nil),
		Config: &Config{AppEnv: "development", ActorHeader: "X-Actor-ID", RateLimit: 1000},
	}) {
		r.Use(mw)
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		*capture = actor
		*found = ok
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestActorResolvedFromHeader(t *testing.T) {
	var actor shared.Actor
	var found bool
	router := newTestRouter(t, &actor, &found)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-ID", "42")
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	assert.Equal(t, int64(42), actor.UserID)
	assert.Equal(t, "192.0.2.1", actor.IP)
	assert.Equal(t, "test-agent", actor.UserAgent)
}

func TestMissingActorHeaderStaysAnonymous(t *testing.T) {
	var actor shared.Actor
	var found bool
	router := newTestRouter(t, &actor, &found)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, found)
}

func TestMalformedActorHeaderIgnored(t *testing.T) {
	var actor shared.Actor
	var found bool
	router := newTestRouter(t, &actor, &found)

	for _, raw := range []string{"abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Actor-ID", raw)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, found, "header %q should not resolve an actor", raw)
	}
}
